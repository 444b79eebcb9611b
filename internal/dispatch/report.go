package dispatch

import (
	"encoding/json"
	"strings"
)

const (
	StatusComplete     = "Blast complete"
	StatusNoRecipients = "Blast complete (no recipients)"

	// StatusAborted marks a partial report returned alongside an error.
	StatusAborted = "Blast aborted"
)

// Sent is the set of things delivered to one recipient. The reported
// status string is derived from it.
type Sent uint8

const (
	SentText Sent = 1 << iota
	SentMedia
	SentDoc
)

type Outcome struct {
	Name    string
	Phone   string
	Invalid bool
	Sent    Sent
	details []string
}

// Status renders the outcome as one of failed, invalid-number,
// text-sent, text+media-sent, text+doc-sent or text+media+doc-sent.
func (o *Outcome) Status() string {
	if o.Invalid {
		return "invalid-number"
	}
	if o.Sent&SentText == 0 {
		return "failed"
	}
	s := "text"
	if o.Sent&SentMedia != 0 {
		s += "+media"
	}
	if o.Sent&SentDoc != 0 {
		s += "+doc"
	}
	return s + "-sent"
}

// Note appends a sub-failure message without touching the sent flags.
func (o *Outcome) Note(msg string) {
	o.details = append(o.details, msg)
}

func (o *Outcome) Details() string {
	return strings.Join(o.details, "; ")
}

type outcomeJSON struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Status  string `json:"status"`
	Details string `json:"details"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(outcomeJSON{
		Name:    o.Name,
		Phone:   o.Phone,
		Status:  o.Status(),
		Details: o.Details(),
	})
}

// Report is the ordered list of outcomes for one run. Outcomes are only
// ever appended, in recipient order.
type Report struct {
	outcomes []Outcome
}

func (r *Report) Append(o Outcome) {
	r.outcomes = append(r.outcomes, o)
}

func (r *Report) Len() int { return len(r.outcomes) }

// Outcomes returns a copy of the recorded outcomes.
func (r *Report) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

func (r *Report) MarshalJSON() ([]byte, error) {
	if r == nil || r.outcomes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.outcomes)
}

// Result is what a blast returns to its caller.
type Result struct {
	RunID  string  `json:"-"`
	Status string  `json:"status"`
	Report *Report `json:"report"`
}
