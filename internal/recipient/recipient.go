package recipient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidPayload = errors.New("invalid recipientData")

// Keys with a fixed meaning in a recipient object. Every other key is a
// template field.
const (
	keyName      = "recipient_name"
	keyPhone     = "recipient_phone_no"
	keyTemplate  = "recipient_template"
	keyMediaURLs = "recipient_media_file_urls"
	keyDocURLs   = "recipient_doc_file_urls"
)

// Recipient is one addressee of a blast. Its position in the payload is
// its identity.
type Recipient struct {
	Name      string
	Phone     string
	Template  string
	Fields    map[string]any
	MediaURLs []string
	DocURLs   []string
}

type Payload struct {
	Recipients []Recipient
	Global     map[string]any
}

type rawPayload struct {
	Recipients []map[string]any `json:"recipients"`
	Global     map[string]any   `json:"global"`
}

// ParsePayload decodes recipientData, which may arrive either as a JSON
// object or as a string holding JSON. Numbers are kept as json.Number so
// they are never mistaken for string fields.
func ParsePayload(raw json.RawMessage) (*Payload, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: missing", ErrInvalidPayload)
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		data = bytes.TrimSpace([]byte(s))
	}

	var rp rawPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	p := &Payload{
		Recipients: make([]Recipient, 0, len(rp.Recipients)),
		Global:     rp.Global,
	}
	if p.Global == nil {
		p.Global = map[string]any{}
	}
	for i, obj := range rp.Recipients {
		if obj == nil {
			return nil, fmt.Errorf("%w: recipient %d is null", ErrInvalidPayload, i)
		}
		p.Recipients = append(p.Recipients, fromObject(obj))
	}
	return p, nil
}

func fromObject(obj map[string]any) Recipient {
	r := Recipient{
		Name:      scalarString(obj[keyName]),
		Phone:     scalarString(obj[keyPhone]),
		Template:  scalarString(obj[keyTemplate]),
		MediaURLs: stringList(obj[keyMediaURLs]),
		DocURLs:   stringList(obj[keyDocURLs]),
		Fields:    make(map[string]any, len(obj)),
	}
	for k, v := range obj {
		switch k {
		case keyName, keyPhone, keyTemplate, keyMediaURLs, keyDocURLs:
			continue
		}
		r.Fields[k] = v
	}
	return r
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
