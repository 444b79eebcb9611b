package session

import (
	"fmt"
	"io"
	"sync"

	"github.com/mdp/qrterminal/v3"
)

// Presenter shows session progress to an operator.
type Presenter interface {
	PresentPairing(runID, code string)
	SessionStateChanged(runID string, state State)
}

// Presenters fans out to every presenter in order.
type Presenters []Presenter

func (p Presenters) PresentPairing(runID, code string) {
	for _, pr := range p {
		pr.PresentPairing(runID, code)
	}
}

func (p Presenters) SessionStateChanged(runID string, state State) {
	for _, pr := range p {
		pr.SessionStateChanged(runID, state)
	}
}

// Console renders pairing codes as a compact QR block.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) PresentPairing(runID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Scan this QR code to activate WhatsApp session (run %s):\n", runID)
	qrterminal.GenerateHalfBlock(code, qrterminal.L, c.out)
}

func (c *Console) SessionStateChanged(string, State) {}
