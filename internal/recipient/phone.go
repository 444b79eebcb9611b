package recipient

import (
	"context"
	"strings"
)

// Normalize keeps only the ASCII digits of a raw phone string. Length and
// country code are left for the channel's existence check to judge.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Lookup resolves a canonical phone to a channel address. An empty
// address with a nil error means the number is not registered.
type Lookup interface {
	NumberID(ctx context.Context, phone string) (string, error)
}

type Validator struct {
	lookup Lookup
}

func NewValidator(lookup Lookup) *Validator {
	return &Validator{lookup: lookup}
}

// Validate asks the channel whether phone can receive messages. Empty
// phones are submitted like any other.
func (v *Validator) Validate(ctx context.Context, phone string) (address string, ok bool, err error) {
	address, err = v.lookup.NumberID(ctx, phone)
	if err != nil {
		return "", false, err
	}
	return address, address != "", nil
}
