package recipient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePayloadObject(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`{
		"recipients": [
			{
				"recipient_name": "Ana",
				"recipient_phone_no": "+1 (555) 010-0100",
				"recipient_template": "greet",
				"recipient_media_file_urls": ["https://cdn.example/a.jpg", 3, ""],
				"recipient_doc_file_urls": ["https://cdn.example/b.pdf"],
				"NAME": "Ana",
				"AGE": 42
			}
		],
		"global": {"SHOP": "Lumen"}
	}`)

	p, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(p.Recipients) != 1 {
		t.Fatalf("got %d recipients, want 1", len(p.Recipients))
	}
	r := p.Recipients[0]
	if r.Name != "Ana" || r.Phone != "+1 (555) 010-0100" || r.Template != "greet" {
		t.Fatalf("unexpected recipient: %+v", r)
	}
	if len(r.MediaURLs) != 1 || r.MediaURLs[0] != "https://cdn.example/a.jpg" {
		t.Fatalf("MediaURLs = %v", r.MediaURLs)
	}
	if len(r.DocURLs) != 1 {
		t.Fatalf("DocURLs = %v", r.DocURLs)
	}
	if _, ok := r.Fields["recipient_name"]; ok {
		t.Fatal("reserved keys must not leak into Fields")
	}
	if r.Fields["NAME"] != "Ana" {
		t.Fatalf("NAME field = %v", r.Fields["NAME"])
	}
	if _, ok := r.Fields["AGE"].(json.Number); !ok {
		t.Fatalf("AGE should stay a json.Number, got %T", r.Fields["AGE"])
	}
	if p.Global["SHOP"] != "Lumen" {
		t.Fatalf("Global = %v", p.Global)
	}
}

func TestParsePayloadString(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`"{\"recipients\":[{\"recipient_name\":\"Bo\",\"recipient_phone_no\":5550100}]}"`)
	p, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(p.Recipients) != 1 || p.Recipients[0].Phone != "5550100" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Global == nil {
		t.Fatal("Global should default to an empty map")
	}
}

func TestParsePayloadNoRecipients(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{"recipients": []}`, `{}`, `"{}"`} {
		p, err := ParsePayload(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("ParsePayload(%s): %v", raw, err)
		}
		if len(p.Recipients) != 0 {
			t.Fatalf("ParsePayload(%s) recipients = %d", raw, len(p.Recipients))
		}
	}
}

func TestParsePayloadInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{``, `null`, `"not json"`, `{"recipients": "nope"}`, `[1,2]`, `{"recipients":[null]}`} {
		_, err := ParsePayload(json.RawMessage(raw))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("ParsePayload(%q) error = %v, want ErrInvalidPayload", raw, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"+1 (555) 010-0100": "15550100100",
		"628123456789":      "628123456789",
		"":                  "",
		"no digits":         "",
		"٣٤٥ 12":            "12",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

type lookupFunc func(ctx context.Context, phone string) (string, error)

func (f lookupFunc) NumberID(ctx context.Context, phone string) (string, error) { return f(ctx, phone) }

func TestValidatorSubmitsEmptyPhone(t *testing.T) {
	t.Parallel()
	var seen []string
	v := NewValidator(lookupFunc(func(_ context.Context, phone string) (string, error) {
		seen = append(seen, phone)
		return "", nil
	}))

	_, ok, err := v.Validate(context.Background(), "")
	if err != nil || ok {
		t.Fatalf("Validate(\"\") = %v, %v", ok, err)
	}
	if len(seen) != 1 || seen[0] != "" {
		t.Fatalf("lookup calls = %q", seen)
	}
}

func TestValidatorReturnsAddress(t *testing.T) {
	t.Parallel()
	v := NewValidator(lookupFunc(func(_ context.Context, phone string) (string, error) {
		return phone + "@c.us", nil
	}))
	addr, ok, err := v.Validate(context.Background(), "15550100100")
	if err != nil || !ok || addr != "15550100100@c.us" {
		t.Fatalf("Validate = %q, %v, %v", addr, ok, err)
	}
}

func TestValidatorPropagatesLookupError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	v := NewValidator(lookupFunc(func(context.Context, string) (string, error) { return "", boom }))
	if _, _, err := v.Validate(context.Background(), "1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}
