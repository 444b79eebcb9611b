package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"weblast/internal/recipient"
	"weblast/internal/session"
)

func TestBlastNoRecipientsNeverOpensSession(t *testing.T) {
	t.Parallel()
	opened := 0
	svc := NewService(Config{}, func(string) (session.Channel, error) {
		opened++
		return newStubChannel(), nil
	}, &stubFetcher{}, nil)

	payload, err := recipient.ParsePayload(json.RawMessage(`{"recipients": []}`))
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	res, err := svc.Blast(context.Background(), Request{Payload: payload, TemplateText: greetTemplates})
	if err != nil {
		t.Fatalf("Blast: %v", err)
	}
	if opened != 0 {
		t.Fatalf("session opened %d times", opened)
	}

	data, _ := json.Marshal(res)
	if string(data) != `{"status":"Blast complete (no recipients)","report":[]}` {
		t.Fatalf("result = %s", data)
	}
}

func TestBlastRunsAndTearsDown(t *testing.T) {
	t.Parallel()
	ch := newStubChannel()
	svc := NewService(Config{}, func(string) (session.Channel, error) { return ch, nil }, &stubFetcher{}, nil)

	payload := &recipient.Payload{
		Recipients: []recipient.Recipient{
			{Name: "Ana", Phone: "+1 (555) 010-0100", Template: "greet", Fields: map[string]any{"NAME": "Ana"}},
			{Name: "Bo", Phone: "987654321", Template: "missing"},
		},
	}
	res, err := svc.Blast(context.Background(), Request{Payload: payload, TemplateText: greetTemplates})
	if err != nil {
		t.Fatalf("Blast: %v", err)
	}
	if res.Status != StatusComplete || res.RunID == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.Report.Len() != 1 {
		t.Fatalf("report length = %d, want 1", res.Report.Len())
	}
	if ch.destroyed != 1 {
		t.Fatalf("Destroy called %d times", ch.destroyed)
	}
}

func TestBlastSessionFailure(t *testing.T) {
	t.Parallel()
	ch := newStubChannel()
	ch.readyEvent = false
	svc := NewService(Config{}, func(string) (session.Channel, error) { return ch, nil }, &stubFetcher{}, nil)

	payload := &recipient.Payload{Recipients: []recipient.Recipient{{Name: "a", Phone: "1", Template: "greet"}}}
	res, err := svc.Blast(context.Background(), Request{Payload: payload, TemplateText: greetTemplates})
	if !errors.Is(err, session.ErrSessionFailed) {
		t.Fatalf("err = %v, want ErrSessionFailed", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if ch.destroyed != 1 {
		t.Fatal("session must be torn down after a fatal error")
	}
	if len(ch.lookups) != 0 {
		t.Fatal("dispatch must not start before the session is ready")
	}
}

func TestBlastOpenChannelError(t *testing.T) {
	t.Parallel()
	svc := NewService(Config{}, func(string) (session.Channel, error) {
		return nil, errors.New("no credentials")
	}, &stubFetcher{}, nil)

	payload := &recipient.Payload{Recipients: []recipient.Recipient{{Name: "a", Phone: "1", Template: "greet"}}}
	if _, err := svc.Blast(context.Background(), Request{Payload: payload}); !errors.Is(err, session.ErrSessionFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestBlastPacesRecipientsWithClock(t *testing.T) {
	t.Parallel()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ch := newStubChannel()
	svc := NewService(Config{RecipientDelay: 2 * time.Second}, func(string) (session.Channel, error) { return ch, nil }, &stubFetcher{}, nil).
		WithClock(fc)

	payload := &recipient.Payload{Recipients: []recipient.Recipient{
		{Name: "a", Phone: "111111111", Template: "greet"},
		{Name: "b", Phone: "222222222", Template: "greet"},
	}}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Blast(context.Background(), Request{Payload: payload, TemplateText: greetTemplates})
		done <- err
	}()

	// The second recipient waits for the spacing interval.
	blockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("second recipient never waited: %v", err)
	}
	ch.mu.Lock()
	sentBefore := len(ch.sent)
	ch.mu.Unlock()
	if sentBefore != 1 {
		t.Fatalf("sent before advance = %d, want 1", sentBefore)
	}
	fc.Advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Blast: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blast did not finish")
	}
	if len(ch.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(ch.sent))
	}
}

func TestBlastStopsWhenSessionDropsMidRun(t *testing.T) {
	t.Parallel()
	ch := newStubChannel()
	ch.dropOnText = "222222222@c.us"
	svc := NewService(Config{}, func(string) (session.Channel, error) { return ch, nil }, &stubFetcher{}, nil)

	payload := &recipient.Payload{Recipients: []recipient.Recipient{
		{Name: "a", Phone: "111111111", Template: "greet"},
		{Name: "b", Phone: "222222222", Template: "greet"},
		{Name: "c", Phone: "333333333", Template: "greet"},
	}}
	res, err := svc.Blast(context.Background(), Request{Payload: payload, TemplateText: greetTemplates})
	if !errors.Is(err, session.ErrSessionFailed) || !strings.Contains(err.Error(), "stream replaced") {
		t.Fatalf("err = %v, want ErrSessionFailed", err)
	}
	if res == nil || res.Status != StatusAborted {
		t.Fatalf("result = %+v, want partial aborted result", res)
	}

	outs := res.Report.Outcomes()
	if len(outs) != 2 || outs[0].Status() != "text-sent" || outs[1].Status() != "failed" {
		t.Fatalf("outcomes = %+v", outs)
	}
	for _, phone := range ch.lookups {
		if phone == "333333333" {
			t.Fatal("dispatch continued after the session dropped")
		}
	}
	if ch.destroyed != 1 {
		t.Fatalf("Destroy called %d times", ch.destroyed)
	}
}

func TestBlastReportsTeardownErrors(t *testing.T) {
	t.Parallel()
	payload := &recipient.Payload{Recipients: []recipient.Recipient{{Name: "a", Phone: "111111111", Template: "greet"}}}

	tests := []struct {
		name  string
		ready bool
	}{
		{name: "before ready", ready: false},
		{name: "after run", ready: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ch := newStubChannel()
			ch.readyEvent = tt.ready
			ch.destroyErr = errors.New("browser already gone")
			svc := NewService(Config{}, func(string) (session.Channel, error) { return ch, nil }, &stubFetcher{}, nil)

			res, err := svc.Blast(context.Background(), Request{Payload: payload, TemplateText: greetTemplates})
			if err == nil || !strings.Contains(err.Error(), "browser already gone") {
				t.Fatalf("err = %v, want the destroy error included", err)
			}
			if !errors.Is(err, session.ErrSessionFailed) {
				t.Fatalf("err = %v, want ErrSessionFailed", err)
			}
			// Only a run that got past ready has a report to return.
			if (res != nil) != tt.ready {
				t.Fatalf("result = %+v", res)
			}
			if !tt.ready && !strings.Contains(err.Error(), "logged out") {
				t.Fatalf("err = %v, want the ready failure kept", err)
			}
		})
	}
}
