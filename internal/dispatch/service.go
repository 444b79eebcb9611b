package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"weblast/internal/recipient"
	"weblast/internal/session"
	"weblast/internal/template"
	"weblast/internal/throttle"
)

type Config struct {
	RecipientDelay  time.Duration
	AttachmentDelay time.Duration
	PairingTimeout  time.Duration
}

type Request struct {
	Payload      *recipient.Payload
	TemplateText string
}

// Service runs blasts. Each call to Blast opens its own session and
// shares nothing with concurrent runs.
type Service struct {
	cfg        Config
	newChannel session.Factory
	fetcher    Fetcher
	presenter  session.Presenter
	clock      clockwork.Clock
}

func NewService(cfg Config, newChannel session.Factory, fetcher Fetcher, presenter session.Presenter) *Service {
	return &Service{
		cfg:        cfg,
		newChannel: newChannel,
		fetcher:    fetcher,
		presenter:  presenter,
		clock:      clockwork.NewRealClock(),
	}
}

// WithClock replaces the time source used for pacing and pairing timeouts.
func (s *Service) WithClock(c clockwork.Clock) *Service {
	s.clock = c
	return s
}

// Blast parses the templates, opens a session, waits for it to become
// ready, messages every recipient and tears the session down.
//
// An empty recipient list returns immediately without opening a session.
// If the session fails before it is ready the result is nil. If it fails
// mid-run, dispatch stops and the partial report comes back with an error
// wrapping session.ErrSessionFailed. A teardown error is joined to
// whatever else is returned.
func (s *Service) Blast(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	templates := template.Parse(req.TemplateText)

	var recipients []recipient.Recipient
	global := map[string]any{}
	if req.Payload != nil {
		recipients = req.Payload.Recipients
		if req.Payload.Global != nil {
			global = req.Payload.Global
		}
	}

	log.Info().Str("run_id", runID).Int("recipients", len(recipients)).Int("templates", len(templates)).
		Msg("Blast request received")

	if len(recipients) == 0 {
		log.Warn().Str("run_id", runID).Msg("No recipients, skipping WhatsApp flow")
		return &Result{RunID: runID, Status: StatusNoRecipients, Report: &Report{}}, nil
	}

	channel, err := s.newChannel(runID)
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", session.ErrSessionFailed, err)
	}

	ctrl := session.NewController(channel, session.Options{
		RunID:          runID,
		PairingTimeout: s.cfg.PairingTimeout,
		Presenter:      s.presenter,
		Clock:          s.clock,
	})
	teardown := func() error { return ctrl.Close(context.WithoutCancel(ctx)) }

	if err := ctrl.Start(ctx); err != nil {
		return nil, errors.Join(err, teardown())
	}
	if err := ctrl.AwaitReady(ctx); err != nil {
		return nil, errors.Join(err, teardown())
	}
	if err := ctrl.MarkRunning(); err != nil {
		return nil, errors.Join(err, teardown())
	}
	log.Info().Str("run_id", runID).Msg("WhatsApp ready, starting blast")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-ctrl.Failed():
			log.Warn().Str("run_id", runID).Msg("Session failed mid-run, stopping dispatch")
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	orch := NewOrchestrator(runID, channel, s.fetcher,
		throttle.NewSpacing(s.cfg.RecipientDelay, s.clock),
		throttle.NewSpacing(s.cfg.AttachmentDelay, s.clock))

	report, runErr := orch.Run(runCtx, templates, recipients, global)
	closeErr := teardown()

	result := &Result{RunID: runID, Status: StatusComplete, Report: report}
	if sessErr := ctrl.Err(); sessErr != nil {
		result.Status = StatusAborted
		return result, errors.Join(sessErr, closeErr)
	}
	if runErr != nil {
		result.Status = StatusAborted
		return result, errors.Join(fmt.Errorf("blast interrupted: %w", runErr), closeErr)
	}
	if closeErr != nil {
		return result, closeErr
	}

	log.Info().Str("run_id", runID).Int("outcomes", report.Len()).Msg("All messages processed, session closed")
	return result, nil
}
