package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"weblast/internal/media"
	"weblast/internal/recipient"
	"weblast/internal/template"
)

// Channel is what the orchestrator needs from a ready session.
type Channel interface {
	recipient.Lookup
	SendText(ctx context.Context, address, body string) error
	SendAttachment(ctx context.Context, address string, att *media.Attachment) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, asDocument bool) (*media.Attachment, error)
}

// Limiter spaces out calls to the channel. Wait goes before a call and
// Mark after it, so the gap is measured from the end of the last call.
type Limiter interface {
	Wait(ctx context.Context) error
	Mark()
}

type Orchestrator struct {
	runID         string
	channel       Channel
	validator     *recipient.Validator
	fetcher       Fetcher
	recipientGap  Limiter
	attachmentGap Limiter
}

func NewOrchestrator(runID string, channel Channel, fetcher Fetcher, recipientGap, attachmentGap Limiter) *Orchestrator {
	return &Orchestrator{
		runID:         runID,
		channel:       channel,
		validator:     recipient.NewValidator(channel),
		fetcher:       fetcher,
		recipientGap:  recipientGap,
		attachmentGap: attachmentGap,
	}
}

// Run messages every recipient in order. Per-recipient failures end up in
// the report; only a done ctx stops the loop early, in which case the
// outcomes gathered so far are returned with the error.
func (o *Orchestrator) Run(ctx context.Context, templates template.Set, recipients []recipient.Recipient, global map[string]any) (*Report, error) {
	report := &Report{outcomes: make([]Outcome, 0, len(recipients))}

	for i, r := range recipients {
		body, ok := templates.Lookup(r.Template)
		if !ok {
			log.Warn().Str("run_id", o.runID).Int("index", i).Str("template", r.Template).
				Msg("No template for recipient, skipping")
			continue
		}

		if err := o.recipientGap.Wait(ctx); err != nil {
			return report, err
		}
		out := o.deliver(ctx, r, body, global)
		report.Append(out)
		o.recipientGap.Mark()

		log.Info().Str("run_id", o.runID).Int("index", i).Str("phone", out.Phone).
			Str("status", out.Status()).Msg("Recipient processed")
	}
	return report, nil
}

func (o *Orchestrator) deliver(ctx context.Context, r recipient.Recipient, body string, global map[string]any) Outcome {
	text := template.Render(body, r.Fields, global)
	out := Outcome{Name: r.Name, Phone: recipient.Normalize(r.Phone)}

	address, ok, err := o.validator.Validate(ctx, out.Phone)
	if err != nil {
		out.Note("lookup: " + err.Error())
		log.Warn().Err(err).Str("run_id", o.runID).Str("phone", out.Phone).Msg("Number lookup failed")
		return out
	}
	if !ok {
		out.Invalid = true
		return out
	}

	if err := o.channel.SendText(ctx, address, text); err != nil {
		out.Note("text: " + err.Error())
		log.Warn().Err(err).Str("run_id", o.runID).Str("phone", out.Phone).Msg("Failed to send text")
		return out
	}
	out.Sent |= SentText

	o.sendAttachments(ctx, &out, address, r.MediaURLs, false)
	o.sendAttachments(ctx, &out, address, r.DocURLs, true)
	return out
}

func (o *Orchestrator) sendAttachments(ctx context.Context, out *Outcome, address string, urls []string, asDocument bool) {
	label, flag := "media", SentMedia
	if asDocument {
		label, flag = "doc", SentDoc
	}

	for _, u := range urls {
		if err := o.attachmentGap.Wait(ctx); err != nil {
			out.Note(fmt.Sprintf("%s %s: %v", label, u, err))
			return
		}
		err := o.sendAttachment(ctx, address, u, asDocument)
		o.attachmentGap.Mark()
		if err != nil {
			out.Note(fmt.Sprintf("%s %s: %v", label, u, err))
			log.Warn().Err(err).Str("run_id", o.runID).Str("phone", out.Phone).Str("url", u).
				Msgf("Failed to send %s", label)
			continue
		}
		out.Sent |= flag
	}
}

func (o *Orchestrator) sendAttachment(ctx context.Context, address, url string, asDocument bool) error {
	att, err := o.fetcher.Fetch(ctx, url, asDocument)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := o.channel.SendAttachment(ctx, address, att); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
