package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	"gorm.io/gorm"

	"weblast/internal/config"
	"weblast/internal/media"
	"weblast/internal/session"
)

var (
	ErrNotStarted     = errors.New("whatsapp: session not initialized")
	ErrPairingExpired = errors.New("whatsapp: pairing codes expired before a phone was linked")
)

// Device is a WhatsApp multi-device session for one blast run. The linked
// device credentials live in a SQLite file named after SESSION_CLIENT_ID,
// so a phone paired once is reused by later runs.
type Device struct {
	Config *config.Config
	RunID  string

	db *gorm.DB

	mu        sync.Mutex
	container *sqlstore.Container
	client    *whatsmeow.Client
	events    chan session.Event
	stopQR    context.CancelFunc
	closed    bool
}

func NewDevice(cfg *config.Config, db *gorm.DB, runID string) *Device {
	return &Device{Config: cfg, RunID: runID, db: db}
}

// StorePath is the SQLite file holding the linked device for a client ID.
func StorePath(dir, clientID string) string {
	return filepath.Join(dir, "session-"+clientID+".db")
}

// Initialize opens the device store and connects. An unpaired store
// streams pairing codes until a phone scans one; a paired store goes
// straight to ready once connected.
func (d *Device) Initialize(ctx context.Context) (<-chan session.Event, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, session.ErrClosed
	}
	if d.events != nil {
		d.mu.Unlock()
		return nil, errors.New("whatsapp: session already initialized")
	}
	client, events, err := d.open(ctx)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Connect runs unlocked; event handlers take d.mu.
	if err := client.Connect(); err != nil {
		d.Destroy(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	return events, nil
}

// open loads the device store and prepares a client. The caller holds d.mu.
func (d *Device) open(ctx context.Context) (*whatsmeow.Client, <-chan session.Event, error) {
	path := StorePath(d.Config.SessionDir, d.Config.ClientID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("session dir: %w", err)
	}

	wlog := waLog.Zerolog(log.Logger.With().Str("run_id", d.RunID).Str("component", "whatsmeow").Logger())
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+path+"?_foreign_keys=on", wlog.Sub("Database"))
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, wlog.Sub("Client"))
	if client.Store.ID == nil {
		qrCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		qr, err := client.GetQRChannel(qrCtx)
		if err != nil {
			stop()
			container.Close()
			return nil, nil, fmt.Errorf("pairing: %w", err)
		}
		d.stopQR = stop
		go d.forwardPairing(qr)
		log.Info().Str("run_id", d.RunID).Str("client_id", d.Config.ClientID).Msg("No linked device, waiting for pairing")
	}

	d.container, d.client = container, client
	d.events = make(chan session.Event, 16)
	client.AddEventHandler(d.handleEvent)
	return client, d.events, nil
}

func (d *Device) forwardPairing(qr <-chan whatsmeow.QRChannelItem) {
	for item := range qr {
		if ev, ok := pairingEvent(item); ok {
			d.emit(ev)
		}
	}
}

func (d *Device) handleEvent(raw any) {
	ev, ok := sessionEvent(raw)
	if !ok {
		return
	}
	if ev.Kind == session.EventReady {
		d.mu.Lock()
		var jid string
		if d.client != nil && d.client.Store.ID != nil {
			jid = d.client.Store.ID.String()
		}
		d.mu.Unlock()
		log.Info().Str("run_id", d.RunID).Str("client_id", d.Config.ClientID).Str("jid", jid).
			Msg("WhatsApp session ready")
	}
	d.emit(ev)
}

func (d *Device) emit(ev session.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.events == nil {
		return
	}
	select {
	case d.events <- ev:
	default:
		log.Warn().Str("run_id", d.RunID).Str("kind", ev.Kind.String()).Msg("Session event dropped, consumer is behind")
	}
}

// pairingEvent maps a QR channel item onto the session event stream. A
// successful scan emits nothing; readiness follows from the connection.
func pairingEvent(item whatsmeow.QRChannelItem) (session.Event, bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return session.Event{Kind: session.EventPairing, Code: item.Code}, true
	case whatsmeow.QRChannelSuccess.Event:
		return session.Event{}, false
	case whatsmeow.QRChannelTimeout.Event:
		return session.Event{Kind: session.EventFailure, Err: ErrPairingExpired}, true
	case whatsmeow.QRChannelEventError:
		return session.Event{Kind: session.EventFailure, Err: fmt.Errorf("pairing: %w", item.Error)}, true
	default:
		return session.Event{Kind: session.EventFailure, Err: fmt.Errorf("pairing: %s", item.Event)}, true
	}
}

// sessionEvent maps whatsmeow connection events that matter to a run.
func sessionEvent(raw any) (session.Event, bool) {
	switch evt := raw.(type) {
	case *events.Connected:
		return session.Event{Kind: session.EventReady}, true
	case *events.LoggedOut:
		return session.Event{Kind: session.EventFailure, Err: fmt.Errorf("logged out: %v", evt.Reason)}, true
	case *events.StreamReplaced:
		return session.Event{Kind: session.EventFailure, Err: errors.New("stream replaced by another client")}, true
	case *events.TemporaryBan:
		return session.Event{Kind: session.EventFailure, Err: errors.New(evt.String())}, true
	case *events.ClientOutdated:
		return session.Event{Kind: session.EventFailure, Err: errors.New("client outdated")}, true
	case *events.ConnectFailure:
		return session.Event{Kind: session.EventFailure, Err: fmt.Errorf("connect failure: %v %s", evt.Reason, evt.Message)}, true
	}
	return session.Event{}, false
}

func (d *Device) connected() (*whatsmeow.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, session.ErrClosed
	}
	if d.client == nil {
		return nil, ErrNotStarted
	}
	return d.client, nil
}

// NumberID asks WhatsApp whether phone is registered and returns its JID.
func (d *Device) NumberID(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	client, err := d.connected()
	if err != nil {
		return "", err
	}
	resp, err := client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return "", err
	}
	return registeredJID(resp), nil
}

func registeredJID(resp []types.IsOnWhatsAppResponse) string {
	for _, r := range resp {
		if r.IsIn && !r.JID.IsEmpty() {
			return r.JID.String()
		}
	}
	return ""
}

func (d *Device) SendText(ctx context.Context, address, body string) error {
	client, err := d.connected()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(address)
	if err != nil {
		return fmt.Errorf("address %q: %w", address, err)
	}
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	d.sendLog().outgoing(address, body, "text", err)
	return err
}

// SendAttachment uploads the encrypted file and sends it as the message
// type matching its kind.
func (d *Device) SendAttachment(ctx context.Context, address string, att *media.Attachment) error {
	client, err := d.connected()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(address)
	if err != nil {
		return fmt.Errorf("address %q: %w", address, err)
	}

	uploaded, err := client.Upload(ctx, att.Data, uploadType(att.Kind))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	d.sendLog().media(uploaded.DirectPath, att)

	_, err = client.SendMessage(ctx, jid, attachmentMessage(att, uploaded))
	content := fmt.Sprintf("%s message", att.Kind)
	if att.Kind == media.KindDocument {
		content = "document: " + att.Filename
	}
	d.sendLog().outgoing(address, content, string(att.Kind), err)
	return err
}

func uploadType(kind media.Kind) whatsmeow.MediaType {
	switch kind {
	case media.KindImage:
		return whatsmeow.MediaImage
	case media.KindVideo:
		return whatsmeow.MediaVideo
	case media.KindAudio:
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func attachmentMessage(att *media.Attachment, up whatsmeow.UploadResponse) *waE2E.Message {
	switch att.Kind {
	case media.KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(att.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case media.KindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(att.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case media.KindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(att.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(att.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			FileName:      proto.String(att.Filename),
			Title:         proto.String(att.Filename),
		}}
	}
}

// Destroy disconnects and closes the device store. The linked device
// stays in the store for the next run.
func (d *Device) Destroy(context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.events != nil {
		close(d.events)
	}
	client, container, stopQR := d.client, d.container, d.stopQR
	d.mu.Unlock()

	if stopQR != nil {
		stopQR()
	}
	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			return fmt.Errorf("close session store: %w", err)
		}
	}
	return nil
}

func (d *Device) sendLog() sendLog {
	return sendLog{db: d.db, runID: d.RunID, clientID: d.Config.ClientID}
}
