package whatsapp

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"weblast/internal/config"
	"weblast/internal/media"
	"weblast/internal/session"
)

func TestPairingEvent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		item     whatsmeow.QRChannelItem
		wantOK   bool
		wantKind session.EventKind
		wantCode string
	}{
		{"code", whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: "2@abc"}, true, session.EventPairing, "2@abc"},
		{"success", whatsmeow.QRChannelSuccess, false, 0, ""},
		{"timeout", whatsmeow.QRChannelTimeout, true, session.EventFailure, ""},
		{"pair error", whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventError, Error: errors.New("bad")}, true, session.EventFailure, ""},
		{"outdated", whatsmeow.QRChannelClientOutdated, true, session.EventFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, ok := pairingEvent(tt.item)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.wantKind || ev.Code != tt.wantCode {
				t.Fatalf("event = %+v", ev)
			}
			if ev.Kind == session.EventFailure && ev.Err == nil {
				t.Fatal("failure event without an error")
			}
		})
	}

	ev, _ := pairingEvent(whatsmeow.QRChannelTimeout)
	if !errors.Is(ev.Err, ErrPairingExpired) {
		t.Fatalf("timeout err = %v", ev.Err)
	}
}

func TestSessionEvent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      any
		wantOK   bool
		wantKind session.EventKind
	}{
		{"connected", &events.Connected{}, true, session.EventReady},
		{"logged out", &events.LoggedOut{}, true, session.EventFailure},
		{"stream replaced", &events.StreamReplaced{}, true, session.EventFailure},
		{"temporary ban", &events.TemporaryBan{}, true, session.EventFailure},
		{"client outdated", &events.ClientOutdated{}, true, session.EventFailure},
		{"connect failure", &events.ConnectFailure{Message: "nope"}, true, session.EventFailure},
		{"disconnected is retried by the client", &events.Disconnected{}, false, 0},
		{"unrelated", &events.Receipt{}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, ok := sessionEvent(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ev.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", ev.Kind, tt.wantKind)
			}
		})
	}
}

func TestRegisteredJID(t *testing.T) {
	t.Parallel()
	jid := types.NewJID("15550100100", types.DefaultUserServer)
	tests := []struct {
		name string
		resp []types.IsOnWhatsAppResponse
		want string
	}{
		{"registered", []types.IsOnWhatsAppResponse{{Query: "+15550100100", JID: jid, IsIn: true}}, "15550100100@s.whatsapp.net"},
		{"not registered", []types.IsOnWhatsAppResponse{{Query: "+15550100100", JID: jid, IsIn: false}}, ""},
		{"empty answer", nil, ""},
	}
	for _, tt := range tests {
		if got := registeredJID(tt.resp); got != tt.want {
			t.Errorf("%s: registeredJID = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAttachmentMessageByKind(t *testing.T) {
	t.Parallel()
	up := whatsmeow.UploadResponse{URL: "https://mmg/x", DirectPath: "/v/x", MediaKey: []byte{1}, FileLength: 4}
	tests := []struct {
		kind       media.Kind
		wantUpload whatsmeow.MediaType
	}{
		{media.KindImage, whatsmeow.MediaImage},
		{media.KindVideo, whatsmeow.MediaVideo},
		{media.KindAudio, whatsmeow.MediaAudio},
		{media.KindDocument, whatsmeow.MediaDocument},
	}
	for _, tt := range tests {
		att := &media.Attachment{Kind: tt.kind, MimeType: "application/pdf", Filename: "f.pdf", Data: []byte("data")}
		if got := uploadType(tt.kind); got != tt.wantUpload {
			t.Errorf("uploadType(%s) = %q", tt.kind, got)
		}

		msg := attachmentMessage(att, up)
		var directPath string
		switch tt.kind {
		case media.KindImage:
			directPath = msg.GetImageMessage().GetDirectPath()
		case media.KindVideo:
			directPath = msg.GetVideoMessage().GetDirectPath()
		case media.KindAudio:
			directPath = msg.GetAudioMessage().GetDirectPath()
		default:
			doc := msg.GetDocumentMessage()
			directPath = doc.GetDirectPath()
			if doc.GetFileName() != "f.pdf" || doc.GetFileLength() != 4 {
				t.Errorf("document = %v", doc)
			}
		}
		if directPath != "/v/x" {
			t.Errorf("%s message direct path = %q", tt.kind, directPath)
		}
	}
}

func TestDeviceBeforeInitialize(t *testing.T) {
	t.Parallel()
	d := NewDevice(&config.Config{ClientID: "c"}, nil, "run")
	ctx := context.Background()

	if id, err := d.NumberID(ctx, ""); err != nil || id != "" {
		t.Fatalf("empty phone = %q, %v", id, err)
	}
	if _, err := d.NumberID(ctx, "15550100"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("NumberID err = %v, want ErrNotStarted", err)
	}
	if err := d.SendText(ctx, "15550100@s.whatsapp.net", "hi"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("SendText err = %v, want ErrNotStarted", err)
	}

	if err := d.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := d.Initialize(ctx); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("Initialize after Destroy = %v, want ErrClosed", err)
	}
}

func TestStorePathIsPerClient(t *testing.T) {
	t.Parallel()
	a, b := StorePath("/var/lib/weblast", "shop-a"), StorePath("/var/lib/weblast", "shop-b")
	if a == b || filepath.Dir(a) != "/var/lib/weblast" {
		t.Fatalf("paths = %q %q", a, b)
	}
}
