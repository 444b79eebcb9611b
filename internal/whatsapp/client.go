package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"weblast/internal/config"
	"weblast/internal/media"
	"weblast/internal/session"
)

var (
	ErrNotConfigured  = errors.New("whatsapp: WHATSAPP_TOKEN and PHONE_NUMBER_ID are required")
	ErrUnknownChannel = errors.New("whatsapp: unknown WHATSAPP_CHANNEL")
)

// Client is a WhatsApp Cloud API session for one blast run.
type Client struct {
	Config *config.Config
	RunID  string

	http *http.Client
	db   *gorm.DB

	mu     sync.Mutex
	events chan session.Event
	closed bool
}

func NewClient(cfg *config.Config, db *gorm.DB, runID string) *Client {
	return &Client{
		Config: cfg,
		RunID:  runID,
		http:   &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		db:     db,
	}
}

// NewFactory returns a session.Factory opening a fresh channel per run,
// either a paired multi-device session or a Cloud API Client depending on
// cfg.Channel.
func NewFactory(cfg *config.Config, db *gorm.DB) session.Factory {
	return func(runID string) (session.Channel, error) {
		switch cfg.Channel {
		case "multidevice", "":
			return NewDevice(cfg, db, runID), nil
		case "cloud":
			if cfg.WhatsAppToken == "" || cfg.PhoneNumberID == "" {
				return nil, ErrNotConfigured
			}
			return NewClient(cfg, db, runID), nil
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownChannel, cfg.Channel)
		}
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	Text             *TextObj  `json:"text,omitempty"`
	Image            *MediaObj `json:"image,omitempty"`
	Video            *MediaObj `json:"video,omitempty"`
	Audio            *MediaObj `json:"audio,omitempty"`
	Document         *MediaObj `json:"document,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type MediaResponse struct {
	ID string `json:"id"`
}

type phoneNumberInfo struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

// --- Helper Functions ---

func (c *Client) endpoint(parts ...string) string {
	return strings.TrimRight(c.Config.WhatsAppAPIURL, "/") + "/" + strings.Join(parts, "/")
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}, headers map[string]string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

// --- Session Lifecycle ---

// Initialize checks the phone number ID against the Cloud API. Cloud API
// sessions need no pairing, so the stream carries a single ready event.
func (c *Client) Initialize(ctx context.Context) (<-chan session.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, session.ErrClosed
	}
	if c.events != nil {
		return nil, errors.New("whatsapp: session already initialized")
	}

	resp, err := c.sendRequest(ctx, http.MethodGet, c.endpoint(c.Config.PhoneNumberID)+"?fields=id,display_phone_number,verified_name", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("verify phone number: %w", err)
	}
	var info phoneNumberInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("verify phone number: %w", err)
	}
	log.Info().
		Str("run_id", c.RunID).
		Str("client_id", c.Config.ClientID).
		Str("display_phone_number", info.DisplayPhoneNumber).
		Str("verified_name", info.VerifiedName).
		Msg("WhatsApp session ready")

	c.events = make(chan session.Event, 1)
	c.events <- session.Event{Kind: session.EventReady}
	return c.events, nil
}

// NumberID accepts any 7 to 15 digit phone as a Cloud API wa_id. The Cloud
// API reports unregistered numbers only when a send fails.
func (c *Client) NumberID(_ context.Context, phone string) (string, error) {
	if len(phone) < 7 || len(phone) > 15 {
		return "", nil
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", nil
		}
	}
	return phone, nil
}

func (c *Client) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.events != nil {
		close(c.events)
	}
	c.http.CloseIdleConnections()
	return nil
}

// --- Messaging Methods ---

func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) error {
	_, err := c.sendRequest(ctx, http.MethodPost, c.endpoint(c.Config.PhoneNumberID, "messages"), msg, nil)

	content := fmt.Sprintf("%s message", msg.Type)
	switch {
	case msg.Text != nil:
		content = msg.Text.Body
	case msg.Document != nil && msg.Document.Filename != "":
		content = "document: " + msg.Document.Filename
	}
	c.sendLog().outgoing(msg.To, content, msg.Type, err)

	return err
}

func (c *Client) SendText(ctx context.Context, address, body string) error {
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             "text",
		Text: &TextObj{
			Body: body,
		},
	}
	return c.SendRawMessage(ctx, msg)
}

// SendAttachment uploads the file and sends it by media ID.
func (c *Client) SendAttachment(ctx context.Context, address string, att *media.Attachment) error {
	uploaded, err := c.UploadMedia(ctx, att.Data, att.MimeType, att.Filename)
	if err != nil {
		return err
	}
	c.sendLog().media(uploaded.ID, att)

	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             string(att.Kind),
	}
	obj := &MediaObj{ID: uploaded.ID}
	switch att.Kind {
	case media.KindImage:
		msg.Image = obj
	case media.KindVideo:
		msg.Video = obj
	case media.KindAudio:
		msg.Audio = obj
	default:
		msg.Type = string(media.KindDocument)
		obj.Filename = att.Filename
		msg.Document = obj
	}
	return c.SendRawMessage(ctx, msg)
}

// --- Media Methods ---

func (c *Client) UploadMedia(ctx context.Context, fileData []byte, mimeType, filename string) (*MediaResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(fileData); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.Config.PhoneNumberID, "media"), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upload failed: %s - %s", resp.Status, string(respBody))
	}

	var mediaResp MediaResponse
	if err := json.Unmarshal(respBody, &mediaResp); err != nil {
		return nil, err
	}
	if mediaResp.ID == "" {
		return nil, errors.New("upload failed: empty media id")
	}

	return &mediaResp, nil
}

// --- Message Log ---

func (c *Client) sendLog() sendLog {
	return sendLog{db: c.db, runID: c.RunID, clientID: c.Config.ClientID}
}
