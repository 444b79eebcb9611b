package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var ErrTooLarge = errors.New("attachment exceeds size limit")

// Kind is how an attachment is presented by the channel.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

// Attachment is a downloaded file ready to be uploaded to the channel.
type Attachment struct {
	URL      string
	Kind     Kind
	MimeType string
	Filename string
	Data     []byte
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads rawURL. Documents are always sent as KindDocument;
// other attachments are typed by their detected MIME type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, asDocument bool) (*Attachment, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)
	}

	mimeType := detectMime(data, resp.Header.Get("Content-Type"))
	kind := KindDocument
	if !asDocument {
		kind = kindOf(mimeType)
	}

	return &Attachment{
		URL:      rawURL,
		Kind:     kind,
		MimeType: mimeType,
		Filename: filename(u, resp.Header.Get("Content-Disposition"), mimeType),
		Data:     data,
	}, nil
}

func detectMime(data []byte, header string) string {
	detected := mimetype.Detect(data)
	if !detected.Is("application/octet-stream") {
		return stripParams(detected.String())
	}
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "" {
		return mt
	}
	return detected.String()
}

func stripParams(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		return strings.TrimSpace(mt[:i])
	}
	return mt
}

func kindOf(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

func filename(u *url.URL, disposition, mimeType string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	name := path.Base(u.Path)
	if name != "" && name != "." && name != "/" {
		return name
	}
	ext := ""
	if m := mimetype.Lookup(mimeType); m != nil {
		ext = m.Extension()
	}
	return "attachment" + ext
}
