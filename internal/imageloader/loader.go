package imageloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxBytes  = 20 << 20 // 20MB
	DefaultMaxPixels = 50_000_000
	userAgent        = "food-api/1.0"
)

// DownloadError means the remote image could not be retrieved.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return e.Err.Error()
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// DecodeError means the bytes were retrieved but are not a supported image.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return "cannot identify image file: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Image is a decoded picture plus what the decoder reported about it.
type Image struct {
	image.Image
	Format string
	Bytes  int
}

type Loader struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	maxPixels int64
}

type Option func(*Loader)

// WithHTTPClient uses a copy of c. The caller's client is never modified.
// A non-zero Timeout on c is kept unless WithTimeout is also given.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		cc := *c
		l.client = &cc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		l.maxBytes = n
	}
}

// WithMaxPixels caps width*height as declared by the image header.
func WithMaxPixels(n int64) Option {
	return func(l *Loader) {
		l.maxPixels = n
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{
		client:    &http.Client{},
		maxBytes:  DefaultMaxBytes,
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(l)
	}
	switch {
	case l.timeout > 0:
		l.client.Timeout = l.timeout
	case l.client.Timeout == 0:
		l.client.Timeout = DefaultTimeout
	}
	return l
}

// Fetch performs exactly one GET against url and decodes the body.
func (l *Loader) Fetch(ctx context.Context, url string) (*Image, error) {
	data, err := l.download(ctx, url)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	// the header alone decides how much memory the decoder will allocate
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > l.maxPixels {
		return nil, &DecodeError{URL: url, Err: fmt.Errorf("image dimensions %dx%d exceed limit of %d pixels", cfg.Width, cfg.Height, l.maxPixels)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}

	log.Debug().
		Str("url", url).
		Str("format", format).
		Int("bytes", len(data)).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("image fetched")

	return &Image{Image: img, Format: format, Bytes: len(data)}, nil
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s for url: %s", resp.Status, url)
	}

	if resp.ContentLength > l.maxBytes {
		return nil, fmt.Errorf("image size %d exceeds limit of %d bytes for url: %s", resp.ContentLength, l.maxBytes, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("image exceeds limit of %d bytes for url: %s", l.maxBytes, url)
	}
	return data, nil
}

// IsAcquisitionError reports whether err came from downloading or decoding.
func IsAcquisitionError(err error) bool {
	var downloadErr *DownloadError
	var decodeErr *DecodeError
	return errors.As(err, &downloadErr) || errors.As(err, &decodeErr)
}
