package matchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-match/internal/logging"
	"github.com/example/face-match/internal/matcher"
)

const (
	// DefaultPath is the analyze endpoint of the matching service.
	DefaultPath = "/api/analyze"
	// DefaultTimeout bounds a single submission.
	DefaultTimeout = 30 * time.Second

	formField       = "image"
	processingError = "processing_error"
	maxErrorBody    = 512
	// MaxResponseSize caps the analyze response body.
	MaxResponseSize = 1 << 20
)

// Client submits captured images to the remote matching service over HTTP.
type Client struct {
	baseURL    *url.URL
	path       string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-submission deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPath overrides the analyze endpoint path.
func WithPath(path string) Option {
	return func(c *Client) { c.path = path }
}

// New returns a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("could not parse match service url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("match service url must be http(s), got %q", baseURL)
	}

	c := &Client{
		baseURL:    parsed,
		path:       DefaultPath,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("matchclient")
	return c, nil
}

type analyzeResponse struct {
	Success      bool         `json:"success"`
	Matches      []matchEntry `json:"matches"`
	Error        string       `json:"error,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

type matchEntry struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	NameUz     string   `json:"name_uz,omitempty"`
	Category   string   `json:"category,omitempty"`
	Image      string   `json:"image,omitempty"`
	Percentage *float64 `json:"percentage"`
}

// Submit sends one image and returns the ranked candidates. Every error it
// returns is a *matcher.Failure. There is no retry.
func (c *Client) Submit(ctx context.Context, image matcher.CapturedImage) (matcher.ResultSet, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	results, err := c.submit(ctx, image)
	if err != nil {
		var failure *matcher.Failure
		if !errors.As(err, &failure) {
			failure = matcher.Failed(err)
		}
		if failure.Kind == matcher.RequestFailed {
			wrapped := logging.NewOperationError("matchclient.submit", "", failure.Err)
			c.logger.Warn("match request failed", zap.Error(wrapped))
		} else {
			c.logger.Info("no face detected", zap.Error(failure.Err))
		}
		return nil, failure
	}
	c.logger.Debug("match request succeeded", zap.Int("candidates", len(results)))
	return results, nil
}

func (c *Client) submit(ctx context.Context, image matcher.CapturedImage) (matcher.ResultSet, error) {
	body, contentType, err := encodeImage(image)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if len(raw) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}

	var payload analyzeResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return c.parse(payload)
}

func (c *Client) parse(payload analyzeResponse) (matcher.ResultSet, error) {
	if !payload.Success {
		cause := serviceError(payload)
		if payload.Error == processingError {
			return nil, matcher.Failed(cause)
		}
		return nil, matcher.NoFace(cause)
	}
	if len(payload.Matches) == 0 {
		return nil, matcher.NoFace(errors.New("empty match list"))
	}

	candidates := make([]matcher.Candidate, 0, len(payload.Matches))
	for i, m := range payload.Matches {
		if m.ID == "" || m.Name == "" {
			return nil, matcher.Failed(fmt.Errorf("match %d: missing id or name", i))
		}
		if m.Percentage == nil {
			return nil, matcher.Failed(fmt.Errorf("match %d: missing percentage", i))
		}
		score := *m.Percentage
		if math.IsNaN(score) || score < 0 || score > 100 {
			return nil, matcher.Failed(fmt.Errorf("match %d: score %v out of range", i, score))
		}
		candidates = append(candidates, matcher.Candidate{
			ID:            m.ID,
			Name:          m.Name,
			LocalizedName: m.NameUz,
			Category:      m.Category,
			Score:         score,
			ImageURL:      c.resolveURL(m.Image),
		})
	}
	return matcher.Rank(candidates), nil
}

func (c *Client) endpoint() string {
	return c.resolveURL(c.path)
}

// resolveURL turns service-relative paths such as "/celebrities/x.jpg" into
// absolute URLs. Absolute references pass through.
func (c *Client) resolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return ref
	}
	base := *c.baseURL
	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(parsed.Path, "/")
	base.RawQuery = parsed.RawQuery
	return base.String()
}

func encodeImage(image matcher.CapturedImage) (io.Reader, string, error) {
	if image.IsZero() {
		return nil, "", matcher.Failed(matcher.ErrEmptyImage)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	contentType := image.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="capture.jpg"`, formField))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("could not copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("could not close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

func serviceError(payload analyzeResponse) error {
	switch {
	case payload.ErrorMessage != "":
		return fmt.Errorf("%s: %s", payload.Error, payload.ErrorMessage)
	case payload.Error != "":
		return errors.New(payload.Error)
	default:
		return errors.New("service reported no match")
	}
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return "<unreadable body>"
	}
	return strings.TrimSpace(string(data))
}
