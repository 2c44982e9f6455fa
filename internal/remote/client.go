// Package remote is the HTTPS client for the study service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"

	"github.com/conorfennell/studysync/internal/apperr"
)

const (
	defaultTimeout   = 30 * time.Second
	retryMaxInterval = 5 * time.Second
)

// Credentials supplies the bearer credential for authenticated calls.
// session.Store satisfies it.
type Credentials interface {
	Token() (string, bool)
}

// Options configures a Client. Zero values fall back to defaults; a zero
// CompressAbove disables request compression.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryInitial      time.Duration
	RequestsPerSecond float64
	Burst             int
	CompressAbove     int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to the study service.
type Client struct {
	baseURL       string
	creds         Credentials
	httpClient    *http.Client
	limiter       *rate.Limiter
	encoder       *zstd.Encoder
	compressAbove int
	maxRetries    int
	retryInitial  time.Duration
	logger        *slog.Logger
}

// New creates a client for opts.BaseURL.
func New(opts Options, creds Credentials) (*Client, error) {
	if _, err := url.Parse(opts.BaseURL); err != nil || opts.BaseURL == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	retryInitial := opts.RetryInitial
	if retryInitial <= 0 {
		retryInitial = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		creds:         creds,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, burst),
		encoder:       encoder,
		compressAbove: opts.CompressAbove,
		maxRetries:    opts.MaxRetries,
		retryInitial:  retryInitial,
		logger:        logger,
	}, nil
}

type request struct {
	method string
	path   string

	json      any
	form      url.Values
	multipart *multipartFile

	anonymous      bool
	retry          bool
	idempotencyKey string
}

type multipartFile struct {
	field    string
	filename string
	content  io.Reader
	fields   map[string]string
}

type encodedBody struct {
	payload         []byte
	contentType     string
	contentEncoding string
}

// do sends r and decodes a 2xx JSON response into out. Requests marked retry
// are repeated with exponential backoff while the failure is retryable.
func (c *Client) do(ctx context.Context, r request, out any) error {
	body, err := c.encode(r)
	if err != nil {
		return err
	}

	if !r.retry || c.maxRetries <= 0 {
		return c.roundTrip(ctx, r, body, out)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := c.roundTrip(ctx, r, body, out)
		if err != nil && !apperr.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *Client) encode(r request) (encodedBody, error) {
	switch {
	case r.json != nil:
		payload, err := json.Marshal(r.json)
		if err != nil {
			return encodedBody{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		body := encodedBody{payload: payload, contentType: "application/json"}
		if c.compressAbove > 0 && len(payload) >= c.compressAbove {
			body.payload = c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
			body.contentEncoding = "zstd"
		}
		return body, nil
	case r.form != nil:
		return encodedBody{
			payload:     []byte(r.form.Encode()),
			contentType: "application/x-www-form-urlencoded",
		}, nil
	case r.multipart != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range r.multipart.fields {
			if err := w.WriteField(k, v); err != nil {
				return encodedBody{}, fmt.Errorf("failed to write form field %s: %w", k, err)
			}
		}
		part, err := w.CreateFormFile(r.multipart.field, r.multipart.filename)
		if err != nil {
			return encodedBody{}, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, r.multipart.content); err != nil {
			return encodedBody{}, fmt.Errorf("failed to read upload content: %w", err)
		}
		if err := w.Close(); err != nil {
			return encodedBody{}, fmt.Errorf("failed to finish multipart body: %w", err)
		}
		return encodedBody{payload: buf.Bytes(), contentType: w.FormDataContentType()}, nil
	}
	return encodedBody{}, nil
}

func (c *Client) roundTrip(ctx context.Context, r request, body encodedBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if body.payload != nil {
		bodyReader = bytes.NewReader(body.payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+"/"+strings.TrimLeft(r.path, "/"), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body.contentType != "" {
		req.Header.Set("Content-Type", body.contentType)
	}
	if body.contentEncoding != "" {
		req.Header.Set("Content-Encoding", body.contentEncoding)
	}
	if r.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.idempotencyKey)
	}
	if !r.anonymous {
		token, ok := c.creds.Token()
		if !ok {
			return apperr.ErrAuthenticationRequired
		}
		req.Header.Set("Authorization", token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperr.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transient(fmt.Errorf("failed to read response body: %w", err))
	}
	c.logger.Debug("Remote request", "method", r.method, "path", r.path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.RemoteError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", r.path, err)
	}
	return nil
}

// QuotaFromError extracts the quota carried by a 429 body, if any.
func QuotaFromError(err error) (GenerationLimit, bool) {
	var remote *apperr.RemoteError
	if !errors.As(err, &remote) || remote.Code != http.StatusTooManyRequests {
		return GenerationLimit{}, false
	}
	var detail limitDetail
	if json.Unmarshal([]byte(remote.Body), &detail) != nil || detail.Detail.Limit == 0 {
		return GenerationLimit{}, false
	}
	d := detail.Detail
	return GenerationLimit{
		Used:            d.Used,
		Remaining:       max(d.Limit-d.Used, 0),
		Limit:           d.Limit,
		HoursUntilReset: d.HoursUntilReset,
	}, true
}
