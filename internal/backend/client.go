package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
)

const statePath = "/api/concatenation-state"

// Options configures a Client. Zero values fall back to defaults; retries are
// disabled unless RetryMaxAttempts is above 1.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	HTTPClient       *http.Client
}

// Client talks to the analysis backend over HTTP.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewClient returns a client for the backend at opt.BaseURL.
func NewClient(opt Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opt.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend url cannot be empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", base, err)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.RetryMaxAttempts <= 0 {
		opt.RetryMaxAttempts = 1
	}
	if opt.RetryBaseDelay <= 0 {
		opt.RetryBaseDelay = 500 * time.Millisecond
	}
	if opt.RetryMaxDelay <= 0 {
		opt.RetryMaxDelay = 4 * time.Second
	}
	hc := opt.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opt.Timeout}
	}
	return &Client{
		httpClient:       hc,
		baseURL:          base,
		retryMaxAttempts: opt.RetryMaxAttempts,
		retryBaseDelay:   opt.RetryBaseDelay,
		retryMaxDelay:    opt.RetryMaxDelay,
	}, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// GetState fetches the record for originalFileName. It returns (nil, nil)
// when the backend has no such record. A stored record that fails validation
// is reported as an EnvelopeError.
func (c *Client) GetState(ctx context.Context, originalFileName string) (*concat.State, error) {
	path := statePath + "/" + url.PathEscape(originalFileName)
	var env Envelope[json.RawMessage]
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	st, res, err := concat.DecodeDocument(env.Data)
	if err != nil {
		return nil, &EnvelopeError{Path: path, Err: err}
	}
	if !res.IsValid {
		return nil, &EnvelopeError{Path: path, Message: "stored state is invalid: " + strings.Join(res.Errors, "; ")}
	}
	return st, nil
}

// PutState upserts st keyed by its OriginalFileName.
func (c *Client) PutState(ctx context.Context, st *concat.State) error {
	if st == nil {
		return errors.New("state cannot be nil")
	}
	path := statePath + "/" + url.PathEscape(st.OriginalFileName)
	var env Envelope[json.RawMessage]
	return c.do(ctx, http.MethodPut, path, st, &env)
}

// DeleteState removes the record for originalFileName. Deleting an absent
// record is not an error.
func (c *Client) DeleteState(ctx context.Context, originalFileName string) error {
	path := statePath + "/" + url.PathEscape(originalFileName)
	var env Envelope[json.RawMessage]
	err := c.do(ctx, http.MethodDelete, path, nil, &env)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// ListStates returns the file names of every stored record.
func (c *Client) ListStates(ctx context.Context) ([]string, error) {
	var env Envelope[StateList]
	if err := c.do(ctx, http.MethodGet, statePath, nil, &env); err != nil {
		return nil, err
	}
	if env.Data.Names == nil {
		return []string{}, nil
	}
	return env.Data.Names, nil
}

// FilteredData returns the rows matching req. brand is forwarded unmodified.
func (c *Client) FilteredData(ctx context.Context, brand string, req FilterRequest) (*transform.APITable, error) {
	var env Envelope[*transform.APITable]
	if err := c.do(ctx, http.MethodPost, withBrand("/api/filtered-data", brand), req, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ConcatenateSheets asks the backend to build the concatenated file.
func (c *Client) ConcatenateSheets(ctx context.Context, req ConcatenateRequest) (*ConcatenateResult, error) {
	var env Envelope[*ConcatenateResult]
	if err := c.do(ctx, http.MethodPost, "/api/concatenate-sheets", req, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, &EnvelopeError{Path: "/api/concatenate-sheets", Message: "missing data"}
	}
	return env.Data, nil
}

// Histograms returns column distributions. brand is forwarded unmodified.
func (c *Client) Histograms(ctx context.Context, brand string, req HistogramRequest) ([]transform.HistogramResult, error) {
	var env Envelope[[]transform.HistogramResult]
	if err := c.do(ctx, http.MethodPost, withBrand("/api/histograms", brand), req, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []transform.HistogramResult{}, nil
	}
	return env.Data, nil
}

func withBrand(path, brand string) string {
	if brand == "" {
		return path
	}
	return path + "?brand=" + url.QueryEscape(brand)
}

// do sends one JSON request and decodes the envelope into out. Network
// timeouts, 429 and 5xx responses are retried while attempts remain.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}
	endpoint := c.baseURL + path
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rdr io.Reader
		if payload != nil {
			rdr = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		reqID := uuid.NewString()
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", reqID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &UnreachableError{Host: c.baseURL, Err: err}
			if isRetryableNetErr(err) && attempt < c.retryMaxAttempts {
				if err := sleepCtx(ctx, c.capDelay(withJitter(backoff))); err != nil {
					return err
				}
				backoff *= 2
				continue
			}
			return lastErr
		}

		retry, delay, err := c.handle(resp, path, reqID, out)
		log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Dur("elapsed", time.Since(start)).
			Msg("backend request")
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt >= c.retryMaxAttempts {
			break
		}
		if delay <= 0 {
			delay = c.capDelay(withJitter(backoff))
			backoff *= 2
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// handle consumes resp. It reports whether the failure is retryable and, if
// the backend sent Retry-After, how long to wait.
func (c *Client) handle(resp *http.Response, path, reqID string, out any) (bool, time.Duration, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Path: path, RequestID: extractRequestID(resp, reqID)}
		var env Envelope[json.RawMessage]
		if json.Unmarshal(body, &env) == nil && env.Error != "" {
			apiErr.Message = env.Error
		} else if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "{") {
			apiErr.Message = s
		}
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		var delay time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
				delay = c.capDelay(time.Duration(secs) * time.Second)
			}
		}
		return retry, delay, classify(apiErr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, 0, &EnvelopeError{Path: path, Err: err}
	}
	if ok, msg := envelopeStatus(out); !ok {
		return false, 0, &EnvelopeError{Path: path, Message: msg}
	}
	return false, 0, nil
}

type envelopeStatuser interface {
	status() (bool, string)
}

func (e *Envelope[T]) status() (bool, string) {
	if e.Success {
		return true, ""
	}
	if e.Error == "" {
		return false, "backend reported failure"
	}
	return false, e.Error
}

func envelopeStatus(out any) (bool, string) {
	if s, ok := out.(envelopeStatuser); ok {
		return s.status()
	}
	return true, ""
}

func (c *Client) capDelay(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfterSeconds interprets a Retry-After value as seconds or an
// HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

func extractRequestID(resp *http.Response, fallback string) string {
	for _, k := range []string{"X-Request-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return fallback
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
