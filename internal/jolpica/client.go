// Package jolpica is the client for the Jolpica F1 API (Ergast-compatible).
//
// Transport concerns live entirely here: request timeout, bounded retries
// with exponential backoff, and the 404 -> empty-payload convention. Loaders
// see either a decoded payload or a *SourceError.
package jolpica

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"f1etl/internal/metrics"
)

const (
	// DefaultBaseURL is the public Jolpica Ergast mirror.
	DefaultBaseURL = "https://api.jolpi.ca/ergast/f1"

	// DefaultDumpIndexURL lists downloadable bulk dumps.
	DefaultDumpIndexURL = "https://api.jolpi.ca/data/dumps/download/"

	defaultTimeout  = 30 * time.Second
	defaultRetries  = 3
	initialInterval = 2 * time.Second
)

// SourceError is a permanent fetch failure: exhausted retries or a client
// rejection. Loaders record it as a failed sync; it never crashes the run.
type SourceError struct {
	URL        string
	StatusCode int // 0 when transport-level
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jolpica: %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("jolpica: %s: %v", e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Options configures a Client. Zero values fall back to package defaults.
type Options struct {
	BaseURL      string
	DumpIndexURL string
	Timeout      time.Duration
	MaxAttempts  int

	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
}

// Client issues Jolpica requests with retry and decodes MRData payloads.
type Client struct {
	baseURL      string
	dumpIndexURL string
	maxAttempts  int
	httpc        *http.Client
	log          zerolog.Logger
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	dump := opts.DumpIndexURL
	if dump == "" {
		dump = DefaultDumpIndexURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetries
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      base,
		dumpIndexURL: dump,
		maxAttempts:  attempts,
		httpc:        httpc,
		log:          log.With().Str("component", "jolpica").Logger(),
	}
}

// RaceResults fetches race classification for one round.
func (c *Client) RaceResults(ctx context.Context, year, round int) (*Response, error) {
	return c.getJSON(ctx, fmt.Sprintf("/%d/%d/results.json", year, round))
}

// QualifyingResults fetches qualifying classification for one round.
func (c *Client) QualifyingResults(ctx context.Context, year, round int) (*Response, error) {
	return c.getJSON(ctx, fmt.Sprintf("/%d/%d/qualifying.json", year, round))
}

// SprintResults fetches sprint classification for one round. Rounds without a
// sprint return the empty sentinel shape.
func (c *Client) SprintResults(ctx context.Context, year, round int) (*Response, error) {
	return c.getJSON(ctx, fmt.Sprintf("/%d/%d/sprint.json", year, round))
}

// DriverStandings fetches the driver championship after round. round <= 0
// requests the season-final standings.
func (c *Client) DriverStandings(ctx context.Context, year, round int) (*Response, error) {
	if round > 0 {
		return c.getJSON(ctx, fmt.Sprintf("/%d/%d/driverStandings.json", year, round))
	}
	return c.getJSON(ctx, fmt.Sprintf("/%d/driverStandings.json", year))
}

// ConstructorStandings fetches the constructor championship after round.
// round <= 0 requests the season-final standings.
func (c *Client) ConstructorStandings(ctx context.Context, year, round int) (*Response, error) {
	if round > 0 {
		return c.getJSON(ctx, fmt.Sprintf("/%d/%d/constructorStandings.json", year, round))
	}
	return c.getJSON(ctx, fmt.Sprintf("/%d/constructorStandings.json", year))
}

// getJSON performs a GET with bounded exponential backoff.
//
// Retry policy:
//   - 404: no retry; returns the empty sentinel payload, nil error
//   - other 4xx: no retry; *SourceError
//   - 5xx / transport errors / timeouts: retried; *SourceError once exhausted
func (c *Client) getJSON(ctx context.Context, path string) (*Response, error) {
	url := c.baseURL + path

	var out *Response
	op := func() error {
		resp, err := c.do(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		metrics.IncCounter("f1etl_http_requests_total", 1, metrics.Labels{
			"status": strconv.Itoa(resp.StatusCode),
		})

		switch {
		case resp.StatusCode == http.StatusNotFound:
			out = emptyResponse()
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(&SourceError{
				URL:        url,
				StatusCode: resp.StatusCode,
				Err:        errors.Errorf("client rejected request"),
			})
		case resp.StatusCode >= 500:
			return &SourceError{
				URL:        url,
				StatusCode: resp.StatusCode,
				Err:        errors.Errorf("server error"),
			}
		}

		var decoded Response
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			// A malformed body from a 200 is treated as transient: the mirror
			// occasionally truncates responses under load.
			return &SourceError{URL: url, Err: errors.Wrap(err, "decode payload")}
		}
		out = &decoded
		return nil
	}

	if err := c.retry(ctx, url, op); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(&SourceError{URL: url, Err: err})
	}
	req.Header.Set("User-Agent", "f1etl/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(&SourceError{URL: url, Err: ctx.Err()})
		}
		return nil, &SourceError{URL: url, Err: err}
	}
	return resp, nil
}

func (c *Client) retry(ctx context.Context, url string, op backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		c.log.Warn().Err(err).Dur("retry_in", next).Str("url", url).Msg("request failed, retrying")
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}

	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr
	}
	return &SourceError{URL: url, Err: err}
}

// dumpIndex mirrors the dump listing payload.
type dumpIndex struct {
	DelayedDumps map[string]struct {
		DownloadURL string `json:"download_url"`
	} `json:"delayed_dumps"`
}

// FetchArchive downloads the pre-season CSV dump: it resolves the current
// download URL from the dump index, fetches the zip, and returns an in-memory
// archive handle shared by every pre-season loader in the run.
func (c *Client) FetchArchive(ctx context.Context) (*Archive, error) {
	var idx dumpIndex
	if err := c.getRaw(ctx, c.dumpIndexURL, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&idx)
	}); err != nil {
		return nil, err
	}

	entry, ok := idx.DelayedDumps["csv"]
	if !ok || entry.DownloadURL == "" {
		return nil, &SourceError{URL: c.dumpIndexURL, Err: errors.New("dump index has no csv download_url")}
	}

	var buf bytes.Buffer
	if err := c.getRaw(ctx, entry.DownloadURL, func(body io.Reader) error {
		_, err := io.Copy(&buf, body)
		return err
	}); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return nil, &SourceError{URL: entry.DownloadURL, Err: errors.Wrap(err, "open zip")}
	}

	c.log.Info().Int("size_bytes", buf.Len()).Int("files", len(zr.File)).Msg("bulk dump downloaded")
	return &Archive{zr: zr}, nil
}

// getRaw fetches url with the same retry policy as getJSON and hands the body
// to consume. Non-2xx is a SourceError (no 404 sentinel for the dump surface).
func (c *Client) getRaw(ctx context.Context, url string, consume func(io.Reader) error) error {
	op := func() error {
		resp, err := c.do(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		metrics.IncCounter("f1etl_http_requests_total", 1, metrics.Labels{
			"status": strconv.Itoa(resp.StatusCode),
		})

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(&SourceError{URL: url, StatusCode: resp.StatusCode, Err: errors.New("client rejected request")})
		}
		if resp.StatusCode >= 500 {
			return &SourceError{URL: url, StatusCode: resp.StatusCode, Err: errors.New("server error")}
		}
		if err := consume(resp.Body); err != nil {
			return &SourceError{URL: url, Err: err}
		}
		return nil
	}
	return c.retry(ctx, url, op)
}
