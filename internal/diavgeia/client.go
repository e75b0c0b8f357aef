package diavgeia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

const (
	// DefaultBaseURL is the registry's open-data root.
	DefaultBaseURL = "https://diavgeia.gov.gr/opendata"
	// MaxPageSize is the largest page the registry serves.
	MaxPageSize = 500
	// DefaultRequestDelay is the minimum gap between consecutive requests.
	DefaultRequestDelay = 200 * time.Millisecond
	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 30 * time.Second

	dateLayout = "2006-01-02"
)

// PageFunc receives the raw body of every fetched page.
type PageFunc func(ctx context.Context, t domain.DecisionType, w domain.Window, page int, raw []byte)

// WindowResult is everything fetched for one (type, window) pair.
type WindowResult struct {
	Type          domain.DecisionType
	Window        domain.Window
	Decisions     []Decision
	DeclaredTotal int
	Pages         int
}

// Mismatch reports whether the registry's declared total disagrees with what was received.
func (r *WindowResult) Mismatch() bool {
	return r.DeclaredTotal != len(r.Decisions)
}

// Client pages through search.json for a single organization.
// Requests are serialized and spaced at least the configured delay apart.
type Client struct {
	httpClient *http.Client
	baseURL    string
	orgID      string
	pageSize   int
	delay      time.Duration
	onPage     PageFunc

	mu   sync.Mutex
	last time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithPageSize sets the page size; values are clamped to [1, MaxPageSize].
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = clampPageSize(n) }
}

// WithRequestDelay sets the minimum gap between requests.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Client) {
		if d < 0 {
			d = 0
		}
		c.delay = d
	}
}

// WithPageHook registers a callback for raw page bodies.
func WithPageHook(fn PageFunc) Option {
	return func(c *Client) { c.onPage = fn }
}

// NewClient builds a client for the given organization.
func NewClient(baseURL, orgID string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		orgID:      orgID,
		pageSize:   MaxPageSize,
		delay:      DefaultRequestDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func clampPageSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// PageSize returns the effective page size.
func (c *Client) PageSize() int { return c.pageSize }

// FetchWindow retrieves every decision of type t issued within w.
// Pages are requested in order starting at 0; the page count is derived from
// the declared total of the first response. On failure the decisions gathered
// so far are returned together with a *domain.FetchError.
func (c *Client) FetchWindow(ctx context.Context, t domain.DecisionType, w domain.Window) (*WindowResult, error) {
	log := logger.FromContext(ctx)
	res := &WindowResult{Type: t, Window: w}
	if w.Empty() {
		return res, nil
	}

	totalPages := 1
	for page := 0; page < totalPages; page++ {
		resp, err := c.fetchPage(ctx, t, w, page)
		if err != nil {
			return res, &domain.FetchError{Type: t, Window: w, Page: page, Err: err}
		}
		if page == 0 {
			res.DeclaredTotal = resp.Info.Total
			totalPages = (resp.Info.Total + c.pageSize - 1) / c.pageSize
		}
		res.Decisions = append(res.Decisions, resp.Decisions...)
		res.Pages++
		log.Debug().
			Str("type", string(t)).
			Str("window", w.String()).
			Int("page", page).
			Int("received", len(resp.Decisions)).
			Int("declared_total", res.DeclaredTotal).
			Msg("fetched page")
	}
	return res, nil
}

func (c *Client) fetchPage(ctx context.Context, t domain.DecisionType, w domain.Window, page int) (*SearchResponse, error) {
	raw, err := c.get(ctx, c.searchURL(t, w, page))
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("fetchPage: decoding response: %w", err)
	}
	if c.onPage != nil {
		c.onPage(ctx, t, w, page, raw)
	}
	return &resp, nil
}

func (c *Client) searchURL(t domain.DecisionType, w domain.Window, page int) string {
	q := url.Values{}
	q.Set("org", c.orgID)
	q.Set("type", string(t))
	q.Set("from_issue_date", w.From.In(time.UTC).Format(dateLayout))
	q.Set("to_issue_date", w.LastDay().In(time.UTC).Format(dateLayout))
	q.Set("size", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))
	return c.baseURL + "/search.json?" + q.Encode()
}

// get performs one paced request and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	defer func() { c.last = time.Now() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("get: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get: reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// pace blocks until at least delay has passed since the previous response.
func (c *Client) pace(ctx context.Context) error {
	if c.last.IsZero() || c.delay <= 0 {
		return ctx.Err()
	}
	wait := c.delay - time.Since(c.last)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
