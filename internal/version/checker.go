package version

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"faillog/internal/logger"
)

// ErrFetchBlocked means the environment forbids the outbound request; the checker stops for the session.
var ErrFetchBlocked = errors.New("version: report fetch blocked")

// DefaultInterval is the wait between two checks.
const DefaultInterval = 12 * time.Hour

const reportBodyLimit = 1 << 20

// Fetcher loads the raw usage report.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notifier shows a one-line notification to the operator.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// HTTPFetcher fetches the report with a plain GET.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("version: build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			return nil, fmt.Errorf("%w: %v", ErrFetchBlocked, err)
		}
		return nil, fmt.Errorf("version: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("version: fetch status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, reportBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("version: read report: %w", err)
	}
	return data, nil
}

// CheckerConfig 描述更新检查的参数。
type CheckerConfig struct {
	ReportURL string
	Current   string
	MinUsage  int
	Interval  time.Duration
}

// Status is the externally visible state of the checker.
type Status struct {
	Current   string    `json:"current"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
	NextAt    time.Time `json:"next_at,omitempty"`
	Blocked   bool      `json:"blocked"`
	Recommend string    `json:"recommend,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Checker runs at most one check per interval. Claim arms the next slot; Check does the I/O.
type Checker struct {
	cfg      CheckerConfig
	fetcher  Fetcher
	notifier Notifier
	nowFn    func() time.Time

	mu      sync.Mutex
	checkMu sync.Mutex
	nextAt  time.Time
	blocked bool
	status  Status
}

func NewChecker(cfg CheckerConfig, fetcher Fetcher, notifier Notifier) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinUsage < 0 {
		cfg.MinUsage = 0
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(0)
	}
	return &Checker{
		cfg:      cfg,
		fetcher:  fetcher,
		notifier: notifier,
		nowFn:    time.Now,
		status:   Status{Current: cfg.Current},
	}
}

// SetClock overrides the time source, for tests.
func (c *Checker) SetClock(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	c.nowFn = fn
}

// Claim reports whether a check is due and, if so, re-arms the timer.
func (c *Checker) Claim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocked {
		return false
	}
	now := c.nowFn()
	if !c.nextAt.IsZero() && now.Before(c.nextAt) {
		return false
	}
	c.nextAt = now.Add(c.cfg.Interval)
	c.status.NextAt = c.nextAt
	return true
}

// Reset forgets the schedule and the blocked state; the next Claim succeeds.
func (c *Checker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextAt = time.Time{}
	c.blocked = false
	c.status = Status{Current: c.cfg.Current}
}

func (c *Checker) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Check fetches and evaluates the report once.
func (c *Checker) Check(ctx context.Context) (Decision, error) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	data, err := c.fetcher.Fetch(ctx, c.cfg.ReportURL)
	if err != nil {
		if errors.Is(err, ErrFetchBlocked) {
			c.block(err)
			return Decision{}, err
		}
		c.finish("", err)
		logger.Tracef(3, "[version] update check failed: %v", err)
		return Decision{}, err
	}

	records, err := ParseReport(data)
	if err != nil {
		c.finish("", err)
		logger.Tracef(8, "[version] %v", err)
		return Decision{}, err
	}
	d, err := Resolve(records, c.cfg.Current, c.cfg.MinUsage)
	if err != nil {
		c.finish("", err)
		logger.Tracef(8, "[version] my version %s not found!", c.cfg.Current)
		return d, err
	}

	if logger.Enabled(7) {
		logger.Tracef(7, "[version] sorted version list:")
		for _, r := range d.Sorted {
			logger.Tracef(7, "[version] %s (%08X), count = %d", r.Version, Ordinal(r.Version), r.UsageCount)
		}
	}
	for _, v := range d.Lossy {
		logger.Tracef(5, "[version] %s has a component above 255, packed ordinal is ambiguous", v)
	}
	logger.Tracef(5, "[version] found %d newer versions", d.Position)

	c.finish(d.Recommend, nil)
	if d.Recommend != "" {
		c.announce(ctx, d.Recommend)
	}
	return d, nil
}

func (c *Checker) announce(ctx context.Context, v string) {
	bar := strings.Repeat("!", 76)
	logger.WarnBlock(strings.Join([]string{
		bar, " ", "A NEW VERSION OF THIS PLUGIN IS AVAILABLE!", " ", "PLEASE UPDATE TO VERSION: " + v, " ", bar,
	}, "\n"))
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, "FailLog: new version available!", "Please download and install "+v); err != nil {
		logger.Tracef(3, "[version] notify failed: %v", err)
	}
}

func (c *Checker) block(err error) {
	c.mu.Lock()
	c.blocked = true
	c.nextAt = time.Time{}
	c.status.Blocked = true
	c.status.NextAt = time.Time{}
	c.status.CheckedAt = c.nowFn()
	c.status.LastError = err.Error()
	c.mu.Unlock()

	logger.Tracef(8, "[version] %v", err)
	logger.InfoBlock(strings.Join([]string{
		" ",
		"NOTICE! Unable to check for plugin update!",
		"Outbound connections are not permitted for this process.",
		"Allow access to the report host, or check the plugin forum for an update.",
		" ",
	}, "\n"))
}

func (c *Checker) finish(recommend string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.CheckedAt = c.nowFn()
	c.status.Recommend = recommend
	c.status.LastError = ""
	if err != nil {
		c.status.LastError = err.Error()
	}
}
