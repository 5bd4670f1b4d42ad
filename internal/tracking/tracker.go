// internal/tracking/tracker.go
package tracking

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/markysoft/vani/api/schemas"
)

// Clock supplies the time used to stamp request records.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RequestConfig describes an outgoing request as seen by the dispatch hook.
type RequestConfig struct {
	URL     string
	Method  string
	Type    string
	Options map[string]interface{}
	// SentAt is when the page dispatched the request. The zero value means
	// now, by the tracker clock.
	SentAt time.Time
}

// Tracker records the asynchronous requests a page starts and answers
// point queries against that log.
//
// The log lives for one page lifetime: it grows with every request and is only
// cleared by Reset, which the session calls when the main frame navigates.
// There is no size bound.
type Tracker struct {
	logger *zap.Logger
	clock  Clock

	mu      sync.RWMutex
	records []schemas.RequestRecord

	// active counts requests started but not yet finished or failed.
	active atomic.Int64
	// attached is set once a dispatch hook feeds this tracker.
	attached atomic.Bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used for timestamps.
func WithClock(c Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates an empty tracker. It stays detached (and its log empty) until a
// dispatch hook calls Attach.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		logger:  zap.NewNop(),
		clock:   systemClock{},
		records: make([]schemas.RequestRecord, 0),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("tracker")
	return t
}

// Attach marks the tracker as fed by a request-dispatch hook.
func (t *Tracker) Attach() {
	if t.attached.CompareAndSwap(false, true) {
		t.logger.Debug("Request dispatch hook attached.")
	}
}

// Enabled reports whether a dispatch hook is attached. A detached tracker
// answers every query with false.
func (t *Tracker) Enabled() bool {
	return t.attached.Load()
}

// Now returns the tracker clock's current time in Unix milliseconds. Callers
// use it to take the lower bound for HasRequestSince.
func (t *Tracker) Now() int64 {
	return t.clock.Now().UnixMilli()
}

// RecordStart appends a record for a request that is about to be sent.
// It never fails and never blocks on anything but the log lock.
func (t *Tracker) RecordStart(cfg RequestConfig) {
	ts := t.Now()
	if !cfg.SentAt.IsZero() {
		ts = cfg.SentAt.UnixMilli()
	}
	rec := schemas.RequestRecord{
		URL:       cfg.URL,
		Timestamp: ts,
		Method:    cfg.Method,
		Type:      cfg.Type,
	}
	if len(cfg.Options) > 0 {
		rec.Options = make(map[string]interface{}, len(cfg.Options))
		for k, v := range cfg.Options {
			rec.Options[k] = v
		}
	}

	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()

	t.logger.Debug("Request started.", zap.String("url", rec.URL), zap.Int64("timestamp", rec.Timestamp))
}

// HasRequestSince reports whether a request whose URL matches pattern started
// strictly after since (Unix milliseconds). The pattern is an unanchored
// regular expression used as given; a malformed pattern is returned as an
// error. Records are scanned in insertion order and the scan stops at the
// first match.
func (t *Tracker) HasRequestSince(pattern string, since int64) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, rec := range t.records {
		if rec.Timestamp > since && re.MatchString(rec.URL) {
			return true, nil
		}
	}
	return false, nil
}

// Records returns a snapshot of the log in insertion order.
func (t *Tracker) Records() []schemas.RequestRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]schemas.RequestRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of records in the log.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Reset starts a new page lifetime: the log and the in-flight count are cleared.
func (t *Tracker) Reset() {
	t.mu.Lock()
	dropped := len(t.records)
	t.records = make([]schemas.RequestRecord, 0)
	t.mu.Unlock()
	t.active.Store(0)

	t.logger.Debug("Request log reset.", zap.Int("dropped", dropped))
}

// Begin counts a request as in flight.
func (t *Tracker) Begin() {
	t.active.Add(1)
}

// Finish counts an in-flight request as done. The counter never goes below zero.
func (t *Tracker) Finish() {
	for {
		cur := t.active.Load()
		if cur <= 0 {
			return
		}
		if t.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Active returns the number of requests currently in flight.
func (t *Tracker) Active() int64 {
	return t.active.Load()
}
