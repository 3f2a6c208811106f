package errreport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultHistorySize is the number of events kept when none is configured.
const DefaultHistorySize = 50

// Event is a reported error as kept in history and sent to subscribers.
type Event struct {
	Seq      uint64    `json:"seq"`
	Op       string    `json:"op"`
	Category Category  `json:"category"`
	Level    Level     `json:"level"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message"`
	Attempts int       `json:"attempts"`
	Time     time.Time `json:"time"`
}

// Config controls retries and history size.
type Config struct {
	Retry       RetryPolicy
	HistorySize int
}

// Reporter records categorized errors, retries network failures and
// notifies subscribers of warnings and errors.
type Reporter struct {
	mu      sync.Mutex
	cfg     Config
	log     *slog.Logger
	history []Event
	seq     uint64
	subs    map[uint64]func(Event)
	nextSub uint64
}

func NewReporter(cfg Config, log *slog.Logger) *Reporter {
	cfg.Retry = cfg.Retry.normalized()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		cfg:  cfg,
		log:  log,
		subs: make(map[uint64]func(Event)),
	}
}

// Subscribe registers fn for warning and error events. The returned func
// removes the subscription.
func (r *Reporter) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Report classifies err, appends it to history and notifies subscribers
// unless it is info-level. A nil err is ignored.
func (r *Reporter) Report(op string, err error) Event {
	return r.report(op, err, 1)
}

func (r *Reporter) report(op string, err error, attempts int) Event {
	if err == nil {
		return Event{}
	}
	cat, lvl := Classify(err)

	r.mu.Lock()
	r.seq++
	ev := Event{
		Seq:      r.seq,
		Op:       op,
		Category: cat,
		Level:    lvl,
		Code:     Code(err),
		Message:  err.Error(),
		Attempts: attempts,
		Time:     time.Now(),
	}
	r.history = append(r.history, ev)
	if over := len(r.history) - r.cfg.HistorySize; over > 0 {
		r.history = append(r.history[:0:0], r.history[over:]...)
	}
	var subs []func(Event)
	if lvl != LevelInfo {
		subs = make([]func(Event), 0, len(r.subs))
		for _, fn := range r.subs {
			subs = append(subs, fn)
		}
	}
	r.mu.Unlock()

	attrs := []any{"op", op, "category", cat, "code", ev.Code, "attempts", attempts, "error", err}
	switch lvl {
	case LevelInfo:
		r.log.Info("reported", attrs...)
	case LevelWarning:
		r.log.Warn("reported", attrs...)
	default:
		r.log.Error("reported", attrs...)
	}

	for _, fn := range subs {
		fn(ev)
	}
	return ev
}

// History returns a copy of the recent events, oldest first.
func (r *Reporter) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.history))
	copy(out, r.history)
	return out
}

// Clear drops the history.
func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// Policy returns the retry policy in effect.
func (r *Reporter) Policy() RetryPolicy {
	return r.cfg.Retry
}

// Do runs fn, retrying network failures with backoff. The final failure is
// reported; intermediate ones are only logged.
func (r *Reporter) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := Call(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, r *Reporter, op string, fn func(context.Context) (T, error)) (T, error) {
	policy := r.Policy()
	var (
		out     T
		lastErr error
		attempt int
	)
	for attempt = range policy.MaxAttempts {
		out, lastErr = fn(ctx)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == policy.MaxAttempts-1 {
			break
		}
		delay := policy.Backoff(attempt)
		r.log.Warn("retryable error", "op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			r.report(op, lastErr, attempt+1)
			return out, lastErr
		}
	}
	if lastErr != nil {
		r.report(op, lastErr, attempt+1)
	}
	return out, lastErr
}
