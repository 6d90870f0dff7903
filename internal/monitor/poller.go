// internal/monitor/poller.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"ihydro/internal/alerts"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/metrics"
	"ihydro/internal/common/observability"
	"ihydro/internal/models"
	"ihydro/internal/sensorapi"
	"ihydro/pkg/thresholds"
)

var (
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrAlreadyStarted    = errors.New("poller already started")
)

// Fetcher is the subset of the sensor API the poller reads.
type Fetcher interface {
	Current(ctx context.Context) (models.Reading, error)
	History(ctx context.Context, limit int) ([]models.Reading, error)
	Summary(ctx context.Context, r models.Range, w *sensorapi.Window) (models.Summary, error)
}

// AlertNotifier delivers alerts raised by a cycle.
type AlertNotifier interface {
	Notify(ctx context.Context, active []alerts.Alert) ([]models.Notification, error)
	Resolve(ctx context.Context, active []alerts.Alert)
}

// SnapshotStore persists the latest snapshot for other processes.
type SnapshotStore interface {
	Save(ctx context.Context, s Snapshot) error
}

type Option func(*Poller)

func WithNotifier(n AlertNotifier) Option { return func(p *Poller) { p.notifier = n } }

func WithSnapshotStore(s SnapshotStore) Option { return func(p *Poller) { p.store = s } }

func WithObservability(o *observability.Observability) Option {
	return func(p *Poller) { p.obs = o }
}

// Poller refreshes the snapshot on a fixed interval. The next cycle is
// scheduled only after the previous one has finished, and a manual Refresh
// never runs alongside a scheduled cycle.
type Poller struct {
	config     *Config
	api        Fetcher
	thresholds *thresholds.Registry
	notifier   AlertNotifier
	store      SnapshotStore
	obs        *observability.Observability
	logger     logger.Logger

	inFlight atomic.Bool

	mu        sync.RWMutex
	snap      Snapshot
	listeners map[int]func(Snapshot)
	nextID    int

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(cfg *Config, api Fetcher, reg *thresholds.Registry, log logger.Logger, opts ...Option) *Poller {
	if reg == nil {
		reg = thresholds.Default()
	}
	p := &Poller{
		config:     cfg,
		api:        api,
		thresholds: reg,
		logger:     log.WithFields(map[string]interface{}{"component": "poller"}),
		snap:       Snapshot{Loading: true},
		listeners:  make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs a cycle immediately and then every interval until ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)

	p.logger.Info("poller started", map[string]interface{}{
		"interval_ms":   p.config.Interval.Milliseconds(),
		"history_limit": p.config.HistoryLimit,
	})
	return nil
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("poller stopped", nil)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.tick(ctx)

	timer := time.NewTimer(p.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.config.Interval)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.Refresh(ctx); errors.Is(err, ErrRefreshInProgress) {
		metrics.PollSkipped.Inc()
	}
}

// Refresh runs one cycle now. It returns ErrRefreshInProgress if a cycle is
// already running, otherwise the cycle's fetch error, if any.
func (p *Poller) Refresh(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer p.inFlight.Store(false)
	return p.cycle(ctx)
}

type cycleResult struct {
	current models.Reading
	history []models.Reading
	hour    models.Summary
	day     models.Summary
}

func (p *Poller) cycle(ctx context.Context) error {
	start := time.Now()
	ctx, span := p.obs.StartSpan(ctx, "monitor.cycle",
		attribute.Int("history_limit", p.config.HistoryLimit))
	defer span.End()

	var res cycleResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.current, err = p.api.Current(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		res.history, err = p.api.History(gctx, p.config.HistoryLimit)
		return err
	})
	g.Go(func() error {
		var err error
		res.hour, err = p.api.Summary(gctx, models.RangeHour, nil)
		return err
	})
	g.Go(func() error {
		var err error
		res.day, err = p.api.Summary(gctx, models.RangeDay, nil)
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fail(err)
		metrics.PollCycles.WithLabelValues("failed").Inc()
		metrics.MonitorOnline.Set(0)
		p.obs.RecordPollCycle(ctx, "failed", time.Since(start))
		p.logger.Warn("poll cycle failed", map[string]interface{}{"error": err})
		return err
	}

	active := alerts.Evaluate(res.current, p.thresholds)
	snap := p.succeed(res, active)

	metrics.PollCycles.WithLabelValues("ok").Inc()
	metrics.MonitorOnline.Set(1)
	for _, m := range models.AllMetrics {
		metrics.ActiveAlerts.WithLabelValues(string(m)).Set(0)
	}
	for _, a := range active {
		metrics.ActiveAlerts.WithLabelValues(string(a.Metric)).Set(1)
	}
	p.obs.RecordPollCycle(ctx, "ok", time.Since(start))

	p.dispatch(ctx, snap, active)
	return nil
}

func (p *Poller) succeed(res cycleResult, active []alerts.Alert) Snapshot {
	current := res.current
	hour, day := res.hour, res.day

	p.mu.Lock()
	p.snap = Snapshot{
		Current:   &current,
		History:   res.history,
		Hour:      &hour,
		Day:       &day,
		Alerts:    active,
		Online:    true,
		UpdatedAt: time.Now().UTC(),
	}
	snap := p.snap.clone()
	p.mu.Unlock()

	p.publish(snap)
	return snap
}

func (p *Poller) fail(err error) {
	p.mu.Lock()
	p.snap.Online = false
	p.snap.Loading = false
	p.snap.LastError = err.Error()
	snap := p.snap.clone()
	p.mu.Unlock()

	p.publish(snap)
}

func (p *Poller) dispatch(ctx context.Context, snap Snapshot, active []alerts.Alert) {
	if p.store != nil {
		if err := p.store.Save(ctx, snap); err != nil {
			p.logger.Warn("failed to cache snapshot", map[string]interface{}{"error": err})
		}
	}

	if p.notifier == nil || !p.config.Alerts {
		return
	}
	p.notifier.Resolve(ctx, active)
	if len(active) == 0 {
		return
	}
	sent, err := p.notifier.Notify(ctx, active)
	if err != nil {
		p.logger.Error("alert notification failed", map[string]interface{}{"error": err})
	}
	for _, n := range sent {
		p.logger.Debug("alert notification", map[string]interface{}{
			"metric":  n.Metric,
			"channel": n.Channel,
			"status":  n.Status,
		})
	}
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.clone()
}

// Subscribe registers fn to receive every new snapshot. fn runs on the
// polling goroutine and must not block. The returned func unsubscribes.
func (p *Poller) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Poller) publish(snap Snapshot) {
	p.mu.RLock()
	fns := make([]func(Snapshot), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
