// Package health tracks the readiness of the service's dependencies
// (database, index oracle, ledger store) with periodic probes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependency states.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Events dispatched on state transitions.
const (
	EventDegraded  = "dependency.degraded"
	EventRecovered = "dependency.recovered"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency. A nil error means healthy.
type Probe struct {
	Name     string
	Critical bool // a degraded critical dependency makes the service not ready
	Check    func(ctx context.Context) error
}

// DependencyStatus is the last known state of a probe.
type DependencyStatus struct {
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Critical  bool       `json:"critical"`
	FailCount int        `json:"fail_count"`
	LastCheck *time.Time `json:"last_check,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// DispatchFunc is an optional callback for dispatching state transitions.
type DispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Checker runs periodic dependency probes.
type Checker struct {
	probes     []Probe
	cfg        Config
	onDispatch DispatchFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger

	mu     sync.RWMutex
	states map[string]*DependencyStatus
}

// New creates a new Checker.
func New(probes []Probe, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	states := make(map[string]*DependencyStatus, len(probes))
	for _, p := range probes {
		states[p.Name] = &DependencyStatus{Name: p.Name, Status: StatusUnknown, Critical: p.Critical}
	}
	return &Checker{probes: probes, cfg: cfg, states: states, logger: logger}
}

// SetDispatch configures the transition callback.
func (h *Checker) SetDispatch(fn DispatchFunc) {
	h.onDispatch = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start probes once immediately and then every CheckInterval until ctx is
// cancelled.
func (h *Checker) Start(ctx context.Context) {
	go func() {
		h.CheckAll(ctx)
		ticker := time.NewTicker(h.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.CheckAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CheckAll runs every probe concurrently and waits for them.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			h.check(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (h *Checker) check(ctx context.Context, p Probe) {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := p.Check(probeCtx)
	cancel()

	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(p.Name, success)
	}

	now := time.Now().UTC()
	h.mu.Lock()
	st := h.states[p.Name]
	prev := st.Status
	st.LastCheck = &now
	if success {
		st.FailCount = 0
		st.LastError = ""
		st.Status = StatusHealthy
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Status = StatusDegraded
		}
	}
	next := st.Status
	count := st.FailCount
	h.mu.Unlock()

	switch {
	case prev == StatusDegraded && next == StatusHealthy:
		h.logger.Info("health: recovered", zap.String("dependency", p.Name))
		h.dispatch(ctx, EventRecovered, p.Name, "")
	case prev != StatusDegraded && next == StatusDegraded:
		h.logger.Warn("health: degraded",
			zap.String("dependency", p.Name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		h.dispatch(ctx, EventDegraded, p.Name, err.Error())
	}
}

func (h *Checker) dispatch(ctx context.Context, event, name, reason string) {
	if h.onDispatch == nil {
		return
	}
	payload := map[string]string{"dependency": name}
	if reason != "" {
		payload["error"] = reason
	}
	h.onDispatch(ctx, event, payload)
}

// Ready reports whether no critical dependency is degraded. Dependencies
// not yet probed count as ready.
func (h *Checker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, st := range h.states {
		if st.Critical && st.Status == StatusDegraded {
			return false
		}
	}
	return true
}

// Statuses returns a snapshot of every dependency, sorted by name.
func (h *Checker) Statuses() []DependencyStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DependencyStatus, 0, len(h.states))
	for _, st := range h.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Handler serves the readiness report: 200 when ready, 503 otherwise.
func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code, status := http.StatusOK, "ready"
		if !h.Ready() {
			code, status = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(code, gin.H{"status": status, "dependencies": h.Statuses()})
	}
}
