package health

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check — результат проверки одного компонента.
type Check struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет здоровье компонента в пределах ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler обслуживает /healthz и /readyz.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	timeout   time.Duration
	inflight  singleflight.Group
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
	}
}

// RegisterChecker регистрирует проверку компонента
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

type runResult struct {
	status Status
	checks map[string]Check
}

// Run выполняет все проверки параллельно и возвращает общий статус.
// Одновременные вызовы (/healthz, /readyz, gRPC health) разделяют один проход.
func (h *Handler) Run(ctx context.Context) (Status, map[string]Check) {
	v, _, _ := h.inflight.Do("checks", func() (any, error) {
		status, checks := h.runChecks(ctx)
		return runResult{status: status, checks: checks}, nil
	})
	res := v.(runResult)
	return res.status, maps.Clone(res.checks)
}

func (h *Handler) runChecks(ctx context.Context) (Status, map[string]Check) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			check := checker.Check(ctx)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	return aggregate(checks), checks
}

// aggregate: любой unhealthy делает сервис unhealthy, degraded понижает healthy.
func aggregate(checks map[string]Check) Status {
	overall := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// ServeHTTP отдаёт подробный JSON со статусом всех проверок.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	overall, checks := h.Run(r.Context())

	response := Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503 и перечисляет упавшие проверки, если хоть одна unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	overall, checks := h.Run(r.Context())
	if overall != StatusUnhealthy {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}

	failed := make([]string, 0, len(checks))
	for name, check := range checks {
		if check.Status == StatusUnhealthy {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, "not ready: %v", failed)
}

// SimpleChecker оборачивает функцию проверки.
type SimpleChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

// NewSimpleChecker создаёт простую проверку
func NewSimpleChecker(name string, checkFn func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{
		name:    name,
		checkFn: checkFn,
	}
}

// Pinger — компонент, доступность которого проверяется пингом (например, postgres.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker проверяет компонент через Ping.
func NewPingChecker(name string, p Pinger) *SimpleChecker {
	return NewSimpleChecker(name, p.Ping)
}

// Check выполняет проверку
func (c *SimpleChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.checkFn(ctx)
	duration := time.Since(start)

	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		Duration:   duration,
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// OutboxStatsFunc возвращает размер backlog и время самого старого сообщения.
type OutboxStatsFunc func() (pending int, oldest time.Time, err error)

// BacklogChecker помечает сервис degraded, если outbox копится дольше maxAge.
type BacklogChecker struct {
	name   string
	stats  OutboxStatsFunc
	maxAge time.Duration
	now    func() time.Time
}

// NewBacklogChecker создаёт проверку backlog transactional outbox.
func NewBacklogChecker(name string, stats OutboxStatsFunc, maxAge time.Duration) *BacklogChecker {
	return &BacklogChecker{name: name, stats: stats, maxAge: maxAge, now: time.Now}
}

// Check выполняет проверку
func (c *BacklogChecker) Check(_ context.Context) Check {
	start := time.Now()
	pending, oldest, err := c.stats()
	duration := time.Since(start)

	check := Check{Name: c.name, Status: StatusHealthy, Duration: duration, DurationMs: duration.Milliseconds()}
	switch {
	case err != nil:
		check.Status = StatusDegraded
		check.Message = err.Error()
	case pending > 0 && !oldest.IsZero() && c.now().Sub(oldest) > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending events, oldest %s ago", pending, c.now().Sub(oldest).Round(time.Second))
	}
	return check
}
