package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func healthy(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", healthy))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))
	handler.RegisterChecker("other", NewSimpleChecker("other", healthy))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["storage"].Message != "connection refused" {
		t.Errorf("unexpected storage check: %+v", response.Checks["storage"])
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", healthy))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %s", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("not ready")
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "storage") {
		t.Errorf("expected failed check name in body, got %q", w.Body.String())
	}
}

func TestReadinessHandler_DegradedIsReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("outbox", NewBacklogChecker("outbox", func() (int, time.Time, error) {
		return 0, time.Time{}, errors.New("stats unavailable")
	}, time.Minute))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("degraded service should stay ready, got %d", w.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("postgres", fakePinger{}).Check(context.Background())
	if ok.Status != StatusHealthy || ok.Name != "postgres" {
		t.Errorf("unexpected check: %+v", ok)
	}

	failed := NewPingChecker("postgres", fakePinger{err: errors.New("timeout")}).Check(context.Background())
	if failed.Status != StatusUnhealthy || failed.Message != "timeout" {
		t.Errorf("unexpected check: %+v", failed)
	}
}

func TestSimpleChecker_ReceivesDeadline(t *testing.T) {
	handler := NewHandler("v1.0.0")

	var hadDeadline bool
	handler.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}))

	status, checks := handler.Run(context.Background())
	if status != StatusHealthy || len(checks) != 1 {
		t.Fatalf("unexpected result: %s %+v", status, checks)
	}
	if !hadDeadline {
		t.Error("checker context should carry a deadline")
	}
}

func TestBacklogChecker(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pending int
		oldest  time.Time
		want    Status
	}{
		{name: "empty", pending: 0, want: StatusHealthy},
		{name: "fresh backlog", pending: 3, oldest: now.Add(-10 * time.Second), want: StatusHealthy},
		{name: "stale backlog", pending: 3, oldest: now.Add(-10 * time.Minute), want: StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewBacklogChecker("outbox", func() (int, time.Time, error) {
				return tt.pending, tt.oldest, nil
			}, time.Minute)
			checker.now = func() time.Time { return now }

			check := checker.Check(context.Background())
			if check.Status != tt.want {
				t.Errorf("expected %s, got %s (%s)", tt.want, check.Status, check.Message)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	if got := aggregate(nil); got != StatusHealthy {
		t.Errorf("empty checks should be healthy, got %s", got)
	}
	got := aggregate(map[string]Check{
		"a": {Status: StatusDegraded},
		"b": {Status: StatusHealthy},
	})
	if got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
}

func TestRun_ConcurrentCallsShareOnePass(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	handler := NewHandler("test")
	handler.RegisterChecker("slow", NewSimpleChecker("slow", func(context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	}))

	var wg sync.WaitGroup
	results := make([]Status, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = handler.Run(context.Background())
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = handler.Run(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one checker call for concurrent runs, got %d", got)
	}
	for i, status := range results {
		if status != StatusHealthy {
			t.Fatalf("run %d: expected healthy, got %s", i, status)
		}
	}

	handler.Run(context.Background())
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected a fresh pass after the shared one finished, got %d calls", got)
	}
}
