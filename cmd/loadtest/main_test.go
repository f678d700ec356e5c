package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders/internal/transport/httpapi"
)

const (
	testUserUUID = "5a9b1f4e-0c1d-4a6e-9a52-6f2d3b7f0a01"
	testItemUUID = "0f3c8b2a-7d41-4e55-8c1a-2b9e4d6f1a11"
)

func newOrdersAPI(t *testing.T, withItems bool) (*httptest.Server, domain.OrderRepository) {
	t.Helper()

	ctx := context.Background()
	orderRepo := memory.NewOrderRepository()
	users := memory.NewUserRepository()
	items := memory.NewItemRepository()
	require.NoError(t, users.Create(ctx, domain.User{UUID: testUserUUID, Email: "load@example.com"}))
	if withItems {
		require.NoError(t, items.Create(ctx, domain.Item{UUID: testItemUUID, Name: "load item", Price: decimal.NewFromInt(5)}))
	}

	logger := log.WithField("test", "loadtest")
	store := orders.NewStore(orderRepo, users, items, orders.WithLogger(logger))
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(store, items, logger), nil))
	t.Cleanup(srv.Close)
	return srv, orderRepo
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-addr", "http://orders:8080/",
		"-user", testUserUUID,
		"-items", testItemUUID + ", ,other",
		"-mode", "create-update",
		"-total", "7",
		"-duration", "1m",
		"-concurrency", "3",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://orders:8080", cfg.baseURL)
	assert.Equal(t, []string{testItemUUID, "other"}, cfg.items)
	assert.Equal(t, modeCreateUpdate, cfg.mode)
	assert.True(t, cfg.totalSet)
	assert.Equal(t, "duration:1m0s,max-total:7", runTarget(cfg))
}

func TestParseConfig_Errors(t *testing.T) {
	tests := map[string][]string{
		"user is required":        {},
		"unsupported mode":        {"-user", "u", "-mode", "create-pay"},
		"concurrency must be > 0": {"-user", "u", "-concurrency", "0"},
		"timeout must be > 0":     {"-user", "u", "-timeout", "0s"},
		"total must be > 0":       {"-user", "u", "-total", "0"},
		"duration must be >= 0":   {"-user", "u", "-duration", "-1s"},
	}

	for want, args := range tests {
		t.Run(want, func(t *testing.T) {
			_, err := parseConfig(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
		})
	}
}

func TestRun_CreateUpdateDelete(t *testing.T) {
	srv, orderRepo := newOrdersAPI(t, true)

	cfg := config{
		baseURL:     srv.URL,
		user:        testUserUUID,
		total:       12,
		concurrency: 4,
		timeout:     2 * time.Second,
		mode:        modeCreateUpdateDelete,
	}
	result, err := run(context.Background(), cfg, srv.Client())
	require.NoError(t, err)

	assert.EqualValues(t, 12, result.TotalScenarios)
	assert.Zero(t, result.FailedScenarios)
	assert.EqualValues(t, 12, result.Requests["POST /orders"].Statuses["201"])
	assert.EqualValues(t, 12, result.Requests["PUT /orders/{uuid}"].Statuses["200"])
	assert.EqualValues(t, 12, result.Requests["DELETE /orders/{uuid}"].Statuses["204"])
	assert.EqualValues(t, 1, result.Requests["GET /items"].Calls)

	remaining, err := orderRepo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRun_CreateFailsForUnknownItem(t *testing.T) {
	srv, _ := newOrdersAPI(t, true)

	cfg := config{
		baseURL:     srv.URL,
		user:        testUserUUID,
		items:       []string{"9c2d7e1f-3b5a-4c8d-a6e2-1f0b8d4c2a22"},
		total:       3,
		concurrency: 1,
		timeout:     2 * time.Second,
		mode:        modeCreate,
	}
	result, err := run(context.Background(), cfg, srv.Client())
	require.NoError(t, err)

	assert.EqualValues(t, 3, result.FailedScenarios)
	assert.InDelta(t, 1.0, result.ErrorRate, 1e-9)
	assert.Zero(t, result.Requests["POST /orders"].Success)
}

func TestRun_EmptyCatalog(t *testing.T) {
	srv, _ := newOrdersAPI(t, false)

	_, err := run(context.Background(), config{
		baseURL: srv.URL, user: testUserUUID, total: 1, concurrency: 1, timeout: time.Second, mode: modeCreate,
	}, srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog is empty")
}

func TestDispatchJobs_DurationStopsAtTotal(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(context.Background(), jobs, config{duration: time.Minute, total: 3, totalSet: true})

	var got []int
	for j := range jobs {
		got = append(got, j)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestPercentileAndSummary(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
}

func TestReportOutput(t *testing.T) {
	col := newCollector()
	col.record(scenarioKey, 10*time.Millisecond, "ok", true)
	col.record(scenarioKey, 20*time.Millisecond, "failed", false)
	col.record("POST /orders", 5*time.Millisecond, "201", true)
	result := col.buildReport(time.Now(), time.Second)

	assert.EqualValues(t, 2, result.TotalScenarios)
	assert.InDelta(t, 0.5, result.ErrorRate, 1e-9)
	assert.InDelta(t, 2.0, result.RPS, 1e-9)
	assert.NotContains(t, result.Requests, scenarioKey)

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCreate, total: 2})
	assert.Contains(t, out.String(), "mode=create run=count:2 total=2 success=1 failed=1")
	assert.Contains(t, out.String(), "POST /orders: calls=1")

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, writeJSONReport("report.json", result))
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 2, decoded.TotalScenarios)

	assert.Error(t, writeJSONReport("../escape.json", result))
	assert.Error(t, writeJSONReport(".", result))
}

