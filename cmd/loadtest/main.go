package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

type loadMode string

const (
	modeCreate             loadMode = "create"
	modeCreateUpdate       loadMode = "create-update"
	modeCreateUpdateDelete loadMode = "create-update-delete"
)

const maxScenarioItems = 3

type config struct {
	baseURL     string
	user        string
	items       []string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
		itemsRaw  string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "orders HTTP API base URL")
	fs.StringVar(&cfg.user, "user", "", "uuid of an existing user that owns generated orders")
	fs.StringVar(&itemsRaw, "items", "", "comma-separated item uuids; empty means discover via GET /items")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-update | create-update-delete")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.user = strings.TrimSpace(cfg.user)
	for _, item := range strings.Split(itemsRaw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			cfg.items = append(cfg.items, item)
		}
	}

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("addr is required")
	case cfg.user == "":
		return cfg, errors.New("user is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateUpdate, modeCreateUpdateDelete:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg, &http.Client{})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run гоняет сценарии конкурентно и возвращает сводный отчёт.
func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	api := &apiClient{baseURL: cfg.baseURL, http: httpClient, timeout: cfg.timeout, col: newCollector()}

	items := cfg.items
	if len(items) == 0 {
		discovered, err := api.discoverItems(ctx)
		if err != nil {
			return report{}, err
		}
		items = discovered
	}
	if len(items) > maxScenarioItems {
		items = items[:maxScenarioItems]
	}

	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				api.runScenario(ctx, cfg, items, index)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return api.col.buildReport(startedAt, time.Since(startedAt)), nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func (c *apiClient) discoverItems(ctx context.Context) ([]string, error) {
	var views []domain.ItemView
	if _, err := c.do(ctx, "GET /items", http.MethodGet, "/items/", nil, http.StatusOK, &views); err != nil {
		return nil, fmt.Errorf("discover items: %w", err)
	}
	if len(views) == 0 {
		return nil, errors.New("catalog is empty, pass -items or seed the catalog")
	}
	items := make([]string, 0, len(views))
	for _, v := range views {
		items = append(items, v.UUID)
	}
	return items, nil
}

func (c *apiClient) runScenario(ctx context.Context, cfg config, items []string, index int) {
	start := time.Now()
	err := c.scenario(ctx, cfg, items, index)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	c.col.record(scenarioKey, time.Since(start), status, err == nil)
}

func (c *apiClient) scenario(ctx context.Context, cfg config, items []string, index int) error {
	// Количество растёт с номером сценария, чтобы заказы различались суммой.
	quantity := index%5 + 1

	var created domain.OrderView
	form := url.Values{"user": {cfg.user}, "items": {itemsField(items, quantity)}}
	if _, err := c.do(ctx, "POST /orders", http.MethodPost, "/orders/", form, http.StatusCreated, &created); err != nil {
		return err
	}
	if created.UUID == "" {
		return errors.New("create response returned empty order uuid")
	}
	if cfg.mode == modeCreate {
		return nil
	}

	form = url.Values{"items": {itemsField(items[:1], quantity+1)}}
	if _, err := c.do(ctx, "PUT /orders/{uuid}", http.MethodPut, "/orders/"+created.UUID, form, http.StatusOK, nil); err != nil {
		return err
	}
	if cfg.mode == modeCreateUpdate {
		return nil
	}

	_, err := c.do(ctx, "DELETE /orders/{uuid}", http.MethodDelete, "/orders/"+created.UUID, nil, http.StatusNoContent, nil)
	return err
}

// itemsField кодирует пары [item_uuid, quantity] в формат поля items.
func itemsField(items []string, quantity int) string {
	pairs := make([][2]any, 0, len(items))
	for _, item := range items {
		pairs = append(pairs, [2]any{item, quantity})
	}
	raw, _ := json.Marshal(pairs)
	return string(raw)
}

// do выполняет запрос, записывает его в collector и декодирует тело в out, если out не nil.
func (c *apiClient) do(ctx context.Context, name, method, path string, form url.Values, wantStatus int, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), "error", false)
		return 0, err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == wantStatus
	if ok && out != nil {
		if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
			ok = false
			err = fmt.Errorf("decode %s response: %w", name, decodeErr)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	c.col.record(name, time.Since(start), fmt.Sprint(resp.StatusCode), ok)

	if err != nil {
		return resp.StatusCode, err
	}
	if !ok {
		return resp.StatusCode, fmt.Errorf("%s: unexpected status %d", name, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
