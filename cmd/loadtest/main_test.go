package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpsvc "github.com/vladislavdragonenkov/shopqueue/internal/service/http"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/queue"
	"github.com/vladislavdragonenkov/shopqueue/internal/seed"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/memory"
)

const testStaffToken = "staff-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// newShopServer поднимает HTTP API поверх in-memory хранилища с демо-данными.
func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	store := memory.NewStore()
	fx, err := seed.Default()
	require.NoError(t, err)
	_, err = seed.Apply(context.Background(), store, store, fx, entry)
	require.NoError(t, err)

	manager := lifecycle.NewManager(store, store, queue.NewLedger(), lifecycle.WithLogger(entry))
	server := httpsvc.NewServer(manager, httpsvc.WithLogger(entry), httpsvc.WithStaffToken(testStaffToken))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func baseConfig(url string) config {
	return config{
		baseURL:     url,
		total:       12,
		concurrency: 4,
		timeout:     2 * time.Second,
		mode:        modeCreateCancel,
		shopID:      "shop-downtown",
		menuItemID:  "downtown-latte",
		customers:   []string{"alice", "bob"},
		checkQueue:  true,
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modeCreate, modeCreateCancel, modeCreateServe} {
		got, err := parseMode(" " + string(mode) + " ")
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	_, err := parseMode("create-pay")
	require.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseConfig(nil)
		require.NoError(t, err)

		assert.Equal(t, "http://localhost:8080", cfg.baseURL)
		assert.Equal(t, 400, cfg.total)
		assert.False(t, cfg.totalSet)
		assert.Equal(t, modeCreateCancel, cfg.mode)
		assert.Equal(t, []string{"alice", "bob"}, cfg.customers)
		assert.Equal(t, 5*time.Second, cfg.timeout)
		assert.True(t, cfg.checkQueue)
	})

	t.Run("flags", func(t *testing.T) {
		cfg, err := parseConfig([]string{
			"-url=http://shop:9000/",
			"-total=7",
			"-duration=1m",
			"-mode=create-serve",
			"-staff-token=tok",
			"-customers= carol , ,dave",
			"-check-queue=false",
		})
		require.NoError(t, err)

		assert.Equal(t, "http://shop:9000", cfg.baseURL)
		assert.True(t, cfg.totalSet)
		assert.Equal(t, time.Minute, cfg.duration)
		assert.Equal(t, modeCreateServe, cfg.mode)
		assert.Equal(t, []string{"carol", "dave"}, cfg.customers)
		assert.False(t, cfg.checkQueue)
	})

	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "bad timeout", args: []string{"-timeout=x"}, wantErr: "parse timeout"},
		{name: "bad duration", args: []string{"-duration=x"}, wantErr: "parse duration"},
		{name: "bad mode", args: []string{"-mode=pay"}, wantErr: "unsupported mode"},
		{name: "empty url", args: []string{"-url= "}, wantErr: "url is required"},
		{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
		{name: "zero total", args: []string{"-total=0"}, wantErr: "total must be > 0"},
		{name: "zero total with duration", args: []string{"-duration=1s", "-total=0"}, wantErr: "explicitly set"},
		{name: "concurrency", args: []string{"-concurrency=0"}, wantErr: "concurrency must be > 0"},
		{name: "timeout", args: []string{"-timeout=0s"}, wantErr: "timeout must be > 0"},
		{name: "shop", args: []string{"-shop="}, wantErr: "shop is required"},
		{name: "menu item", args: []string{"-menu-item="}, wantErr: "menu-item is required"},
		{name: "customers", args: []string{"-customers=,"}, wantErr: "at least one customer"},
		{name: "staff token", args: []string{"-mode=create-serve"}, wantErr: "staff-token is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig(tc.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		assert.NotZero(t, count)
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		assert.Equal(t, 3, count)
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, http.StatusOK)
	c.record("scenario", 20*time.Millisecond, http.StatusUnprocessableEntity)
	c.record("CreateOrder", 15*time.Millisecond, http.StatusCreated)
	c.record("CreateOrder", 15*time.Millisecond, codeTransport)

	snap, ok := c.snapshot("scenario")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Calls)
	assert.Equal(t, int64(1), snap.Success)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, map[string]int64{"200": 1, "422": 1}, snap.Codes)

	_, ok = c.snapshot("missing")
	assert.False(t, ok)

	r := c.buildReport(time.Now(), 2*time.Second)
	assert.Equal(t, int64(2), r.TotalScenarios)
	assert.Equal(t, int64(1), r.FailedScenarios)
	assert.Positive(t, r.RPS)
	require.Contains(t, r.Methods, "CreateOrder")
	assert.Equal(t, int64(1), r.Methods["CreateOrder"].Codes["transport_error"])
}

func TestUtilityFunctions(t *testing.T) {
	assert.Equal(t, "transport_error", codeLabel(codeTransport))
	assert.Equal(t, "409", codeLabel(http.StatusConflict))

	assert.InDelta(t, 0.25, ratio(1, 4), 1e-9)
	assert.Zero(t, ratio(1, 0))

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	assert.Equal(t, 10.0, summary.Min)
	assert.Equal(t, 40.0, summary.Max)
	assert.Equal(t, 25.0, summary.Avg)
	assert.Equal(t, 25.0, summary.P50)
	assert.Equal(t, latencySummary{}, buildLatencySummary(nil))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))

	assert.Equal(t, "count:50", runTarget(config{total: 50}))
	assert.Equal(t, "duration:2s", runTarget(config{duration: 2 * time.Second}))
	assert.Equal(t, "duration:2s,max-total:10", runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}))
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, writeJSONReport(path, report{TotalScenarios: 2, SuccessScenarios: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(2), decoded.TotalScenarios)
	assert.Equal(t, int64(2), decoded.SuccessScenarios)

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../outside.json", report{}))
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario":    {Calls: 2, Success: 2},
			"CreateOrder": {Calls: 2, Success: 2},
		},
	}

	var out bytes.Buffer
	printReport(&out, r, config{mode: modeCreate, total: 2})

	assert.Contains(t, out.String(), "Load test summary")
	assert.Contains(t, out.String(), "mode=create run=count:2")
	assert.Contains(t, out.String(), "CreateOrder: calls=2")
	assert.NotContains(t, out.String(), "scenario: calls")
}

func TestRun_CreateCancelAgainstAPI(t *testing.T) {
	ts := newShopServer(t)

	result := run(baseConfig(ts.URL), ts.Client())

	assert.Equal(t, int64(12), result.TotalScenarios)
	assert.Zero(t, result.FailedScenarios)
	assert.Equal(t, int64(12), result.Methods["CreateOrder"].Codes["201"])
	assert.Equal(t, int64(12), result.Methods["GetQueuePosition"].Success)
	assert.Equal(t, int64(12), result.Methods["CancelOrder"].Success)
}

func TestRun_CreateServeAgainstAPI(t *testing.T) {
	ts := newShopServer(t)

	cfg := baseConfig(ts.URL)
	cfg.mode = modeCreateServe
	cfg.staffToken = testStaffToken
	cfg.checkQueue = false

	result := run(cfg, ts.Client())

	assert.Zero(t, result.FailedScenarios)
	assert.Equal(t, int64(12), result.Methods["CompleteOrder"].Success)
	assert.NotContains(t, result.Methods, "GetQueuePosition")
}

func TestRun_ReportsFailures(t *testing.T) {
	ts := newShopServer(t)

	t.Run("unknown customer", func(t *testing.T) {
		cfg := baseConfig(ts.URL)
		cfg.total = 3
		cfg.customers = []string{"nobody"}

		result := run(cfg, ts.Client())
		assert.Equal(t, int64(3), result.FailedScenarios)
		assert.Equal(t, int64(3), result.Methods["CreateOrder"].Codes["404"])
		assert.NotContains(t, result.Methods, "CancelOrder")
	})

	t.Run("wrong staff token", func(t *testing.T) {
		cfg := baseConfig(ts.URL)
		cfg.total = 2
		cfg.mode = modeCreateServe
		cfg.staffToken = "wrong"

		result := run(cfg, ts.Client())
		assert.Equal(t, int64(2), result.FailedScenarios)
		assert.Equal(t, int64(2), result.Methods["CompleteOrder"].Codes["401"])
	})

	t.Run("unreachable", func(t *testing.T) {
		cfg := baseConfig("http://127.0.0.1:1")
		cfg.total = 1
		cfg.timeout = 200 * time.Millisecond

		result := run(cfg, &http.Client{Timeout: cfg.timeout})
		assert.Equal(t, int64(1), result.FailedScenarios)
		assert.Equal(t, int64(1), result.Methods["CreateOrder"].Codes["transport_error"])
	})
}
