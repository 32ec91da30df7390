package status

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/dispatch/pkg/pool"
)

func testSnapshot() Snapshot {
	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	return Snapshot{
		Time:            started.Add(time.Minute),
		AppGroupName:    "/srv/app",
		Generation:      1,
		Iterations:      1,
		MainLoopRunning: true,
		SoftShutdown:    "idle",
		Endpoints:       []string{"main;unix:/tmp/backend.x;session;2", "http;tcp://127.0.0.1:4000;http;1"},
		Workers: []pool.SlotInfo{
			{ID: 1, Name: "Worker 1", Endpoint: "main", Idle: true, Started: started},
			{ID: 2, Name: "Worker 2", Endpoint: "main", Idle: false, Started: started},
			{ID: 3, Name: "HTTP helper worker", Endpoint: "http", Idle: true, Started: started},
		},
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name      string
		stacks    bool
		wantStack bool
	}{
		{name: "inventory only", stacks: false, wantStack: false},
		{name: "with goroutine stacks", stacks: true, wantStack: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, testSnapshot(), tt.stacks); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			out := buf.String()

			for _, want := range []string{
				"App group:      /srv/app",
				"generation=1",
				"### Workers (3 live, 2 idle)",
				"HTTP helper worker",
				"main;unix:/tmp/backend.x;session;2",
			} {
				if !strings.Contains(out, want) {
					t.Errorf("report missing %q:\n%s", want, out)
				}
			}
			if got := strings.Contains(out, "goroutine "); got != tt.wantStack {
				t.Errorf("stacks present = %v, want %v", got, tt.wantStack)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	h := Handler(SourceFunc(testSnapshot))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Workers) != 3 || got.Workers[2].Name != "HTTP helper worker" {
		t.Errorf("workers = %+v", got.Workers)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, Path, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE code = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "every five minutes", schedule: "*/5 * * * *", wantRunning: true},
		{name: "descriptor", schedule: "@hourly", wantRunning: true},
		{name: "empty schedule", schedule: "", wantRunning: false},
		{name: "invalid schedule", schedule: "not a schedule", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.schedule, SourceFunc(testSnapshot), slog.Default())
			err := s.Start(context.Background())
			defer s.Stop()

			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && s.NextRun() == nil {
				t.Error("expected a next run time")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler("@every 1h", SourceFunc(testSnapshot), nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduler_Report(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := NewScheduler("@hourly", SourceFunc(testSnapshot), logger)

	s.Report()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if rec["workers_live"] != float64(3) || rec["workers_idle"] != float64(2) {
		t.Errorf("log record = %v", rec)
	}
	if rec["component"] != "status.scheduler" {
		t.Errorf("component = %v", rec["component"])
	}
}
