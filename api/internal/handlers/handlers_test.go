package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hostwatch/internal/model"
	"hostwatch/internal/rules"
	"hostwatch/internal/sampler"
	"hostwatch/internal/storage"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubService keeps rules in a real engine and findings in real logs
type stubService struct {
	engine    *rules.Engine
	alerts    *storage.FindingLog
	attacks   *storage.FindingLog
	devices   []model.DeviceView
	telemetry error
}

func newStubService() *stubService {
	logger := quietLogger()
	return &stubService{
		engine:  rules.NewEngine(logger),
		alerts:  storage.NewFindingLog("alerts", storage.DefaultCapacity, logger),
		attacks: storage.NewFindingLog("attacks", storage.DefaultCapacity, logger),
	}
}

func (s *stubService) Metrics(ctx context.Context) (model.MetricsView, error) {
	if s.telemetry != nil {
		return model.MetricsView{}, s.telemetry
	}
	return model.MetricsView{CPU: "10.00", Memory: "20.00", Uptime: "0d 1h 0m"}, nil
}

func (s *stubService) Network(ctx context.Context) (model.NetworkView, error) {
	if s.telemetry != nil {
		return model.NetworkView{}, s.telemetry
	}
	return model.NetworkView{Incoming: "1.00", Outgoing: "2.00"}, nil
}

func (s *stubService) Devices() []model.DeviceView { return s.devices }

func (s *stubService) Rules() []model.RuleConfig {
	var out []model.RuleConfig
	for _, r := range s.engine.Rules() {
		out = append(out, r.Config())
	}
	return out
}

func (s *stubService) AddRule(name, condition string) (model.RuleConfig, error) {
	r, err := s.engine.AddRule(name, condition)
	return r.Config(), err
}

func (s *stubService) DeleteRule(index int) error { return s.engine.DeleteRule(index) }

func (s *stubService) Alerts() []model.FindingView  { return s.views(s.alerts.List()) }
func (s *stubService) Attacks() []model.FindingView { return s.views(s.attacks.List()) }

func (s *stubService) Intrusions() []model.FindingView {
	return s.views(s.alerts.Filter(model.CategoryViolation))
}

func (s *stubService) Anomalies() []model.FindingView {
	return s.views(s.alerts.Filter(model.CategoryAnomaly))
}

func (s *stubService) SubscribeAlerts(filter storage.Filter, buffer int) *storage.Subscriber {
	return s.alerts.Subscribe(filter, buffer)
}

func (s *stubService) UnsubscribeAlerts(sub *storage.Subscriber) { s.alerts.Unsubscribe(sub) }

func (s *stubService) View(f model.Finding) model.FindingView {
	return model.FindingView{ID: f.ID, Message: f.Message, Category: f.Category, Severity: f.Severity}
}

func (s *stubService) views(findings []model.Finding) []model.FindingView {
	out := make([]model.FindingView, 0, len(findings))
	for _, f := range findings {
		out = append(out, s.View(f))
	}
	return out
}

func newRouter(s Service) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(s, quietLogger()).Register(router.PathPrefix("/api/v1").Subrouter())
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestAddRule(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"valid", `{"name":"High","condition":"incoming > 1000"}`, http.StatusCreated, "Rule added successfully"},
		{"missing name", `{"condition":"incoming > 1000"}`, http.StatusBadRequest, "Name and condition are required"},
		{"missing condition", `{"name":"High"}`, http.StatusBadRequest, "Name and condition are required"},
		{"malformed condition", `{"name":"High","condition":"incoming >> 1000"}`, http.StatusBadRequest, "invalid rule condition"},
		{"not json", `name=High`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(newStubService())
			rec := do(router, http.MethodPost, "/api/v1/rules", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRulesListAndDelete(t *testing.T) {
	s := newStubService()
	router := newRouter(s)

	do(router, http.MethodPost, "/api/v1/rules", `{"name":"A","condition":"incoming > 1"}`)
	do(router, http.MethodPost, "/api/v1/rules", `{"name":"B","condition":"outgoing <= 2.5"}`)

	rec := do(router, http.MethodGet, "/api/v1/rules", "")
	var list []model.RuleConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode rules: %v", err)
	}
	if len(list) != 2 || list[1].Condition != "outgoing <= 2.5" {
		t.Fatalf("unexpected rules %+v", list)
	}

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/v1/rules/abc", http.StatusBadRequest},
		{"/api/v1/rules/5", http.StatusBadRequest},
		{"/api/v1/rules/-1", http.StatusBadRequest},
		{"/api/v1/rules/0", http.StatusOK},
	}
	for _, tt := range tests {
		if rec := do(router, http.MethodDelete, tt.path, ""); rec.Code != tt.wantStatus {
			t.Errorf("DELETE %s: expected %d, got %d", tt.path, tt.wantStatus, rec.Code)
		}
	}

	if rules := s.Rules(); len(rules) != 1 || rules[0].Name != "B" {
		t.Errorf("expected only B to remain, got %+v", rules)
	}
}

func TestTelemetryFailureIs500(t *testing.T) {
	s := newStubService()
	s.telemetry = fmt.Errorf("%w: boom", sampler.ErrTelemetryUnavailable)
	router := newRouter(s)

	for _, path := range []string{"/api/v1/metrics", "/api/v1/network"} {
		rec := do(router, http.MethodGet, path, "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Telemetry unavailable") {
			t.Errorf("%s: unexpected body %s", path, rec.Body.String())
		}
	}
}

func TestFindingViews(t *testing.T) {
	s := newStubService()
	s.alerts.Record(model.NewFinding(model.CategoryViolation, "High violated: incoming > 1000 (Current: 1200.00 Kbps)", ""))
	s.alerts.Record(model.NewFinding(model.CategoryAnomaly, "Anomaly detected: Incoming traffic 10000.00 Kbps", ""))
	s.attacks.Record(model.NewFinding(model.CategoryAttack, "Potential port scan detected from 1.2.3.4: 11 connections", ""))
	router := newRouter(s)

	tests := []struct {
		path      string
		wantCount int
		wantFirst model.Category
	}{
		{"/api/v1/alerts", 2, model.CategoryAnomaly},
		{"/api/v1/attacks", 1, model.CategoryAttack},
		{"/api/v1/intrusions", 1, model.CategoryViolation},
		{"/api/v1/anomalies", 1, model.CategoryAnomaly},
	}
	for _, tt := range tests {
		rec := do(router, http.MethodGet, tt.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.path, rec.Code)
		}
		var views []model.FindingView
		if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
			t.Fatalf("%s: failed to decode: %v", tt.path, err)
		}
		if len(views) != tt.wantCount || views[0].Category != tt.wantFirst {
			t.Errorf("%s: unexpected views %+v", tt.path, views)
		}
	}
}

func TestGetDevicesAndMetrics(t *testing.T) {
	s := newStubService()
	s.devices = []model.DeviceView{{ID: "1.2.3.4:443", IP: "1.2.3.4", Port: "443", ConnectionCount: 2}}
	router := newRouter(s)

	rec := do(router, http.MethodGet, "/api/v1/devices", "")
	if !strings.Contains(rec.Body.String(), `"connectionCount":2`) {
		t.Errorf("unexpected devices body %s", rec.Body.String())
	}

	rec = do(router, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"uptime":"0d 1h 0m"`) {
		t.Errorf("unexpected metrics response %d %s", rec.Code, rec.Body.String())
	}
}

func TestStreamAlerts(t *testing.T) {
	s := newStubService()
	server := httptest.NewServer(newRouter(s))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream/alerts?category=anomaly"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	// the subscription is registered after the upgrade, so keep recording
	// until the client has read one
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.alerts.Record(model.NewFinding(model.CategoryViolation, "filtered out", ""))
				s.alerts.Record(model.NewFinding(model.CategoryAnomaly, "spike", ""))
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var view model.FindingView
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("no finding streamed: %v", err)
	}
	if view.Category != model.CategoryAnomaly || view.Message != "spike" {
		t.Fatalf("unexpected streamed finding %+v", view)
	}
}
