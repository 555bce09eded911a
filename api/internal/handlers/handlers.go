package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"hostwatch/internal/model"
	"hostwatch/internal/rules"
	"hostwatch/internal/sampler"
	"hostwatch/internal/storage"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Service is the engine surface the handlers expose
type Service interface {
	Metrics(ctx context.Context) (model.MetricsView, error)
	Network(ctx context.Context) (model.NetworkView, error)
	Devices() []model.DeviceView
	Rules() []model.RuleConfig
	AddRule(name, condition string) (model.RuleConfig, error)
	DeleteRule(index int) error
	Alerts() []model.FindingView
	Attacks() []model.FindingView
	Intrusions() []model.FindingView
	Anomalies() []model.FindingView
	SubscribeAlerts(filter storage.Filter, buffer int) *storage.Subscriber
	UnsubscribeAlerts(sub *storage.Subscriber)
	View(f model.Finding) model.FindingView
}

type Handlers struct {
	service  Service
	logger   *logrus.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

type addRuleRequest struct {
	Name      string `json:"name" validate:"required"`
	Condition string `json:"condition" validate:"required"`
}

func NewHandlers(service Service, logger *logrus.Logger) *Handlers {
	return &Handlers{
		service:  service,
		logger:   logger,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Register mounts every endpoint on r
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/metrics", h.GetMetrics).Methods("GET")
	r.HandleFunc("/network", h.GetNetwork).Methods("GET")
	r.HandleFunc("/devices", h.GetDevices).Methods("GET")

	r.HandleFunc("/rules", h.GetRules).Methods("GET")
	r.HandleFunc("/rules", h.AddRule).Methods("POST")
	r.HandleFunc("/rules/{index}", h.DeleteRule).Methods("DELETE")

	r.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	r.HandleFunc("/attacks", h.GetAttacks).Methods("GET")
	r.HandleFunc("/intrusions", h.GetIntrusions).Methods("GET")
	r.HandleFunc("/anomalies", h.GetAnomalies).Methods("GET")
	r.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")
}

// Host handlers
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.Metrics(r.Context())
	if err != nil {
		h.telemetryError(w, "metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handlers) GetNetwork(w http.ResponseWriter, r *http.Request) {
	network, err := h.service.Network(r.Context())
	if err != nil {
		h.telemetryError(w, "network", err)
		return
	}
	writeJSON(w, http.StatusOK, network)
}

func (h *Handlers) GetDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Devices())
}

// Rules handlers
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Rules())
}

func (h *Handlers) AddRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Name and condition are required")
		return
	}

	rule, err := h.service.AddRule(req.Name, req.Condition)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidRule) || errors.Is(err, rules.ErrInvalidRuleCondition) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Errorf("Failed to add rule: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to add rule")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Rule added successfully",
		"rule":    rule,
	})
}

func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule index")
		return
	}

	if err := h.service.DeleteRule(index); err != nil {
		if errors.Is(err, rules.ErrInvalidRuleIndex) {
			writeError(w, http.StatusBadRequest, "Invalid rule index")
			return
		}
		h.logger.Errorf("Failed to delete rule: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Rule deleted successfully"})
}

// Findings handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Alerts())
}

func (h *Handlers) GetAttacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Attacks())
}

func (h *Handlers) GetIntrusions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Intrusions())
}

func (h *Handlers) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Anomalies())
}

// StreamAlerts pushes every finding recorded in the alert log after the
// connection opens. Optional query filters: category, severity.
func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := h.service.SubscribeAlerts(storage.Filter{
		Category: model.Category(r.URL.Query().Get("category")),
		Severity: r.URL.Query().Get("severity"),
	}, 100)
	defer h.service.UnsubscribeAlerts(sub)

	h.logger.Infof("WebSocket alert stream opened from %s", r.RemoteAddr)

	done := make(chan struct{})
	once := &sync.Once{}
	closeDone := func() {
		once.Do(func() {
			close(done)
		})
	}

	conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// Reads only to notice the client going away and to process pongs
	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debugf("WebSocket alert stream closed for %s", r.RemoteAddr)
			return
		case finding, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(h.service.View(finding)); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debugf("Ping failed: %v", err)
				return
			}
		}
	}
}

func (h *Handlers) telemetryError(w http.ResponseWriter, what string, err error) {
	h.logger.Errorf("Failed to read %s: %v", what, err)
	if errors.Is(err, sampler.ErrTelemetryUnavailable) {
		writeError(w, http.StatusInternalServerError, "Telemetry unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to read "+what)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
