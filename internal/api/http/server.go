// Package http exposes the ledger over a JSON API routed by gorilla/mux.
package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/security"
	"property-ledger-backend/internal/service"
)

// Pinger reports storage readiness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the collaborators the handlers call into.
type Services struct {
	Ledger        service.LedgerService
	Balance       service.BalanceCalculator
	Agreements    service.AgreementService
	Notifications service.NotificationService
}

type Server struct {
	services    Services
	tokens      security.TokenManager
	metrics     *metrics.Metrics
	db          Pinger
	metricsPath string
}

func NewServer(services Services, tokens security.TokenManager, m *metrics.Metrics, db Pinger) *Server {
	if m == nil {
		m = metrics.Nop()
	}
	return &Server{services: services, tokens: tokens, metrics: m, db: db, metricsPath: "/metrics"}
}

// WithMetricsPath moves the prometheus endpoint. An empty path disables it.
func (s *Server) WithMetricsPath(path string) *Server {
	s.metricsPath = path
	return s
}

// Router returns the API router. Every route is named; the name selects its
// security level in config.RouteSecurityConfig.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.recoverer, s.observe, s.authenticate)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name("health")
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet).Name("metrics")
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/entries", s.handleRecordPayment).Methods(http.MethodPost).Name("entries.create")
	api.HandleFunc("/entries/{id:[0-9]+}", s.handleGetEntry).Methods(http.MethodGet).Name("entries.get")
	api.HandleFunc("/entries/{id:[0-9]+}/transition", s.handleTransitionEntry).Methods(http.MethodPost).Name("entries.transition")
	api.HandleFunc("/entries/{id:[0-9]+}/history", s.handleEntryHistory).Methods(http.MethodGet).Name("entries.history")
	api.HandleFunc("/properties/{propertyID:[0-9]+}/payers/{payerID:[0-9]+}/entries", s.handleListEntries).Methods(http.MethodGet).Name("entries.list")
	api.HandleFunc("/properties/{propertyID:[0-9]+}/payers/{payerID:[0-9]+}/progress", s.handleProgress).Methods(http.MethodGet).Name("entries.progress")

	api.HandleFunc("/agreements", s.handleApply).Methods(http.MethodPost).Name("agreements.apply")
	api.HandleFunc("/agreements", s.handleListAgreements).Methods(http.MethodGet).Name("agreements.list")
	api.HandleFunc("/agreements/{id:[0-9]+}", s.handleGetAgreement).Methods(http.MethodGet).Name("agreements.get")
	api.HandleFunc("/agreements/{id:[0-9]+}/entries", s.handleAgreementEntries).Methods(http.MethodGet).Name("agreements.entries")
	api.HandleFunc("/agreements/{id:[0-9]+}/approve", s.handleApprove).Methods(http.MethodPost).Name("agreements.approve")
	api.HandleFunc("/agreements/{id:[0-9]+}/reject", s.handleReject).Methods(http.MethodPost).Name("agreements.reject")
	api.HandleFunc("/agreements/{id:[0-9]+}/complete", s.handleCompleteAgreement).Methods(http.MethodPost).Name("agreements.complete")
	api.HandleFunc("/agreements/{id:[0-9]+}/cancel", s.handleCancelAgreement).Methods(http.MethodPost).Name("agreements.cancel")

	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet).Name("notifications.list")
	api.HandleFunc("/notifications/{id:[0-9]+}/read", s.handleMarkRead).Methods(http.MethodPost).Name("notifications.read")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
