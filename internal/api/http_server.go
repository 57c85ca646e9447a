package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/calendar"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/config"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/export"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/metrics"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/service"

	"github.com/rs/zerolog"
)

// Server exposes the checkout, calendar and export surfaces over HTTP.
type Server struct {
	cfg        config.APIConfig
	checkouts  *service.CheckoutService
	validator  *checkout.Validator
	calculator *calendar.Calculator
	exporter   *export.Exporter
	server     *http.Server
	auth       *Auth
	log        zerolog.Logger
}

func NewServer(
	cfg config.APIConfig,
	checkouts *service.CheckoutService,
	validator *checkout.Validator,
	calculator *calendar.Calculator,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *Server {
	log := logging.Component(logger, "api")

	srv := &Server{
		cfg:        cfg,
		checkouts:  checkouts,
		validator:  validator,
		calculator: calculator,
		exporter:   exporter,
		auth:       NewAuth(cfg),
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/checkout/validate", srv.handleValidate)
	mux.HandleFunc("/api/v1/checkout/commit", srv.handleCommit)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookings)
	mux.HandleFunc("/api/v1/calendar", srv.handleCalendar)
	mux.HandleFunc("/api/v1/price-preview", srv.handlePricePreview)
	mux.HandleFunc("/api/v1/occupancy", srv.handleOccupancy)
	mux.HandleFunc("/api/v1/exports/occupancy", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
