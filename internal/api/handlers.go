package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/database"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/locker"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/service"
)

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req service.CheckoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	items, err := s.checkouts.Validate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req service.CheckoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	result, err := s.checkouts.Commit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/bookings/"
	bookingID := strings.TrimPrefix(r.URL.Path, prefix)
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" || strings.Contains(bookingID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.checkouts.Cancel(r.Context(), bookingID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	case http.MethodPut:
		var body struct {
			TimeBegin int64 `json:"time_begin"`
			TimeEnd   int64 `json:"time_end"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.TimeEnd <= body.TimeBegin {
			writeError(w, http.StatusBadRequest, "time_end must be after time_begin")
			return
		}
		booking, err := s.checkouts.Reschedule(r.Context(), bookingID, body.TimeBegin, body.TimeEnd)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	segments, err := s.calculator.Availability(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

func (s *Server) handlePricePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	preview, err := s.checkouts.PricePreview(r.Context(), req, strings.TrimSpace(r.URL.Query().Get("coupon_code")))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.validator.CheckAvailability(r.Context(), req)
	if err != nil {
		var ce checkout.CheckError
		if errors.As(err, &ce) {
			writeJSON(w, http.StatusOK, ce.Result())
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	var body struct {
		TenantID  string `json:"tenant_id"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := time.Parse("2006-01-02", body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date; expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date; expected YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date must not precede start_date")
		return
	}

	filePath, err := s.exporter.OccupancyReport(r.Context(), body.TenantID, start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"file_path": filePath})
}

// writeServiceError maps domain errors onto HTTP status codes. Failed
// checks answer 409 with the structured result so clients can render the
// reason.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var ce checkout.CheckError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  ce.Error(),
			"result": ce.Result(),
		})
		return
	}

	var lockerErr *locker.UnavailableError
	if errors.As(err, &lockerErr) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": lockerErr.Error()})
		return
	}

	var couponErr *service.InvalidCouponError
	if errors.As(err, &couponErr) {
		writeError(w, http.StatusBadRequest, couponErr.Error())
		return
	}

	var priceErr *checkout.PriceCategoryNotFoundError
	if errors.As(err, &priceErr) {
		writeError(w, http.StatusUnprocessableEntity, priceErr.Error())
		return
	}

	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, database.ErrConcurrentModification) {
		writeError(w, http.StatusConflict, "booking was modified concurrently")
		return
	}

	s.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func requestFromQuery(r *http.Request) (checkout.Request, error) {
	q := r.URL.Query()
	req := checkout.Request{
		TenantID:   strings.TrimSpace(q.Get("tenant_id")),
		BookableID: strings.TrimSpace(q.Get("bookable_id")),
		UserID:     strings.TrimSpace(q.Get("user_id")),
	}
	if req.TenantID == "" {
		return req, errors.New("tenant_id is required")
	}
	if req.BookableID == "" {
		return req, errors.New("bookable_id is required")
	}

	var err error
	if req.TimeBegin, err = queryInt(q.Get("time_begin")); err != nil {
		return req, fmt.Errorf("invalid time_begin: %w", err)
	}
	if req.TimeEnd, err = queryInt(q.Get("time_end")); err != nil {
		return req, fmt.Errorf("invalid time_end: %w", err)
	}
	if req.Amount, err = queryInt(q.Get("amount")); err != nil {
		return req, fmt.Errorf("invalid amount: %w", err)
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	return req, nil
}

func queryInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
