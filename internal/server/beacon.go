package server

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/shopboost/shopboost/internal/store"
)

// BeaconRequest is an event sent by the tracking snippet.
type BeaconRequest struct {
	PageID    string          `json:"p"`
	EventType string          `json:"e"`
	Amount    decimal.Decimal `json:"a"`
}

const (
	eventView = "view"
	eventSale = "sale"
)

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	if !s.beacons.Allow(r.RemoteAddr) {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var req BeaconRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.PageID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if req.EventType != eventView && req.EventType != eventSale {
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetPage(ctx, req.PageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Page not found", http.StatusBadRequest)
			return
		}
		s.logger.Error("beacon lookup failed", "page", req.PageID, "error", err)
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}

	var err error
	switch req.EventType {
	case eventView:
		err = s.store.RecordView(ctx, req.PageID)
	case eventSale:
		err = s.store.RecordSale(ctx, req.PageID, req.Amount)
	}
	if errors.Is(err, store.ErrInvalidAmount) {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("beacon failed", "page", req.PageID, "event", req.EventType, "error", err)
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
