/**
 * @description
 * This file contains the HTTP handlers for the pass-service API. Handlers
 * parse incoming requests, call the application service, and write responses;
 * they are the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Service logic, models, and
 *   custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuspass/pass-service/internal/app"
	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/internal/store"
)

// PassHandlers holds the application service that handlers use.
type PassHandlers struct {
	service *app.Service
	logger  *slog.Logger

	// Channel capacity for import event streams; zero lets the pipeline
	// fall back to its default.
	eventBuffer int
}

// NewPassHandlers creates the handler set.
func NewPassHandlers(service *app.Service, logger *slog.Logger, eventBuffer int) *PassHandlers {
	return &PassHandlers{service: service, logger: logger.With("component", "api"), eventBuffer: eventBuffer}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// passKeyFromURL extracts the composite key from /passes/{universityID}/{careerID}/{uid} routes.
func passKeyFromURL(r *http.Request) (domain.PassKey, error) {
	universityID, err := uuid.Parse(chi.URLParam(r, "universityID"))
	if err != nil {
		return domain.PassKey{}, errors.New("invalid university id")
	}
	careerID, err := uuid.Parse(chi.URLParam(r, "careerID"))
	if err != nil {
		return domain.PassKey{}, errors.New("invalid career id")
	}
	uid := chi.URLParam(r, "uid")
	if uid == "" {
		return domain.PassKey{}, errors.New("missing unique identifier")
	}
	return domain.PassKey{UniversityID: universityID, CareerID: careerID, UniqueIdentifier: uid}, nil
}

type queryRequest struct {
	UniversityID uuid.UUID         `json:"university_id"`
	Filter       domain.FilterSpec `json:"filter"`
	Page         int               `json:"page"`
	Size         int               `json:"size"`
}

// QueryPassesHandler serves one page of the filtered listing.
func (h *PassHandlers) QueryPassesHandler(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UniversityID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "university_id is required")
		return
	}

	page, err := h.service.QueryPasses(r.Context(), req.UniversityID, req.Filter, req.Page, req.Size)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}
	if page.Content == nil {
		page.Content = []domain.Pass{}
	}
	writeJSON(w, http.StatusOK, page)
}

type exportRequest struct {
	UniversityID uuid.UUID         `json:"university_id"`
	Filter       domain.FilterSpec `json:"filter"`
}

// ExportPassesHandler returns the entire filtered set, for bulk actions that
// must see every matching pass.
func (h *PassHandlers) ExportPassesHandler(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UniversityID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "university_id is required")
		return
	}

	passes, err := h.service.ExportPasses(r.Context(), req.UniversityID, req.Filter)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}
	if passes == nil {
		passes = []domain.Pass{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": passes, "total": len(passes)})
}

func (h *PassHandlers) respondQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidPage), errors.Is(err, app.ErrInvalidSize), errors.Is(err, app.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to query passes")
	}
}

type lookupRequest struct {
	Keys []domain.PassKey `json:"keys"`
}

// LookupPassesHandler resolves a list of composite keys, chunked internally.
func (h *PassHandlers) LookupPassesHandler(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	passes, err := h.service.FindPassesByKeys(r.Context(), req.Keys)
	if err != nil {
		h.logger.Error("lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to look up passes")
		return
	}
	if passes == nil {
		passes = []domain.Pass{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": passes, "total": len(passes)})
}

// GetPassHandler serves one pass by composite key.
func (h *PassHandlers) GetPassHandler(w http.ResponseWriter, r *http.Request) {
	key, err := passKeyFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pass, err := h.service.GetPass(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrPassNotFound) {
			writeError(w, http.StatusNotFound, "pass not found")
			return
		}
		h.logger.Error("get pass failed", "key", key.String(), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load pass")
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

// CreatePassHandler persists one pass record.
func (h *PassHandlers) CreatePassHandler(w http.ResponseWriter, r *http.Request) {
	var rec domain.NewPass
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.CreatePass(r.Context(), rec); err != nil {
		if errors.Is(err, store.ErrDuplicatePass) {
			writeError(w, http.StatusConflict, "pass already exists")
			return
		}
		h.logger.Error("create pass failed", "key", rec.Key().String(), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create pass")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// DueInDaysHandler lists the active passes due in exactly N days with an
// installed wallet.
func (h *PassHandlers) DueInDaysHandler(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(chi.URLParam(r, "days"))
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return
	}
	passes, err := h.service.DueInDays(r.Context(), days)
	if err != nil {
		h.logger.Error("due-in scan failed", "days", days, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to scan due passes")
		return
	}
	if passes == nil {
		passes = []domain.Pass{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": passes, "total": len(passes)})
}

type linkWalletRequest struct {
	GoogleWalletObjectID    *string `json:"google_wallet_object_id,omitempty"`
	AppleWalletSerialNumber *string `json:"apple_wallet_serial_number,omitempty"`
}

// LinkWalletHandler stores issued wallet artifact identifiers on a pass.
func (h *PassHandlers) LinkWalletHandler(w http.ResponseWriter, r *http.Request) {
	key, err := passKeyFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req linkWalletRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GoogleWalletObjectID == nil && req.AppleWalletSerialNumber == nil {
		writeError(w, http.StatusBadRequest, "at least one wallet identifier is required")
		return
	}
	if err := h.service.LinkWallet(r.Context(), key, req.GoogleWalletObjectID, req.AppleWalletSerialNumber); err != nil {
		if errors.Is(err, store.ErrPassNotFound) {
			writeError(w, http.StatusNotFound, "pass not found")
			return
		}
		h.logger.Error("link wallet failed", "key", key.String(), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to link wallet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}
