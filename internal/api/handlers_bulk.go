/**
 * @description
 * This file contains the HTTP handlers for the bulk mutation endpoints. Each
 * handler accepts a list of composite pass keys (or due-date rows), hands them
 * to the application service, and reports how many rows were updated. The
 * chunking and concurrency live below the service boundary; handlers only
 * translate requests and errors.
 *
 * @dependencies
 * - internal/app: Bulk mutation engine and its sentinel errors.
 * - internal/domain: PassKey, DueUpdate, and status enums.
 */

package api

import (
	"errors"
	"net/http"

	"github.com/campuspass/pass-service/internal/app"
	"github.com/campuspass/pass-service/internal/domain"
)

type bulkKeysRequest struct {
	Keys []domain.PassKey `json:"keys"`
}

type bulkResultResponse struct {
	Updated int64 `json:"updated"`
}

func (h *PassHandlers) respondBulk(w http.ResponseWriter, operation string, updated int64, err error) {
	if err != nil {
		if errors.Is(err, app.ErrOperationInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("bulk operation failed", "operation", operation, "err", err)
		writeError(w, http.StatusInternalServerError, "bulk operation failed")
		return
	}
	writeJSON(w, http.StatusOK, bulkResultResponse{Updated: updated})
}

type setStatusRequest struct {
	Keys   []domain.PassKey  `json:"keys"`
	Status domain.PassStatus `json:"status"`
}

// BulkSetStatusHandler activates or deactivates passes in bulk.
func (h *PassHandlers) BulkSetStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status != domain.PassStatusActive && req.Status != domain.PassStatusInactive {
		writeError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}
	updated, err := h.service.SetPassStatus(r.Context(), req.Keys, req.Status)
	h.respondBulk(w, "set_status", updated, err)
}

// BulkMarkPaidHandler settles passes: payment status paid, amount owed zeroed.
func (h *PassHandlers) BulkMarkPaidHandler(w http.ResponseWriter, r *http.Request) {
	var req bulkKeysRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.service.MarkPaid(r.Context(), req.Keys)
	h.respondBulk(w, "mark_paid", updated, err)
}

// BulkMarkOverdueHandler flips passes to overdue.
func (h *PassHandlers) BulkMarkOverdueHandler(w http.ResponseWriter, r *http.Request) {
	var req bulkKeysRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.service.MarkOverdue(r.Context(), req.Keys)
	h.respondBulk(w, "mark_overdue", updated, err)
}

type setCashbackRequest struct {
	Keys     []domain.PassKey `json:"keys"`
	Cashback int64            `json:"cashback"`
}

// BulkSetCashbackHandler assigns one cashback amount (in cents) to a set of passes.
func (h *PassHandlers) BulkSetCashbackHandler(w http.ResponseWriter, r *http.Request) {
	var req setCashbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.service.SetCashback(r.Context(), req.Keys, req.Cashback)
	if errors.Is(err, app.ErrNegativeCashback) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondBulk(w, "set_cashback", updated, err)
}

// BulkNotifyHandler bumps the notification counters for a set of passes after
// reminders went out.
func (h *PassHandlers) BulkNotifyHandler(w http.ResponseWriter, r *http.Request) {
	var req bulkKeysRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.service.IncrementNotificationCounts(r.Context(), req.Keys)
	h.respondBulk(w, "increment_notifications", updated, err)
}

type markDueRequest struct {
	Updates []domain.DueUpdate `json:"updates"`
}

// BulkMarkDueHandler opens a new payment period: each row carries its own
// amount and deadline, applied through a staged two-phase update. Concurrent
// runs are rejected with 409.
func (h *PassHandlers) BulkMarkDueHandler(w http.ResponseWriter, r *http.Request) {
	var req markDueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.service.MarkDue(r.Context(), req.Updates)
	if err != nil {
		if errors.Is(err, app.ErrOperationInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, app.ErrInvalidDueUpdate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("bulk operation failed", "operation", "mark_due", "err", err)
		writeError(w, http.StatusInternalServerError, "bulk operation failed")
		return
	}
	writeJSON(w, http.StatusOK, bulkResultResponse{Updated: updated})
}
