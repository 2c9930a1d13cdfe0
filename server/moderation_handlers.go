package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fermata/core/moderation"
	"fermata/logger"

	"github.com/gorilla/mux"
)

type approvalResponse struct {
	UndoToken string    `json:"undoToken"`
	ExpiresAt time.Time `json:"expiresAt"`
	Remaining int       `json:"remaining"` // rows left in the queue
}

// GetPendingHandler reloads the moderation queue and returns the requested
// view of it. Sorting is derived per request; it never mutates stored order.
func (h *APIHandler) GetPendingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := h.queue.LoadPending(ctx); err != nil {
		logger.Error("Failed to load pending compositions", logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "failed to load pending compositions")
		return
	}

	column := moderation.SortColumn(r.URL.Query().Get("sort"))
	if column == "" {
		column = moderation.SortByID
	}
	descending := r.URL.Query().Get("order") == "desc"

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"compositions": h.queue.Sorted(column, descending),
		"selection":    h.queue.Selection(),
	})
}

// ApproveOneHandler sets one composition's approval state.
func (h *APIHandler) ApproveOneHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid composition id")
		return
	}

	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	token, err := h.queue.ApproveOne(ctx, id, req.Approved)
	if err != nil {
		h.respondApprovalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, approvalResponse{
		UndoToken: h.registerUndo(token),
		ExpiresAt: time.Now().Add(h.cfg.UndoWindow),
		Remaining: len(h.queue.Snapshot()),
	})
}

// ApproveManyHandler applies one approval transition to a batch. When no
// ids are given the current selection is used.
func (h *APIHandler) ApproveManyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs      []int64 `json:"ids"`
		Approved bool    `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := req.IDs
	if len(ids) == 0 {
		ids = h.queue.Selection()
	}
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "no compositions selected")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	token, err := h.queue.ApproveMany(ctx, ids, req.Approved)
	if err != nil {
		h.respondApprovalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, approvalResponse{
		UndoToken: h.registerUndo(token),
		ExpiresAt: time.Now().Add(h.cfg.UndoWindow),
		Remaining: len(h.queue.Snapshot()),
	})
}

// respondApprovalError maps a failed transition. The snapshot was left
// untouched, so the client is told to reload rather than trust its view.
func (h *APIHandler) respondApprovalError(w http.ResponseWriter, err error) {
	var approvalErr *moderation.ApprovalError
	if errors.As(err, &approvalErr) {
		logger.Error("Approval transition failed", logger.ErrorField(err))
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  approvalErr.Reason,
			"reload": true,
		})
		return
	}
	respondError(w, http.StatusInternalServerError, "internal error")
}

// UndoHandler invokes a previously issued undo token. Expired or spent
// tokens are a no-op success.
func (h *APIHandler) UndoHandler(w http.ResponseWriter, r *http.Request) {
	token := h.lookupUndo(mux.Vars(r)["token"])
	if token == nil {
		// unknown ids and expired ids look the same to the client
		respondJSON(w, http.StatusOK, map[string]bool{"applied": false})
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	active := token.Active()
	if err := token.Invoke(ctx); err != nil {
		logger.Error("Undo failed", logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "failed to undo approval")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"applied": active})
}

// DismissUndoHandler ends an undo token's validity window early.
func (h *APIHandler) DismissUndoHandler(w http.ResponseWriter, r *http.Request) {
	if token := h.lookupUndo(mux.Vars(r)["token"]); token != nil {
		token.Dismiss()
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectHandler adds a composition to the bulk-action selection.
func (h *APIHandler) SelectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid composition id")
		return
	}

	if err := h.queue.Select(id); err != nil {
		respondError(w, http.StatusNotFound, "composition not in queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]int64{"selection": h.queue.Selection()})
}

// DeselectHandler removes a composition from the selection.
func (h *APIHandler) DeselectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid composition id")
		return
	}

	h.queue.Deselect(id)
	respondJSON(w, http.StatusOK, map[string][]int64{"selection": h.queue.Selection()})
}

// ClearSelectionHandler empties the selection.
func (h *APIHandler) ClearSelectionHandler(w http.ResponseWriter, r *http.Request) {
	h.queue.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}
