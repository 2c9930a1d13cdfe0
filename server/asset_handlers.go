package server

import (
	"errors"
	"net/http"
	"strconv"

	"fermata/core/upload"
	"fermata/logger"
	"fermata/model"
	"fermata/repository"

	"github.com/gorilla/mux"
)

// UploadAssetHandler accepts a multipart file for one asset slot and drives
// the three-step upload protocol.
func (h *APIHandler) UploadAssetHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	compositionID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid composition id")
		return
	}

	assetType := model.AssetType(vars["type"])
	if !assetType.Valid() {
		respondError(w, http.StatusBadRequest, "unknown asset type")
		return
	}

	// One extra MiB of headroom so an oversized candidate is rejected by
	// validation with a typed error instead of a truncated read.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxAssetSize+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	candidate := upload.Candidate{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Size:      header.Size,
		Body:      file,
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	asset, err := h.uploads.Upload(ctx, compositionID, assetType, candidate)
	if err != nil {
		h.respondUploadError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, asset)
}

// DeleteAssetHandler removes an asset. Deleting one that is already gone
// succeeds, matching the empty-slot delete.
func (h *APIHandler) DeleteAssetHandler(w http.ResponseWriter, r *http.Request) {
	assetID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := h.uploads.DeleteAsset(ctx, assetID); err != nil {
		logger.Error("Failed to delete asset",
			logger.Int64("assetId", assetID),
			logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "failed to delete asset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondUploadError maps the upload error taxonomy onto HTTP statuses.
func (h *APIHandler) respondUploadError(w http.ResponseWriter, err error) {
	var validationErr *upload.ValidationError
	var slotErr *upload.SlotRequestError
	var transferErr *upload.TransferError
	var orphanErr *upload.OrphanedUploadError
	var repoErr *repository.RepositoryError

	switch {
	case errors.As(err, &validationErr):
		if validationErr.Reason == upload.ReasonTooLarge {
			respondError(w, http.StatusRequestEntityTooLarge, validationErr.Error())
			return
		}
		respondError(w, http.StatusUnsupportedMediaType, validationErr.Error())
	case errors.Is(err, upload.ErrSlotBusy), errors.Is(err, upload.ErrSlotOccupied):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &orphanErr):
		logger.Error("Upload left an orphaned object", logger.ErrorField(err),
			logger.String("objectKey", orphanErr.ObjectKey))
		respondError(w, http.StatusBadGateway, "upload could not be confirmed")
	case errors.As(err, &slotErr), errors.As(err, &transferErr), errors.As(err, &repoErr):
		logger.Error("Upload failed", logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "upload failed")
	default:
		logger.Error("Upload failed", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
