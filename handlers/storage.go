package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cinesync/models"
	"cinesync/services/lists"
)

type storageService interface {
	Status() models.StorageStatus
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Sync(ctx context.Context)
}

var _ storageService = (*lists.Manager)(nil)

// StorageHandler exposes backend selection: status, enabling the remote
// pod (with migration), disabling it, and forcing a cache reload.
type StorageHandler struct {
	Service storageService
}

func NewStorageHandler(service storageService) *StorageHandler {
	return &StorageHandler{Service: service}
}

func (h *StorageHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Status())
}

func (h *StorageHandler) Enable(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Enable(r.Context()); err != nil {
		// The two user-visible failures: not logged in, and migration
		// trouble. Everything else the manager absorbs itself.
		status := http.StatusBadGateway
		if errors.Is(err, lists.ErrRemoteUnavailable) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	h.Status(w, r)
}

func (h *StorageHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Disable(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Status(w, r)
}

func (h *StorageHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.Service.Sync(r.Context())
	h.Status(w, r)
}
