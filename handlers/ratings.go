package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"cinesync/models"
	"cinesync/services/lists"
)

type ratingsService interface {
	Ratings(ctx context.Context) models.RatingMap
	SetRating(ctx context.Context, id string, value float64) bool
	RemoveRating(ctx context.Context, id string) bool
}

var _ ratingsService = (*lists.Manager)(nil)

type RatingsHandler struct {
	Service ratingsService
}

func NewRatingsHandler(service ratingsService) *RatingsHandler {
	return &RatingsHandler{Service: service}
}

func (h *RatingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Ratings(r.Context()))
}

func (h *RatingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "item id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Value float64 `json:"value"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Value < 0 || body.Value > 10 {
		http.Error(w, "rating must be between 0 and 10", http.StatusBadRequest)
		return
	}

	if !h.Service.SetRating(r.Context(), id, body.Value) {
		http.Error(w, "could not persist rating", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RatingsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "item id is required", http.StatusBadRequest)
		return
	}

	if !h.Service.RemoveRating(r.Context(), id) {
		http.Error(w, "could not remove rating", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
