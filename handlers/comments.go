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

type commentsService interface {
	Comments(ctx context.Context) models.CommentMap
	SetComment(ctx context.Context, id, text string) bool
	RemoveComment(ctx context.Context, id string) bool
}

var _ commentsService = (*lists.Manager)(nil)

type CommentsHandler struct {
	Service commentsService
}

func NewCommentsHandler(service commentsService) *CommentsHandler {
	return &CommentsHandler{Service: service}
}

func (h *CommentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Comments(r.Context()))
}

func (h *CommentsHandler) Set(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "item id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.Service.SetComment(r.Context(), id, body.Text) {
		http.Error(w, "could not persist comment", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CommentsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "item id is required", http.StatusBadRequest)
		return
	}

	if !h.Service.RemoveComment(r.Context(), id) {
		http.Error(w, "could not remove comment", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
