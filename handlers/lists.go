package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cinesync/models"
	"cinesync/services/lists"
)

type listsService interface {
	List(ctx context.Context, name string) ([]models.ListItem, bool)
	Add(ctx context.Context, name string, item models.ListItem) bool
	Remove(ctx context.Context, name string, id int64) bool
}

var _ listsService = (*lists.Manager)(nil)

type ListsHandler struct {
	Service listsService
}

func NewListsHandler(service listsService) *ListsHandler {
	return &ListsHandler{Service: service}
}

func (h *ListsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["list"]
	items, ok := h.Service.List(r.Context(), name)
	if !ok {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (h *ListsHandler) Add(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["list"]
	if !models.KnownList(name) {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}

	var item models.ListItem
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if item.ID == 0 || strings.TrimSpace(item.Title) == "" {
		http.Error(w, "id and title are required", http.StatusBadRequest)
		return
	}

	if !h.Service.Add(r.Context(), name, item) {
		http.Error(w, "could not persist item", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

func (h *ListsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["list"]
	if !models.KnownList(name) {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}

	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "item id must be an integer", http.StatusBadRequest)
		return
	}

	if !h.Service.Remove(r.Context(), name, id) {
		http.Error(w, "could not remove item", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
