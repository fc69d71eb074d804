package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"cinesync/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	listsHandler *handlers.ListsHandler,
	ratingsHandler *handlers.RatingsHandler,
	commentsHandler *handlers.CommentsHandler,
	storageHandler *handlers.StorageHandler,
	eventsHandler *handlers.EventsHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Watchlists
	api.HandleFunc("/lists/{list}", listsHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/lists/{list}", listsHandler.Add).Methods(http.MethodPost)
	api.HandleFunc("/lists/{list}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/lists/{list}/{id}", listsHandler.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{list}/{id}", handleOptions).Methods(http.MethodOptions)

	// Ratings
	api.HandleFunc("/ratings", ratingsHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/ratings", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/ratings/{id}", ratingsHandler.Set).Methods(http.MethodPut)
	api.HandleFunc("/ratings/{id}", ratingsHandler.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/ratings/{id}", handleOptions).Methods(http.MethodOptions)

	// Comments
	api.HandleFunc("/comments", commentsHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/comments", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/comments/{id}", commentsHandler.Set).Methods(http.MethodPut)
	api.HandleFunc("/comments/{id}", commentsHandler.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/comments/{id}", handleOptions).Methods(http.MethodOptions)

	// Storage backend selection
	api.HandleFunc("/storage", storageHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/storage", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/storage/enable", storageHandler.Enable).Methods(http.MethodPost)
	api.HandleFunc("/storage/enable", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/storage/disable", storageHandler.Disable).Methods(http.MethodPost)
	api.HandleFunc("/storage/disable", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/storage/sync", storageHandler.Sync).Methods(http.MethodPost)
	api.HandleFunc("/storage/sync", handleOptions).Methods(http.MethodOptions)

	// Change notifications
	api.HandleFunc("/events/{list}", eventsHandler.Stream).Methods(http.MethodGet)
	api.HandleFunc("/events/{list}", handleOptions).Methods(http.MethodOptions)
}
