package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"cinesync/handlers"
	"cinesync/models"
)

func TestEventsReplaysLatestSnapshot(t *testing.T) {
	mgr := newTestManager(t, newFakeRemote(false))
	mgr.AddToWatch(context.Background(), models.ListItem{ID: 603, Title: "The Matrix"})

	r := mux.NewRouter()
	r.HandleFunc("/api/events/{list}", handlers.NewEventsHandler(mgr).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/to_watch")
	if err != nil {
		t.Fatalf("failed to connect to event stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	event, data := readEvent(t, bufio.NewReader(resp.Body))
	if event != models.ListToWatch {
		t.Fatalf("expected event %q, got %q", models.ListToWatch, event)
	}

	var items []models.ListItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		t.Fatalf("failed to decode event payload: %v", err)
	}
	if len(items) != 1 || items[0].ID != 603 {
		t.Fatalf("unexpected snapshot: %+v", items)
	}
}

func TestEventsDeliversMutations(t *testing.T) {
	mgr := newTestManager(t, newFakeRemote(false))

	r := mux.NewRouter()
	r.HandleFunc("/api/events/{list}", handlers.NewEventsHandler(mgr).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/watched")
	if err != nil {
		t.Fatalf("failed to connect to event stream: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	if _, data := readEvent(t, reader); data != "[]" {
		t.Fatalf("expected empty initial snapshot, got %q", data)
	}

	mgr.AddToWatched(context.Background(), models.ListItem{ID: 238, Title: "The Godfather"})

	_, data := readEvent(t, reader)
	var items []models.ListItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		t.Fatalf("failed to decode event payload: %v", err)
	}
	if len(items) != 1 || items[0].Title != "The Godfather" {
		t.Fatalf("unexpected snapshot: %+v", items)
	}
}

func TestEventsUnknownList(t *testing.T) {
	mgr := newTestManager(t, newFakeRemote(false))

	r := mux.NewRouter()
	r.HandleFunc("/api/events/{list}", handlers.NewEventsHandler(mgr).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events/favourites")
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
}

// readEvent consumes one SSE event from the stream.
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return event, data
		}
	}
}
