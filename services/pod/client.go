// Package pod wraps the user-owned encrypted remote document store. It
// exposes read/write/delete of named documents beneath a fixed
// application base path, requires an authenticated session, and
// classifies failures so the synchronization manager can pick between
// retry, fallback and surfacing.
package pod

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// appBase is the fixed application directory inside the user's pod.
	// Callers always pass paths relative to it; the client prefixes it
	// exactly once.
	appBase = "movies"

	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
)

// Document paths inside the application base.
const (
	DocToWatch  = "user_lists/to_watch.ttl"
	DocWatched  = "user_lists/watched.ttl"
	DocComments = "user_lists/comments.ttl"
	DocRatings  = "ratings/ratings.ttl"
)

// Client talks to a pod server. Safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	serverURL   string
	root        string
	keybox      *Keybox
	passphraser Passphraser
	log         *slog.Logger

	mu      sync.RWMutex
	session *Session
}

// NewClient creates a pod client for the pod rooted at
// {serverURL}/{root}. The keybox and passphraser handle the just-in-time
// vault key unlock required by mutating operations.
func NewClient(serverURL, root string, keybox *Keybox, passphraser Passphraser) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		serverURL:   strings.TrimRight(serverURL, "/"),
		root:        strings.Trim(root, "/"),
		keybox:      keybox,
		passphraser: passphraser,
		log:         slog.Default().With("component", "pod"),
	}
}

// SetSession installs the authenticated session obtained by the auth
// collaborator. A nil session logs the client out.
func (c *Client) SetSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Session returns the current session, possibly nil.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// IsAvailable reports whether the client holds a valid identity and an
// unexpired session. It never probes the server: a missing document is
// not evidence of a missing login.
func (c *Client) IsAvailable() bool {
	return c.Session().Valid()
}

// docURL resolves a path relative to the application base. Paths already
// carrying the base are rejected outright, since double-prefixing
// silently produces an unreachable document.
func (c *Client) docURL(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("pod: empty document path")
	}
	if strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("pod: path %q must be relative", rel)
	}
	if rel == appBase || strings.HasPrefix(rel, appBase+"/") {
		return "", fmt.Errorf("pod: path %q already carries the %q base", rel, appBase)
	}
	return c.serverURL + "/" + c.root + "/" + appBase + "/" + rel, nil
}

func (c *Client) authorize(req *http.Request) {
	if s := c.Session(); s.Valid() {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
}

// Read fetches a document. Transient failures are retried with a short
// fixed delay up to the attempt cap; ErrNotFound short-circuits
// immediately since retrying cannot change the outcome.
func (c *Client) Read(ctx context.Context, rel string) (string, error) {
	if !c.IsAvailable() {
		return "", ErrNotLoggedIn
	}
	url, err := c.docURL(rel)
	if err != nil {
		return "", err
	}

	var body string
	err = retry.Do(
		func() error {
			text, err := c.fetch(ctx, url)
			if err != nil {
				return err
			}
			body = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(Transient),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying pod read", "path", rel, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pod request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		return string(data), nil
	case http.StatusNotFound:
		return "", ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrNotLoggedIn
	default:
		return "", &StatusError{Code: resp.StatusCode}
	}
}

// Write stores a document, unlocking the vault key just in time. The
// unlock may suspend on a user prompt.
func (c *Client) Write(ctx context.Context, rel, body string) error {
	if !c.IsAvailable() {
		return ErrNotLoggedIn
	}
	key, err := c.keybox.Unlock(ctx, c.passphraser)
	if err != nil {
		return err
	}
	url, err := c.docURL(rel)
	if err != nil {
		return err
	}

	return retry.Do(
		func() error { return c.put(ctx, url, body, key) },
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(Transient),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying pod write", "path", rel, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) put(ctx context.Context, url, body, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "text/turtle")
	req.Header.Set("X-Vault-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pod request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusResetContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrNotLoggedIn
	default:
		return &StatusError{Code: resp.StatusCode}
	}
}

// Delete removes a document and its access-control sidecar. Absence of
// either is not an error.
func (c *Client) Delete(ctx context.Context, rel string) error {
	if !c.IsAvailable() {
		return ErrNotLoggedIn
	}
	key, err := c.keybox.Unlock(ctx, c.passphraser)
	if err != nil {
		return err
	}

	for _, target := range []string{rel, rel + ".acl"} {
		if err := c.deleteOne(ctx, target, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) deleteOne(ctx context.Context, rel, key string) error {
	url, err := c.docURL(rel)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("X-Vault-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pod request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrNotLoggedIn
	default:
		return &StatusError{Code: resp.StatusCode}
	}
}
