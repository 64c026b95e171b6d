// Package auth gates the proxy API behind a single master key. Clients
// present it the way they would an OpenAI or Anthropic key: a bearer token
// or an x-api-key header.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// KeySource defines where to extract the client key from.
type KeySource struct {
	Name   string // header name
	Scheme string // "Bearer", etc. (optional)
}

// DefaultSources accepts the OpenAI-style Authorization header and the
// Anthropic-style x-api-key header.
var DefaultSources = []KeySource{
	{Name: "Authorization", Scheme: "Bearer"},
	{Name: "x-api-key"},
}

// Middleware authenticates requests against the configured master key.
// An empty master key disables authentication entirely. The key may be
// swapped at runtime on config reload.
type Middleware struct {
	mu        sync.RWMutex
	masterKey string
	sources   []KeySource
	logger    *slog.Logger
}

// NewMiddleware creates a master-key authentication middleware.
func NewMiddleware(masterKey string, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		masterKey: masterKey,
		sources:   DefaultSources,
		logger:    logger,
	}
}

// SetMasterKey replaces the master key. Used on config reload.
func (m *Middleware) SetMasterKey(key string) {
	m.mu.Lock()
	m.masterKey = key
	m.mu.Unlock()
}

// Handle wraps an HTTP handler with master-key authentication.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		masterKey := m.masterKey
		m.mu.RUnlock()

		if masterKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key, err := m.extractKey(r)
		if err != nil {
			m.logger.Warn("missing API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeAuthError(w, "missing API key")
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(masterKey)) != 1 {
			m.logger.Warn("invalid API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeAuthError(w, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractKey pulls the client key from the first matching source.
func (m *Middleware) extractKey(r *http.Request) (string, error) {
	for _, source := range m.sources {
		value := r.Header.Get(source.Name)
		if value == "" {
			continue
		}
		if source.Scheme != "" {
			prefix := source.Scheme + " "
			if strings.HasPrefix(value, prefix) {
				return strings.TrimPrefix(value, prefix), nil
			}
			continue
		}
		return value, nil
	}
	return "", fmt.Errorf("no API key found")
}

// writeAuthError emits an OpenAI-shaped authentication error so API
// clients surface it the same way they would an upstream key failure.
func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "authentication_error",
			"code":    "invalid_api_key",
		},
	})
}
