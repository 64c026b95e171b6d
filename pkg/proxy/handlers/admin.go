package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/account/refresh"
	"zaigate/zaigate/pkg/account/store"
	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/requestlog"
)

// AdminHandler serves the account administration API under /api/.
type AdminHandler struct {
	pool     *account.Pool
	store    store.Store
	refresh  *refresh.Manager
	launcher refresh.LoginLauncher
	log      *requestlog.SQLiteLog
	logger   *slog.Logger
}

// NewAdminHandler creates the admin handler. launcher and log may be nil.
func NewAdminHandler(pool *account.Pool, st store.Store, mgr *refresh.Manager, launcher refresh.LoginLauncher, log *requestlog.SQLiteLog, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		pool:     pool,
		store:    st,
		refresh:  mgr,
		launcher: launcher,
		log:      log,
		logger:   logger,
	}
}

// Register wires the admin routes onto a mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/accounts", h.listAccounts)
	mux.HandleFunc("POST /api/accounts", h.addAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", h.deleteAccount)
	mux.HandleFunc("POST /api/accounts/{id}/toggle", h.toggleAccount)
	mux.HandleFunc("POST /api/accounts/{id}/refresh", h.refreshAccount)
	mux.HandleFunc("POST /api/refresh", h.refreshAll)
	mux.HandleFunc("POST /api/login/start", h.startLogin)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/logs", h.recentLogs)
	mux.HandleFunc("DELETE /api/logs", h.clearLogs)
}

func (h *AdminHandler) listAccounts(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"accounts": h.pool.ListStatus(),
	})
}

// addAccountRequest is the body for manually registering an account with a
// known token.
type addAccountRequest struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	AccessToken   string `json:"access_token"`
	CredentialRef string `json:"credential_ref"`
	TokenExpiry   int64  `json:"token_expiry"`
}

func (h *AdminHandler) addAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.AccessToken == "" && req.CredentialRef == "" {
		h.writeJSONError(w, http.StatusBadRequest, "access_token or credential_ref is required")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	var expiry time.Time
	if req.TokenExpiry > 0 {
		expiry = time.Unix(req.TokenExpiry, 0)
	}

	now := time.Now()
	acct := &account.Account{
		ID:            id,
		Email:         req.Email,
		CredentialRef: req.CredentialRef,
		AccessToken:   req.AccessToken,
		TokenExpiry:   expiry,
		Health:        account.HealthHealthy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.Save(r.Context(), acct); err != nil {
		h.logger.Error("failed to persist account", "account_id", id, "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "failed to persist account")
		return
	}
	h.pool.Add(acct)

	h.logger.Info("account added", "account_id", id)
	_ = proxy.WriteJSONResponse(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      id,
	})
}

func (h *AdminHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.pool.Remove(id); err != nil {
		h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", id))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil && err != store.ErrNotFound {
		h.logger.Error("failed to delete stored account", "account_id", id, "error", err)
	}

	h.logger.Info("account removed", "account_id", id)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) toggleAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	acct, err := h.pool.Get(id)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", id))
		return
	}

	next := account.HealthDisabled
	if acct.Health == account.HealthDisabled {
		next = account.HealthHealthy
	}
	if err := h.pool.SetHealth(id, next); err != nil {
		h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", id))
		return
	}

	if updated, err := h.pool.Get(id); err == nil {
		if err := h.store.Save(r.Context(), &updated); err != nil {
			h.logger.Error("failed to persist account state", "account_id", id, "error", err)
		}
	}

	h.logger.Info("account toggled", "account_id", id, "health", next)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"health":  next,
	})
}

func (h *AdminHandler) refreshAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.pool.Get(id); err != nil {
		h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", id))
		return
	}

	if err := h.refresh.ForceRefresh(r.Context(), id); err != nil {
		h.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("refresh failed: %v", err))
		return
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) refreshAll(w http.ResponseWriter, r *http.Request) {
	accounts := h.pool.Accounts()
	started := 0
	for _, acct := range accounts {
		if acct.Health == account.HealthDisabled {
			continue
		}
		started++
		go func(id string) {
			if err := h.refresh.ForceRefresh(context.Background(), id); err != nil {
				h.logger.Warn("forced refresh failed", "account_id", id, "error", err)
			}
		}(acct.ID)
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("refreshing %d accounts", started),
	})
}

// startLoginRequest names the account a browser login should be started
// for.
type startLoginRequest struct {
	AccountID string `json:"account_id"`
}

func (h *AdminHandler) startLogin(w http.ResponseWriter, r *http.Request) {
	if h.launcher == nil {
		h.writeJSONError(w, http.StatusNotImplemented, "no login launcher configured")
		return
	}

	var req startLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		h.writeJSONError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	acct, err := h.pool.Get(req.AccountID)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", req.AccountID))
		return
	}

	token, expiry, err := h.launcher.Login(r.Context(), acct)
	if err != nil {
		h.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("login failed: %v", err))
		return
	}

	if err := h.pool.SetToken(acct.ID, token, expiry); err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "failed to apply token")
		return
	}
	if updated, err := h.pool.Get(acct.ID); err == nil {
		if err := h.store.Save(r.Context(), &updated); err != nil {
			h.logger.Error("failed to persist account state", "account_id", acct.ID, "error", err)
		}
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	statuses := h.pool.ListStatus()
	counts := map[account.Health]int{}
	for _, s := range statuses {
		counts[s.Health]++
	}

	payload := map[string]any{
		"accounts": map[string]any{
			"total":    len(statuses),
			"healthy":  counts[account.HealthHealthy],
			"degraded": counts[account.HealthDegraded],
			"disabled": counts[account.HealthDisabled],
		},
	}

	if h.log != nil {
		agg, err := h.log.Aggregate(r.Context())
		if err != nil {
			h.logger.Error("failed to aggregate request log", "error", err)
		} else {
			payload["requests"] = agg
		}
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandler) recentLogs(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"logs": []any{}})
		return
	}

	records, err := h.log.Recent(r.Context(), 100)
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "failed to read request log")
		return
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"logs": records})
}

func (h *AdminHandler) clearLogs(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if err := h.log.Clear(r.Context()); err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "failed to clear request log")
		return
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) writeJSONError(w http.ResponseWriter, status int, message string) {
	_ = proxy.WriteJSONResponse(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
