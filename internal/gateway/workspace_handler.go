package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/provider"
)

// WorkspaceResponse is one workspace as reported by the admin API.
type WorkspaceResponse struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Repo      string `json:"repo"`
	MachineID string `json:"machine_id,omitempty"`
	Status    string `json:"status"`
}

// ListWorkspaces lists all live workspace actors.
func (g *Gateway) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actors := g.registry.List()
	resp := make([]WorkspaceResponse, 0, len(actors))
	for _, a := range actors {
		item := WorkspaceResponse{
			SessionID: a.Key().SessionID,
			User:      a.Key().User,
			Repo:      a.Key().Repo,
			Status:    "provisioning",
		}
		if id, err := a.MachineID(ctx); err == nil {
			item.MachineID = id
			item.Status = "ready"
		}
		resp = append(resp, item)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": resp,
	})
}

// GetWorkspace reports one workspace's machine state. The landing UI polls
// this until the machine id appears.
func (g *Gateway) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	key, ok := g.workspaceKey(w, r)
	if !ok {
		return
	}

	id, err := g.registry.Get(key).MachineID(r.Context())
	if err != nil {
		var appErr *core.AppError
		if errors.As(err, &appErr) {
			WriteError(w, appErr)
			return
		}
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to read workspace state"))
		return
	}

	WriteJSON(w, http.StatusOK, WorkspaceResponse{
		SessionID: key.SessionID,
		User:      key.User,
		Repo:      key.Repo,
		MachineID: id,
		Status:    "ready",
	})
}

// EnsureWorkspace provisions (or restarts) the workspace machine.
func (g *Gateway) EnsureWorkspace(w http.ResponseWriter, r *http.Request) {
	key, ok := g.workspaceKey(w, r)
	if !ok {
		return
	}

	id, err := g.registry.Get(key).Ensure(r.Context())
	if err != nil {
		g.log.Error("ensure failed", zap.String("key", key.String()), zap.Error(err))
		WriteError(w, providerAppError(err))
		return
	}

	WriteJSON(w, http.StatusOK, WorkspaceResponse{
		SessionID: key.SessionID,
		User:      key.User,
		Repo:      key.Repo,
		MachineID: id,
		Status:    "ready",
	})
}

// SuspendWorkspace stops the workspace machine; the id is retained for a
// later restart.
func (g *Gateway) SuspendWorkspace(w http.ResponseWriter, r *http.Request) {
	key, ok := g.workspaceKey(w, r)
	if !ok {
		return
	}

	id, err := g.registry.Get(key).Suspend(r.Context())
	if err != nil {
		var appErr *core.AppError
		if errors.As(err, &appErr) {
			WriteError(w, appErr)
			return
		}
		g.log.Error("suspend failed", zap.String("key", key.String()), zap.Error(err))
		WriteError(w, providerAppError(err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"machine_id": id,
		"status":     "suspended",
	})
}

func (g *Gateway) workspaceKey(w http.ResponseWriter, r *http.Request) (core.WorkspaceKey, bool) {
	key := core.WorkspaceKey{
		SessionID: chi.URLParam(r, "session"),
		User:      chi.URLParam(r, "user"),
		Repo:      chi.URLParam(r, "repo"),
	}
	if err := key.Validate(); err != nil {
		var appErr *core.AppError
		if errors.As(err, &appErr) {
			WriteError(w, appErr)
		} else {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid workspace key"))
		}
		return core.WorkspaceKey{}, false
	}
	return key, true
}

func providerAppError(err error) *core.AppError {
	if kind := provider.Kind(err); kind != "" {
		return core.NewAppError(core.ErrProviderError, string(kind))
	}
	return core.NewAppError(core.ErrInternal, err.Error())
}
