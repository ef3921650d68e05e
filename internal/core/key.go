package core

import (
	"fmt"
	"strings"
)

// WorkspaceKey identifies one workspace: at most one machine exists per key.
type WorkspaceKey struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Repo      string `json:"repo"`
}

// Validate rejects keys whose components are empty or unsafe to use as
// filesystem path elements.
func (k WorkspaceKey) Validate() error {
	for _, part := range []struct {
		name  string
		value string
	}{
		{"session_id", k.SessionID},
		{"user", k.User},
		{"repo", k.Repo},
	} {
		if part.value == "" {
			return NewAppError(ErrBadRequest, fmt.Sprintf("%s must not be empty", part.name))
		}
		if strings.ContainsAny(part.value, "/\\\x00") || strings.Contains(part.value, "..") {
			return NewAppError(ErrBadRequest, fmt.Sprintf("%s contains unsafe characters", part.name))
		}
	}
	return nil
}

func (k WorkspaceKey) String() string {
	return k.SessionID + "/" + k.User + "/" + k.Repo
}
