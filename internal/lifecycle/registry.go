package lifecycle

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/observability"
	"github.com/eurekahq/wsgate/internal/provider"
	"github.com/eurekahq/wsgate/internal/store"
)

// Registry is the process-wide actor map. Exactly one actor exists per
// workspace key; Get is the only way to obtain one.
type Registry struct {
	provider provider.API
	store    *store.Store
	cfg      Config
	log      *zap.Logger

	mu     sync.Mutex
	actors map[core.WorkspaceKey]*Actor
}

func NewRegistry(p provider.API, s *store.Store, cfg Config, log *zap.Logger) *Registry {
	return &Registry{
		provider: p,
		store:    s,
		cfg:      cfg,
		log:      log,
		actors:   make(map[core.WorkspaceKey]*Actor),
	}
}

// Get returns the actor for key, creating it if none exists. Creation is
// exclusive: concurrent callers for the same key all receive the same actor.
func (r *Registry) Get(key core.WorkspaceKey) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[key]; ok {
		return a
	}
	a := newActor(key, r.provider, r.store, r.cfg, r.log)
	r.actors[key] = a
	observability.ActorCount.Set(float64(len(r.actors)))
	return a
}

// List returns a snapshot of all live actors.
func (r *Registry) List() []*Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}
