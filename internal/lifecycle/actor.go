// Package lifecycle owns workspace machines: one serialized actor per
// (session, user, repo) key provisions, suspends and recovers the single VM
// backing that workspace.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/observability"
	"github.com/eurekahq/wsgate/internal/provider"
	"github.com/eurekahq/wsgate/internal/retry"
	"github.com/eurekahq/wsgate/internal/store"
)

type Config struct {
	// InactivityTimeout is how long a machine may sit idle before the actor
	// suspends it.
	InactivityTimeout time.Duration
	// CallTimeout bounds how long an outside caller waits on an actor
	// operation. The actor itself finishes the operation regardless.
	CallTimeout time.Duration
	// MachineOpTimeout is the per-call deadline for operations run against a
	// machine through Request.
	MachineOpTimeout time.Duration
	// Retry governs the re-invocation sequence after a start recovery.
	Retry retry.Options
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 30 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 20 * time.Second
	}
	if c.MachineOpTimeout <= 0 {
		c.MachineOpTimeout = 5 * time.Second
	}
	return c
}

// MachineOp is an operation executed against a live machine. The actor hands
// it the machine id and a per-call deadline.
type MachineOp func(ctx context.Context, machineID string) (any, error)

type msgKind int

const (
	msgMachineID msgKind = iota
	msgEnsure
	msgSuspend
	msgWake
	msgRequest
	msgIdleFired
)

type message struct {
	kind  msgKind
	op    MachineOp
	gen   int // idle-timer generation, msgIdleFired only
	reply chan response
}

type response struct {
	machineID string
	value     any
	err       error
}

// Actor serializes all lifecycle operations for one workspace key. State is
// owned exclusively by the run goroutine; callers interact through the inbox
// and block on one-shot reply channels.
type Actor struct {
	key      core.WorkspaceKey
	provider provider.API
	store    *store.Store
	cfg      Config
	log      *zap.Logger
	inbox    chan message

	// run-goroutine state
	machineID string
	idle      *time.Timer
	idleGen   int
}

func newActor(key core.WorkspaceKey, p provider.API, s *store.Store, cfg Config, log *zap.Logger) *Actor {
	a := &Actor{
		key:      key,
		provider: p,
		store:    s,
		cfg:      cfg.withDefaults(),
		log:      observability.WorkspaceLogger(log, key),
		inbox:    make(chan message, 16),
	}
	go a.run()
	return a
}

func (a *Actor) Key() core.WorkspaceKey { return a.key }

// MachineID returns the current machine id, or WSG_NO_MACHINE when the
// workspace has not been provisioned yet.
func (a *Actor) MachineID(ctx context.Context) (string, error) {
	resp, err := a.call(ctx, message{kind: msgMachineID})
	if err != nil {
		return "", err
	}
	return resp.machineID, resp.err
}

// Ensure returns the id of a running machine for this workspace, creating,
// adopting or restarting one as needed. Concurrent callers are serialized and
// all observe the same id.
func (a *Actor) Ensure(ctx context.Context) (string, error) {
	resp, err := a.call(ctx, message{kind: msgEnsure})
	if err != nil {
		return "", err
	}
	return resp.machineID, resp.err
}

// Suspend stops the machine and returns its id. The id stays in memory so the
// machine can be restarted later.
func (a *Actor) Suspend(ctx context.Context) (string, error) {
	resp, err := a.call(ctx, message{kind: msgSuspend})
	if err != nil {
		return "", err
	}
	return resp.machineID, resp.err
}

// Wake restarts the machine after a caller observed it unreachable. Used by
// the proxy when dialing the machine fails with a transient network error.
func (a *Actor) Wake(ctx context.Context) error {
	resp, err := a.call(ctx, message{kind: msgWake})
	if err != nil {
		return err
	}
	return resp.err
}

// Request runs op against the machine under the actor's lock, transparently
// starting a suspended machine and retrying op when the failure looks like
// "suspended or still booting" (NXDOMAIN or timeout).
func (a *Actor) Request(ctx context.Context, op MachineOp) (any, error) {
	resp, err := a.call(ctx, message{kind: msgRequest, op: op})
	if err != nil {
		return nil, err
	}
	return resp.value, resp.err
}

// call submits msg and waits for the reply under the caller deadline. The
// actor always completes the operation and replies into a buffered channel, so
// an abandoned call never blocks it.
func (a *Actor) call(ctx context.Context, msg message) (response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
	}
	msg.reply = make(chan response, 1)

	select {
	case a.inbox <- msg:
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-msg.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (a *Actor) run() {
	for msg := range a.inbox {
		switch msg.kind {
		case msgMachineID:
			if a.machineID == "" {
				msg.reply <- response{err: core.NewAppError(core.ErrNoMachine, "workspace has no machine")}
			} else {
				msg.reply <- response{machineID: a.machineID}
			}

		case msgEnsure:
			id, err := a.ensure()
			msg.reply <- response{machineID: id, err: err}

		case msgSuspend:
			id, err := a.suspend("manual")
			msg.reply <- response{machineID: id, err: err}

		case msgWake:
			msg.reply <- response{err: a.wake()}

		case msgRequest:
			v, err := a.request(msg.op)
			msg.reply <- response{value: v, err: err}

		case msgIdleFired:
			if msg.gen != a.idleGen || a.machineID == "" {
				continue // timer was cancelled or replaced after firing
			}
			a.idle = nil
			if _, err := a.suspend("inactivity"); err != nil {
				a.log.Warn("auto-suspend failed", zap.Error(err))
			}
		}
	}
}

// ensure implements the provisioning ladder: in-memory id, persisted id plus
// start, orphan adoption from the provider list, then create.
func (a *Actor) ensure() (string, error) {
	start := time.Now()
	defer func() {
		observability.EnsureDuration.Observe(time.Since(start).Seconds())
	}()

	if a.machineID != "" {
		a.armIdle()
		return a.machineID, nil
	}

	if id := a.ensureFromStore(); id != "" {
		return id, nil
	}
	if id := a.ensureFromProviderList(); id != "" {
		return id, nil
	}
	return a.ensureCreate()
}

func (a *Actor) ensureFromStore() string {
	rec, err := a.store.Load(a.key)
	switch {
	case err == nil:
		startErr := a.startMachine(rec.MachineID)
		if startErr != nil {
			a.log.Warn("persisted machine failed to start",
				zap.String("machine_id", rec.MachineID), zap.Error(startErr))
			return ""
		}
		a.adopt(rec.MachineID, false)
		return rec.MachineID

	case errors.Is(err, store.ErrCorrupt):
		// Prefer recreating over poisoning the workspace.
		a.log.Warn("machine record corrupt, reprovisioning", zap.Error(err))
		return ""

	case errors.Is(err, store.ErrNotFound):
		return ""

	default:
		observability.StoreErrorsTotal.WithLabelValues("load").Inc()
		a.log.Warn("machine record unreadable", zap.Error(err))
		return ""
	}
}

// ensureFromProviderList recovers an orphaned machine after local state loss:
// a machine whose env matches this workspace's user and repo is adopted
// instead of creating a duplicate.
func (a *Actor) ensureFromProviderList() string {
	ctx, cancel := a.providerCtx()
	defer cancel()

	machines, err := a.provider.ListMachines(ctx)
	if err != nil {
		a.log.Warn("machine list failed", zap.Error(err))
		return ""
	}

	var match string
	for _, m := range machines {
		env := m.Config.Env
		if env["USERNAME"] == a.key.User && env["REPO_NAME"] == a.key.Repo && m.ID != "" {
			if match != "" {
				a.log.Warn("multiple machines match workspace, not adopting")
				return ""
			}
			match = m.ID
		}
	}
	if match == "" {
		return ""
	}

	observability.MachineAdoptionsTotal.Inc()
	a.log.Info("adopted orphaned machine", zap.String("machine_id", match))
	a.adopt(match, true)
	return match
}

func (a *Actor) ensureCreate() (string, error) {
	ctx, cancel := a.providerCtx()
	defer cancel()

	id, err := a.provider.CreateMachine(ctx, map[string]any{
		"config": map[string]any{
			"env": map[string]any{
				"USERNAME":  a.key.User,
				"REPO_NAME": a.key.Repo,
			},
		},
	})
	if err != nil {
		observability.MachineCreatesTotal.WithLabelValues("error").Inc()
		a.log.Error("machine create failed", zap.Error(err))
		return "", err
	}

	observability.MachineCreatesTotal.WithLabelValues("ok").Inc()
	a.log.Info("machine provisioned", zap.String("machine_id", id))
	a.adopt(id, true)
	return id, nil
}

// adopt records id as this workspace's machine and arms the idle timer.
// persist is false when the id came from the store in the first place.
func (a *Actor) adopt(id string, persist bool) {
	a.machineID = id
	if persist {
		if err := a.store.Save(a.key, store.MachineRecord{MachineID: id}); err != nil {
			// Non-fatal: the provider is the ground truth.
			observability.StoreErrorsTotal.WithLabelValues("save").Inc()
			a.log.Warn("machine record save failed", zap.Error(err))
		}
	}
	a.armIdle()
}

func (a *Actor) suspend(trigger string) (string, error) {
	if a.machineID == "" {
		return "", core.NewAppError(core.ErrNoMachine, "workspace has no machine")
	}
	a.cancelIdle()

	ctx, cancel := a.providerCtx()
	defer cancel()

	id := a.machineID
	if err := a.provider.StopMachine(ctx, id); err != nil {
		a.log.Error("machine stop failed", zap.String("machine_id", id), zap.Error(err))
		return "", err
	}

	observability.MachineSuspendsTotal.WithLabelValues(trigger).Inc()
	a.log.Info("machine suspended",
		zap.String("machine_id", id), zap.String("trigger", trigger))
	return id, nil
}

func (a *Actor) wake() error {
	if a.machineID == "" {
		return core.NewAppError(core.ErrNoMachine, "workspace has no machine")
	}
	if err := a.startMachine(a.machineID); err != nil {
		return err
	}
	observability.MachineRecoveriesTotal.Inc()
	a.armIdle()
	return nil
}

func (a *Actor) request(op MachineOp) (any, error) {
	if a.machineID == "" {
		return nil, core.NewAppError(core.ErrNoMachine, "workspace has no machine")
	}
	id := a.machineID

	v, err := a.runOp(op, id)
	if err == nil {
		a.armIdle()
		return v, nil
	}

	if !transientMachineError(err) {
		return v, err
	}

	// NXDOMAIN or timeout means the machine is suspended or still booting:
	// start it and re-invoke under backoff.
	if startErr := a.startMachine(id); startErr != nil {
		a.log.Warn("machine start during recovery failed", zap.Error(startErr))
		return v, err
	}
	observability.MachineRecoveriesTotal.Inc()

	v, err = retry.Do(context.Background(), a.cfg.Retry, func() (any, error) {
		return a.runOp(op, id)
	}, transientMachineError)
	if err == nil {
		a.armIdle()
	}
	return v, err
}

func (a *Actor) runOp(op MachineOp, id string) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.MachineOpTimeout)
	defer cancel()
	return op(ctx, id)
}

func (a *Actor) startMachine(id string) error {
	ctx, cancel := a.providerCtx()
	defer cancel()
	if err := a.provider.StartMachine(ctx, id); err != nil {
		observability.MachineStartsTotal.WithLabelValues("error").Inc()
		return err
	}
	observability.MachineStartsTotal.WithLabelValues("ok").Inc()
	return nil
}

// providerCtx bounds a provider call made on the actor's own behalf. Caller
// deadlines are deliberately not propagated here: an abandoned caller must
// not leave a half-finished lifecycle operation behind.
func (a *Actor) providerCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cfg.CallTimeout)
}

func (a *Actor) armIdle() {
	if a.machineID == "" {
		return
	}
	a.cancelIdle()
	gen := a.idleGen
	a.idle = time.AfterFunc(a.cfg.InactivityTimeout, func() {
		a.inbox <- message{kind: msgIdleFired, gen: gen}
	})
}

func (a *Actor) cancelIdle() {
	a.idleGen++
	if a.idle != nil {
		a.idle.Stop()
		a.idle = nil
	}
}

func transientMachineError(err error) bool {
	return provider.IsNXDOMAIN(err) || provider.IsTimeout(err)
}
