package tools

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/broadcast"
	"github.com/vowsuite/concierge/pending"
	"github.com/vowsuite/concierge/store"
)

type handlerFunc func(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error)

// Dispatcher routes tool calls to their handlers, generates previews,
// manages the confirm/cancel lifecycle and broadcasts sync actions after
// committed mutations.
type Dispatcher struct {
	db          *sql.DB
	pending     *pending.Store
	broadcaster *broadcast.Broadcaster
	logger      *zap.SugaredLogger
	now         func() time.Time
	newID       func() string
	txOpts      store.TxOptions
	handlers    map[Name]handlerFunc
}

// Config wires a Dispatcher. DB and Pending are required; a nil
// Broadcaster disables sync dispatch (tests), Now/NewID default to the
// real clock and uuids.
type Config struct {
	DB          *sql.DB
	Pending     *pending.Store
	Broadcaster *broadcast.Broadcaster
	Logger      *zap.SugaredLogger
	Now         func() time.Time
	NewID       func() string
	TxOptions   store.TxOptions
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("DB is required")
	}
	if cfg.Pending == nil {
		return nil, fmt.Errorf("Pending store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	d := &Dispatcher{
		db:          cfg.DB,
		pending:     cfg.Pending,
		broadcaster: cfg.Broadcaster,
		logger:      cfg.Logger,
		now:         cfg.Now,
		newID:       cfg.NewID,
		txOpts:      cfg.TxOptions,
	}
	d.handlers = map[Name]handlerFunc{
		NameGetClient:        handleGetClient,
		NameListGuests:       handleListGuests,
		NameGetBudgetSummary: handleGetBudgetSummary,
		NameGetTimeline:      handleGetTimeline,
		NameListVendors:      handleListVendors,
		NameCreateClient:     handleCreateClient,
		NameAddGuest:         handleAddGuest,
		NameUpdateGuestRSVP:  handleUpdateGuestRSVP,
		NameRemoveGuest:      handleRemoveGuest,
		NameAddBudgetItem:    handleAddBudgetItem,
		NameUpdateBudgetItem: handleUpdateBudgetItem,
		NameAddTimelineItem:  handleAddTimelineItem,
		NameShiftTimeline:    handleShiftTimeline,
		NameAddVendor:        handleAddVendor,
		NameBookVendor:       handleBookVendor,
	}
	return d, nil
}

// Execute dispatches one tool call to its handler. The handler validates
// its own arguments, resolves entity references and runs its writes inside
// a wrapped transaction. Anything not already a classified error comes
// back as Internal.
func (d *Dispatcher) Execute(ctx context.Context, name Name, args map[string]any, caller concierge.CallerContext) (result *concierge.ToolExecutionResult, err error) {
	if !caller.Valid() {
		return nil, concierge.Unauthenticated("caller identity or tenant is missing")
	}
	if _, ok := Lookup(name); !ok {
		return nil, concierge.UnknownTool(string(name))
	}
	handler, ok := d.handlers[name]
	if !ok {
		return nil, concierge.NotImplemented(string(name))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("tool handler panicked", "tool", name, "panic", r)
			result, err = nil, concierge.Internal(fmt.Errorf("tool %s panicked: %v", name, r))
		}
	}()

	result, err = handler(ctx, d, caller, argBag(args))
	if err != nil {
		return nil, concierge.AsError(err)
	}
	return result, nil
}

// ExecuteWithSync wraps Execute: on success of a non-query tool it builds
// the SyncAction describing which cached queries are now stale and hands it
// to the broadcaster. A broadcast failure can never revert or fail the
// already-committed mutation.
func (d *Dispatcher) ExecuteWithSync(ctx context.Context, name Name, args map[string]any, caller concierge.CallerContext) (*concierge.ToolExecutionResult, error) {
	result, err := d.Execute(ctx, name, args, caller)
	if err != nil {
		return nil, err
	}

	meta, _ := Lookup(name)
	if meta.Kind == KindQuery || d.broadcaster == nil {
		return result, nil
	}

	d.broadcaster.Dispatch(concierge.SyncAction{
		ID:         d.newID(),
		Type:       meta.SyncType,
		Module:     meta.Module,
		EntityID:   entityIDOf(result.Data),
		Data:       result.Data,
		TenantID:   caller.TenantID,
		ScopeID:    caller.ScopeID,
		UserID:     caller.UserID,
		Timestamp:  d.now(),
		QueryPaths: QueryPathsFor(name),
		ToolName:   string(name),
	})
	return result, nil
}

// Proposal is the outcome of proposing a tool call from the model: either
// an immediately executed result (queries and confirmation-exempt
// mutations) or a pending call awaiting the user's decision.
type Proposal struct {
	Preview concierge.ToolPreview
	Pending *concierge.PendingToolCall
	Result  *concierge.ToolExecutionResult
}

// Propose previews the call, then either executes it right away or parks
// it in the pending store for confirmation.
func (d *Dispatcher) Propose(ctx context.Context, name Name, args map[string]any, caller concierge.CallerContext) (*Proposal, error) {
	if !caller.Valid() {
		return nil, concierge.Unauthenticated("caller identity or tenant is missing")
	}
	preview, err := d.GeneratePreview(ctx, name, args, caller)
	if err != nil {
		return nil, err
	}

	if preview.RequiresConfirmation {
		call, err := d.pending.Create(ctx, caller, string(name), args, *preview)
		if err != nil {
			return nil, concierge.AsError(err)
		}
		return &Proposal{Preview: *preview, Pending: call}, nil
	}

	result, err := d.ExecuteWithSync(ctx, name, args, caller)
	if err != nil {
		return nil, err
	}
	return &Proposal{Preview: *preview, Result: result}, nil
}

// Confirm claims the pending call and executes it. A second confirm (or a
// racing cancel) for the same id fails with NotFound because the record is
// gone. When execution fails before committing, the call is written back so
// the user can retry confirmation without re-proposing the action.
func (d *Dispatcher) Confirm(ctx context.Context, id string, caller concierge.CallerContext) (*concierge.ToolExecutionResult, error) {
	if !caller.Valid() {
		return nil, concierge.Unauthenticated("caller identity or tenant is missing")
	}

	call, err := d.pending.Take(ctx, id)
	if err != nil {
		return nil, concierge.AsError(err)
	}
	if call == nil {
		return nil, concierge.NotFound("pending call %s not found or expired", id)
	}
	if call.TenantID != caller.TenantID {
		d.restore(ctx, call)
		return nil, concierge.NotFound("pending call %s not found or expired", id)
	}

	result, err := d.ExecuteWithSync(ctx, Name(call.ToolName), call.Arguments, caller)
	if err != nil {
		d.restore(ctx, call)
		return nil, err
	}
	return result, nil
}

// Cancel claims and discards the pending call.
func (d *Dispatcher) Cancel(ctx context.Context, id string, caller concierge.CallerContext) error {
	if !caller.Valid() {
		return concierge.Unauthenticated("caller identity or tenant is missing")
	}
	call, err := d.pending.Take(ctx, id)
	if err != nil {
		return concierge.AsError(err)
	}
	if call == nil {
		return concierge.NotFound("pending call %s not found or expired", id)
	}
	if call.TenantID != caller.TenantID {
		d.restore(ctx, call)
		return concierge.NotFound("pending call %s not found or expired", id)
	}
	return nil
}

// PendingForUser lists the caller's live pending calls for multi-session
// visibility.
func (d *Dispatcher) PendingForUser(ctx context.Context, caller concierge.CallerContext) ([]*concierge.PendingToolCall, error) {
	if !caller.Valid() {
		return nil, concierge.Unauthenticated("caller identity or tenant is missing")
	}
	calls, err := d.pending.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, concierge.AsError(err)
	}
	return calls, nil
}

func (d *Dispatcher) restore(ctx context.Context, call *concierge.PendingToolCall) {
	if err := d.pending.Set(ctx, call); err != nil {
		d.logger.Errorw("failed to restore pending call after failed confirmation",
			"pendingCall", call.ID, "tool", call.ToolName, "err", err)
	}
}

// entityIDOf pulls the primary entity id out of a handler's result payload.
func entityIDOf(data any) string {
	switch v := data.(type) {
	case *store.Client:
		return v.ID
	case *store.Guest:
		return v.ID
	case *store.BudgetItem:
		return v.ID
	case *store.TimelineItem:
		return v.ID
	case *store.Vendor:
		return v.ID
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}
