package resource

import (
	"context"
	"fmt"

	"docprov/internal/logging"
	"docprov/internal/metrics"
)

// EnsureAction describes how EnsureExists satisfied a descriptor
type EnsureAction string

const (
	// EnsureActionExisting means a resource with the id was already listed
	EnsureActionExisting EnsureAction = "existing"
	// EnsureActionCreated means the resource was absent and has been created
	EnsureActionCreated EnsureAction = "created"
	// EnsureActionAdopted means the create lost a race and the winner was returned
	EnsureActionAdopted EnsureAction = "adopted"
)

// EnsureResult is the outcome of EnsureExists
type EnsureResult struct {
	Handle *Handle      `json:"handle"`
	Action EnsureAction `json:"action"`
}

// LookupResult is the outcome of Lookup. Handle is nil when Found is false.
type LookupResult struct {
	Handle *Handle
	Found  bool
}

// Reconciler makes resources exist without touching resources that already do.
//
// EnsureExists lists the scope, then creates when the id is missing. Two
// callers racing on the same id may both see it missing; the loser's create
// then fails with a conflict. By default that conflict is returned to the
// caller. With ConflictAsExisting set, the Reconciler lists once more and
// returns the winner instead.
type Reconciler struct {
	ConflictAsExisting bool
}

// NewReconciler creates a Reconciler
func NewReconciler(conflictAsExisting bool) *Reconciler {
	return &Reconciler{ConflictAsExisting: conflictAsExisting}
}

// Lookup scans the full listing of scope for a resource with the given id
func (r *Reconciler) Lookup(ctx context.Context, scope Scope, id string, lister Lister) (LookupResult, error) {
	if id == "" {
		return LookupResult{}, ErrEmptyID
	}

	handles, err := lister.List(ctx, scope)
	if err != nil {
		return LookupResult{}, fmt.Errorf("failed to list scope %q: %w", scope, err)
	}

	for i := range handles {
		if handles[i].ID == id {
			h := handles[i]
			return LookupResult{Handle: &h, Found: true}, nil
		}
	}
	return LookupResult{}, nil
}

// EnsureExists returns the existing resource matching desc.ID in desc.Scope,
// creating it when absent. It never modifies an existing resource.
func (r *Reconciler) EnsureExists(ctx context.Context, desc Descriptor, lister Lister, creator Creator) (*EnsureResult, error) {
	ref := desc.Reference()
	if desc.ID == "" {
		return nil, fmt.Errorf("ensure %s: %w", desc.Type, ErrEmptyID)
	}

	found, err := r.Lookup(ctx, desc.Scope, desc.ID, lister)
	if err != nil {
		metrics.RecordEnsure(string(desc.Type), "failed")
		return nil, err
	}
	if found.Found {
		logging.Debug("Reconciler", "%s already exists", ref)
		metrics.RecordEnsure(string(desc.Type), string(EnsureActionExisting))
		return &EnsureResult{Handle: found.Handle, Action: EnsureActionExisting}, nil
	}

	logging.Info("Reconciler", "creating %s", ref)
	handle, err := creator.Create(ctx, desc.Scope, desc)
	if err == nil {
		metrics.RecordEnsure(string(desc.Type), string(EnsureActionCreated))
		return &EnsureResult{Handle: handle, Action: EnsureActionCreated}, nil
	}

	if r.ConflictAsExisting && IsConflict(err) {
		logging.Warn("Reconciler", "create of %s conflicted, looking up the existing resource", ref)
		winner, lookupErr := r.Lookup(ctx, desc.Scope, desc.ID, lister)
		if lookupErr == nil && winner.Found {
			metrics.RecordEnsure(string(desc.Type), string(EnsureActionAdopted))
			return &EnsureResult{Handle: winner.Handle, Action: EnsureActionAdopted}, nil
		}
	}

	metrics.RecordEnsure(string(desc.Type), "failed")
	return nil, fmt.Errorf("failed to create %s: %w", ref, err)
}
