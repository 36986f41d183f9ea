// Package store persists engine state: a remote durable store (Firestore or
// Postgres), a best-effort Redis mirror, and the dual-write Adapter that
// fronts both.
package store

import (
	"context"
	"errors"

	"github.com/komorebi-pos/engine/internal/model"
)

// ErrNotFound is returned when a keyed read misses.
var ErrNotFound = errors.New("not found")

// RecordPatch is the only mutation a written sales record accepts.
type RecordPatch struct {
	Refund *model.Refund `json:"refund"`
}

// Remote is the durable store collaborator. Every method may fail with an
// error classified transient (retry) or permanent (surface immediately);
// unclassified errors are treated as permanent.
type Remote interface {
	TableStates(ctx context.Context) (map[string]*model.TableOrderState, error)
	TakeoutOrders(ctx context.Context) ([]*model.TakeoutOrder, error)
	SalesHistory(ctx context.Context) ([]*model.SalesHistoryRecord, error)
	PutTableState(ctx context.Context, id string, st *model.TableOrderState) error
	DeleteTableState(ctx context.Context, id string) error
	PutTakeoutOrders(ctx context.Context, all []*model.TakeoutOrder) error
	AppendSalesRecord(ctx context.Context, rec *model.SalesHistoryRecord) error
	UpdateSalesRecord(ctx context.Context, id string, patch RecordPatch) error
}

// Cache is the local fallback mirror. Same surface as Remote; failures are
// logged, never escalated, and reads serve as a fallback when the remote is
// unreachable.
type Cache interface {
	Remote
}

// --- Error classification ---

type classified struct {
	err       error
	transient bool
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Transient marks err as retryable (network blips, service unavailability).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, transient: true}
}

// Permanent marks err as not worth retrying (authorization, malformed
// request).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, transient: false}
}

// IsTransient reports whether err was classified retryable.
func IsTransient(err error) bool {
	var c *classified
	if errors.As(err, &c) {
		return c.transient
	}
	return false
}
