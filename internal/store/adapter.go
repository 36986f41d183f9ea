package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/komorebi-pos/engine/internal/model"
)

// Receipt reports where a write landed.
type Receipt struct {
	Remote bool `json:"committed_remote"`
	Local  bool `json:"committed_local"`
}

// Degraded reports a write that only reached the local mirror.
func (r Receipt) Degraded() bool { return !r.Remote && r.Local }

// Adapter fronts the remote store with bounded retry and mirrors every write
// into the local cache. Three outcomes per write: both committed (full
// success), local only (degraded: warn, don't fail), neither (hard failure).
//
// Keys whose remote write failed transiently are kept in a dirty set; Flush
// replays them once connectivity returns. Permanently rejected writes are
// never queued.
type Adapter struct {
	remote Remote
	cache  Cache // may be nil
	log    zerolog.Logger

	maxRetries uint64
	baseDelay  time.Duration

	mu    sync.Mutex
	dirty map[string]func(context.Context) error
}

// NewAdapter wires the remote and the optional cache. maxRetries bounds the
// remote retry budget; baseDelay doubles per attempt.
func NewAdapter(remote Remote, cache Cache, maxRetries uint64, baseDelay time.Duration, log zerolog.Logger) *Adapter {
	return &Adapter{
		remote:     remote,
		cache:      cache,
		log:        log,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		dirty:      make(map[string]func(context.Context) error),
	}
}

// --- Reads (remote first, cache fallback) ---

func (a *Adapter) TableStates(ctx context.Context) (map[string]*model.TableOrderState, error) {
	states, err := a.remote.TableStates(ctx)
	if err == nil {
		return states, nil
	}
	if a.cache == nil {
		return nil, err
	}
	a.log.Warn().Err(err).Msg("remote table read failed, serving cache")
	return a.cache.TableStates(ctx)
}

func (a *Adapter) TakeoutOrders(ctx context.Context) ([]*model.TakeoutOrder, error) {
	all, err := a.remote.TakeoutOrders(ctx)
	if err == nil {
		return all, nil
	}
	if a.cache == nil {
		return nil, err
	}
	a.log.Warn().Err(err).Msg("remote takeout read failed, serving cache")
	return a.cache.TakeoutOrders(ctx)
}

func (a *Adapter) SalesHistory(ctx context.Context) ([]*model.SalesHistoryRecord, error) {
	recs, err := a.remote.SalesHistory(ctx)
	if err == nil {
		return recs, nil
	}
	if a.cache == nil {
		return nil, err
	}
	a.log.Warn().Err(err).Msg("remote history read failed, serving cache")
	return a.cache.SalesHistory(ctx)
}

// --- Writes (dual) ---

func (a *Adapter) PutTableState(ctx context.Context, id string, st *model.TableOrderState) (Receipt, error) {
	st = st.Clone()
	return a.write(ctx, keyPrefixTable+id,
		func(ctx context.Context) error { return a.remote.PutTableState(ctx, id, st) },
		func(ctx context.Context) error { return a.cache.PutTableState(ctx, id, st) })
}

func (a *Adapter) DeleteTableState(ctx context.Context, id string) (Receipt, error) {
	return a.write(ctx, keyPrefixTable+id,
		func(ctx context.Context) error { return a.remote.DeleteTableState(ctx, id) },
		func(ctx context.Context) error { return a.cache.DeleteTableState(ctx, id) })
}

func (a *Adapter) PutTakeoutOrders(ctx context.Context, all []*model.TakeoutOrder) (Receipt, error) {
	snap := make([]*model.TakeoutOrder, len(all))
	for i, t := range all {
		snap[i] = t.Clone()
	}
	return a.write(ctx, keyTakeout,
		func(ctx context.Context) error { return a.remote.PutTakeoutOrders(ctx, snap) },
		func(ctx context.Context) error { return a.cache.PutTakeoutOrders(ctx, snap) })
}

func (a *Adapter) AppendSalesRecord(ctx context.Context, rec *model.SalesHistoryRecord) (Receipt, error) {
	rec = rec.Clone()
	return a.write(ctx, keyPrefixHistory+rec.ID,
		func(ctx context.Context) error { return a.remote.AppendSalesRecord(ctx, rec) },
		func(ctx context.Context) error { return a.cache.AppendSalesRecord(ctx, rec) })
}

func (a *Adapter) UpdateSalesRecord(ctx context.Context, id string, patch RecordPatch) (Receipt, error) {
	return a.write(ctx, keyPrefixHistory+id+":refund",
		func(ctx context.Context) error { return a.remote.UpdateSalesRecord(ctx, id, patch) },
		func(ctx context.Context) error { return a.cache.UpdateSalesRecord(ctx, id, patch) })
}

func (a *Adapter) write(ctx context.Context, key string, remote, local func(context.Context) error) (Receipt, error) {
	var rc Receipt

	remoteErr := a.retryRemote(ctx, remote)
	switch {
	case remoteErr == nil:
		rc.Remote = true
		a.clearDirty(key)
	case IsTransient(remoteErr):
		a.markDirty(key, remote)
	default:
		// The remote understood and rejected the write; Flush would only
		// repeat the rejection.
		a.clearDirty(key)
		a.log.Error().Err(remoteErr).Str("key", key).Msg("remote rejected write, not queued for replay")
	}

	if a.cache != nil {
		if localErr := local(ctx); localErr == nil {
			rc.Local = true
		} else {
			a.log.Warn().Err(localErr).Str("key", key).Msg("cache write failed")
		}
	}

	switch {
	case rc.Remote:
		return rc, nil
	case rc.Local:
		a.log.Warn().Err(remoteErr).Str("key", key).Msg("degraded write: local cache only")
		return rc, nil
	default:
		return rc, fmt.Errorf("write %s: %w", key, remoteErr)
	}
}

// retryRemote retries transient failures with exponential backoff up to the
// configured budget. Permanent failures abort immediately.
func (a *Adapter) retryRemote(ctx context.Context, op func(context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.baseDelay
	exp.RandomizationFactor = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, a.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// --- Dirty-key reconciliation ---

func (a *Adapter) markDirty(key string, op func(context.Context) error) {
	a.mu.Lock()
	a.dirty[key] = op
	a.mu.Unlock()
}

func (a *Adapter) clearDirty(key string) {
	a.mu.Lock()
	delete(a.dirty, key)
	a.mu.Unlock()
}

// Pending returns the number of writes that have not reached the remote.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dirty)
}

// Flush replays writes that only reached the local cache. Each replayed key
// gets one retry budget; keys that still fail stay dirty. Returns the number
// of keys that reconciled.
func (a *Adapter) Flush(ctx context.Context) int {
	a.mu.Lock()
	pending := make(map[string]func(context.Context) error, len(a.dirty))
	for k, op := range a.dirty {
		pending[k] = op
	}
	a.mu.Unlock()

	flushed := 0
	for key, op := range pending {
		if err := a.retryRemote(ctx, op); err != nil {
			a.log.Warn().Err(err).Str("key", key).Msg("flush: remote still failing")
			continue
		}
		a.clearDirty(key)
		flushed++
	}
	if flushed > 0 {
		a.log.Info().Int("flushed", flushed).Msg("reconciled local-only writes")
	}
	return flushed
}
