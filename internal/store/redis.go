package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/rs/zerolog"
)

const (
	redisKeyTables  = "pos:tables"  // hash: table id -> state json
	redisKeyTakeout = "pos:takeout" // string: ticket list json
	redisKeyHistory = "pos:history" // hash: record id -> record json
)

// RedisCache is the best-effort local mirror. It holds the same documents as
// the remote so reads can fall back to it when the remote is unreachable.
type RedisCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisCache connects to the local Redis instance.
func NewRedisCache(addr string, log zerolog.Logger) *RedisCache {
	return &RedisCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		log: log,
	}
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (c *RedisCache) Close() error { return c.rdb.Close() }

func (c *RedisCache) TableStates(ctx context.Context) (map[string]*model.TableOrderState, error) {
	raw, err := c.rdb.HGetAll(ctx, redisKeyTables).Result()
	if err != nil {
		return nil, fmt.Errorf("cache list tables: %w", err)
	}
	out := make(map[string]*model.TableOrderState, len(raw))
	for id, doc := range raw {
		st, rep, err := model.DecodeTableState([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("cache table %s: %w", id, err)
		}
		if rep.Dirty() {
			c.log.Warn().Str("table_id", id).
				Int("flattened", rep.Flattened).Int("dropped", rep.Dropped).
				Msg("repaired cached order list shape")
		}
		st.TableID = id
		out[id] = st
	}
	return out, nil
}

func (c *RedisCache) TakeoutOrders(ctx context.Context) ([]*model.TakeoutOrder, error) {
	doc, err := c.rdb.Get(ctx, redisKeyTakeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get takeout: %w", err)
	}
	all, _, err := model.DecodeTakeoutOrders([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("cache takeout: %w", err)
	}
	return all, nil
}

func (c *RedisCache) SalesHistory(ctx context.Context) ([]*model.SalesHistoryRecord, error) {
	raw, err := c.rdb.HGetAll(ctx, redisKeyHistory).Result()
	if err != nil {
		return nil, fmt.Errorf("cache list history: %w", err)
	}
	out := make([]*model.SalesHistoryRecord, 0, len(raw))
	for id, doc := range raw {
		var rec model.SalesHistoryRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("cache record %s: %w", id, err)
		}
		out = append(out, &rec)
	}
	// Hash iteration order is arbitrary; history is served oldest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (c *RedisCache) PutTableState(ctx context.Context, id string, st *model.TableOrderState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, redisKeyTables, id, raw).Err()
}

func (c *RedisCache) DeleteTableState(ctx context.Context, id string) error {
	return c.rdb.HDel(ctx, redisKeyTables, id).Err()
}

func (c *RedisCache) PutTakeoutOrders(ctx context.Context, all []*model.TakeoutOrder) error {
	if all == nil {
		all = []*model.TakeoutOrder{}
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisKeyTakeout, raw, 0).Err()
}

func (c *RedisCache) AppendSalesRecord(ctx context.Context, rec *model.SalesHistoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, redisKeyHistory, rec.ID, raw).Err()
}

func (c *RedisCache) UpdateSalesRecord(ctx context.Context, id string, patch RecordPatch) error {
	doc, err := c.rdb.HGet(ctx, redisKeyHistory, id).Result()
	if err == redis.Nil {
		return fmt.Errorf("cache record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("cache get record: %w", err)
	}
	var rec model.SalesHistoryRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return err
	}
	rec.Refund = patch.Refund
	raw, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, redisKeyHistory, id, raw).Err()
}
