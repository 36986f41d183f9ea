package store

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	colTables      = "tables"
	colHistory     = "sales_history"
	docTakeout     = "current"
	colTakeout     = "takeout"
	fieldDoc       = "doc"
	fieldUpdatedAt = "updated_at"
)

// FirestoreRemote stores each table, the takeout ticket list, and each sales
// record as a document holding the JSON-encoded value. Keeping the payload
// as one JSON field lets the shape-repairing codec own the decoding for both
// backends.
type FirestoreRemote struct {
	client *firestore.Client
	log    zerolog.Logger
}

// NewFirestoreRemote connects to the project's Firestore database.
func NewFirestoreRemote(ctx context.Context, projectID string, log zerolog.Logger) (*FirestoreRemote, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreRemote{client: client, log: log}, nil
}

// Close releases the underlying client.
func (f *FirestoreRemote) Close() error { return f.client.Close() }

func (f *FirestoreRemote) TableStates(ctx context.Context) (map[string]*model.TableOrderState, error) {
	out := make(map[string]*model.TableOrderState)
	iter := f.client.Collection(colTables).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyFirestore("list tables", err)
		}
		raw, err := docPayload(doc.Data())
		if err != nil {
			return nil, Permanent(fmt.Errorf("table %s: %w", doc.Ref.ID, err))
		}
		st, rep, err := model.DecodeTableState(raw)
		if err != nil {
			return nil, Permanent(fmt.Errorf("table %s: %w", doc.Ref.ID, err))
		}
		if rep.Dirty() {
			f.log.Warn().Str("table_id", doc.Ref.ID).
				Int("flattened", rep.Flattened).Int("dropped", rep.Dropped).
				Msg("repaired stored order list shape")
		}
		st.TableID = doc.Ref.ID
		out[doc.Ref.ID] = st
	}
	return out, nil
}

func (f *FirestoreRemote) TakeoutOrders(ctx context.Context) ([]*model.TakeoutOrder, error) {
	doc, err := f.client.Collection(colTakeout).Doc(docTakeout).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, classifyFirestore("get takeout", err)
	}
	raw, err := docPayload(doc.Data())
	if err != nil {
		return nil, Permanent(err)
	}
	all, rep, err := model.DecodeTakeoutOrders(raw)
	if err != nil {
		return nil, Permanent(err)
	}
	if rep.Dirty() {
		f.log.Warn().Int("flattened", rep.Flattened).Int("dropped", rep.Dropped).
			Msg("repaired stored takeout list shape")
	}
	return all, nil
}

func (f *FirestoreRemote) SalesHistory(ctx context.Context) ([]*model.SalesHistoryRecord, error) {
	var out []*model.SalesHistoryRecord
	iter := f.client.Collection(colHistory).OrderBy("timestamp", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyFirestore("list history", err)
		}
		raw, err := docPayload(doc.Data())
		if err != nil {
			return nil, Permanent(fmt.Errorf("record %s: %w", doc.Ref.ID, err))
		}
		var rec model.SalesHistoryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, Permanent(fmt.Errorf("record %s: %w", doc.Ref.ID, err))
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (f *FirestoreRemote) PutTableState(ctx context.Context, id string, st *model.TableOrderState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return Permanent(err)
	}
	_, err = f.client.Collection(colTables).Doc(id).Set(ctx, map[string]interface{}{
		fieldDoc:       string(raw),
		fieldUpdatedAt: firestore.ServerTimestamp,
		"timestamp":    st.StartedAt,
	})
	return classifyFirestore("put table", err)
}

func (f *FirestoreRemote) DeleteTableState(ctx context.Context, id string) error {
	_, err := f.client.Collection(colTables).Doc(id).Delete(ctx)
	return classifyFirestore("delete table", err)
}

func (f *FirestoreRemote) PutTakeoutOrders(ctx context.Context, all []*model.TakeoutOrder) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return Permanent(err)
	}
	_, err = f.client.Collection(colTakeout).Doc(docTakeout).Set(ctx, map[string]interface{}{
		fieldDoc:       string(raw),
		fieldUpdatedAt: firestore.ServerTimestamp,
	})
	return classifyFirestore("put takeout", err)
}

func (f *FirestoreRemote) AppendSalesRecord(ctx context.Context, rec *model.SalesHistoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return Permanent(err)
	}
	_, err = f.client.Collection(colHistory).Doc(rec.ID).Set(ctx, map[string]interface{}{
		fieldDoc:       string(raw),
		fieldUpdatedAt: firestore.ServerTimestamp,
		"timestamp":    rec.Timestamp,
	})
	return classifyFirestore("append record", err)
}

func (f *FirestoreRemote) UpdateSalesRecord(ctx context.Context, id string, patch RecordPatch) error {
	ref := f.client.Collection(colHistory).Doc(id)
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Permanent(fmt.Errorf("record %s: %w", id, ErrNotFound))
		}
		return classifyFirestore("get record", err)
	}
	raw, err := docPayload(doc.Data())
	if err != nil {
		return Permanent(err)
	}
	var rec model.SalesHistoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Permanent(err)
	}
	rec.Refund = patch.Refund
	updated, err := json.Marshal(&rec)
	if err != nil {
		return Permanent(err)
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		fieldDoc:       string(updated),
		fieldUpdatedAt: firestore.ServerTimestamp,
		"timestamp":    rec.Timestamp,
	})
	return classifyFirestore("update record", err)
}

func docPayload(data map[string]interface{}) ([]byte, error) {
	s, ok := data[fieldDoc].(string)
	if !ok {
		return nil, fmt.Errorf("document missing %q field", fieldDoc)
	}
	return []byte(s), nil
}

// classifyFirestore maps gRPC status codes onto the transient/permanent
// taxonomy. Unknown codes are permanent so a misclassified bug is loud
// rather than retried forever.
func classifyFirestore(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return Transient(wrapped)
	default:
		return Permanent(wrapped)
	}
}
