package model

import "encoding/json"

// DecodeTableState parses a stored table document, routing the order list
// through the shape-repairing codec so the caller can log what was fixed.
func DecodeTableState(data []byte) (*TableOrderState, ShapeRepairs, error) {
	var raw struct {
		TableID   string          `json:"table_id"`
		Entries   json.RawMessage `json:"orders"`
		StartedAt int64           `json:"started_at"`
		Status    string          `json:"status"`
		GroupID   string          `json:"settlement_group_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ShapeRepairs{}, err
	}
	entries, rep, err := DecodeEntries(raw.Entries)
	if err != nil {
		return nil, rep, err
	}
	return &TableOrderState{
		TableID:   raw.TableID,
		Entries:   entries,
		StartedAt: raw.StartedAt,
		Status:    raw.Status,
		GroupID:   raw.GroupID,
	}, rep, nil
}

// DecodeTakeoutOrders parses the stored takeout ticket list, repairing each
// ticket's order list the same way.
func DecodeTakeoutOrders(data []byte) ([]*TakeoutOrder, ShapeRepairs, error) {
	var raws []struct {
		TicketID  string          `json:"ticket_id"`
		Entries   json.RawMessage `json:"orders"`
		Paid      bool            `json:"paid"`
		CreatedAt int64           `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, ShapeRepairs{}, err
	}
	var total ShapeRepairs
	out := make([]*TakeoutOrder, 0, len(raws))
	for _, raw := range raws {
		entries, rep, err := DecodeEntries(raw.Entries)
		if err != nil {
			return nil, total, err
		}
		total.Flattened += rep.Flattened
		total.Dropped += rep.Dropped
		out = append(out, &TakeoutOrder{
			TicketID:  raw.TicketID,
			Entries:   entries,
			Paid:      raw.Paid,
			CreatedAt: raw.CreatedAt,
		})
	}
	return out, total, nil
}
