package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Stored order lists come in two shapes: the current flat list and a legacy
// nested-batch list (an array of arrays, one inner array per round). The
// shape is resolved once here, at load time; everything past the codec sees
// a flat list only.

const maxNestingDepth = 8

var errTooDeep = errors.New("order list nested too deep")

// EntryList is a flat order list. Its decoder accepts the legacy nested
// shape and repairs it silently; use DecodeEntries when the caller wants to
// know whether a repair happened.
type EntryList []Entry

// Clone returns a deep copy of the list.
func (l EntryList) Clone() EntryList {
	if l == nil {
		return nil
	}
	c := make(EntryList, len(l))
	for i, e := range l {
		c[i] = e.Clone()
	}
	return c
}

// ShapeRepairs counts what the codec had to fix while decoding.
type ShapeRepairs struct {
	Flattened int // nested arrays hoisted into the flat list
	Dropped   int // null / non-object elements discarded
}

// Dirty reports whether the stored shape deviated from the flat invariant.
func (r ShapeRepairs) Dirty() bool { return r.Flattened > 0 || r.Dropped > 0 }

// DecodeEntries parses an order list, flattening legacy nested batches and
// dropping elements that are not objects. The returned ShapeRepairs lets the
// caller log a warning without failing the load.
func DecodeEntries(data []byte) (EntryList, ShapeRepairs, error) {
	var (
		out EntryList
		rep ShapeRepairs
	)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, rep, nil
	}
	if err := flattenInto(data, &out, &rep, 0); err != nil {
		return nil, rep, err
	}
	return out, rep, nil
}

// UnmarshalJSON delegates to DecodeEntries, discarding the repair report.
func (l *EntryList) UnmarshalJSON(data []byte) error {
	out, _, err := DecodeEntries(data)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

func flattenInto(raw json.RawMessage, out *EntryList, rep *ShapeRepairs, depth int) error {
	if depth > maxNestingDepth {
		return errTooDeep
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '[':
		if depth > 0 {
			rep.Flattened++
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return err
		}
		for _, el := range elems {
			if err := flattenInto(el, out, rep, depth+1); err != nil {
				return err
			}
		}
	case '{':
		var e Entry
		if err := json.Unmarshal(trimmed, &e); err != nil {
			rep.Dropped++
			return nil
		}
		*out = append(*out, e)
	default:
		// null, number, string: nothing an order list should contain
		rep.Dropped++
	}
	return nil
}
