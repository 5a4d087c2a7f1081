// Package store defines the record store the importers, reconcilers and
// HTTP handlers write through, plus an in-memory backend.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// MergeAll passed as the only merge field merges every supplied field into
// the existing document instead of replacing it.
const MergeAll = "*"

// Document is a stored record and its id
type Document struct {
	ID   string
	Data domain.Fields
}

// Predicate is an equality filter on a top-level field
type Predicate struct {
	Field string
	Value interface{}
}

// Eq builds an equality predicate
func Eq(field string, value interface{}) Predicate {
	return Predicate{Field: field, Value: value}
}

// OpKind selects what a batched Op does
type OpKind int

const (
	OpSet OpKind = iota
	OpMerge
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one write within a batch
type Op struct {
	Kind OpKind
	ID   string
	Data domain.Fields
}

// Set replaces the document
func Set(id string, data domain.Fields) Op { return Op{Kind: OpSet, ID: id, Data: data} }

// Merge merges data into the document, creating it if missing
func Merge(id string, data domain.Fields) Op { return Op{Kind: OpMerge, ID: id, Data: data} }

// Delete removes the document; a missing id is not an error
func Delete(id string) Op { return Op{Kind: OpDelete, ID: id} }

// Store is a document database keyed by (collection, id).
//
// Get returns an error wrapping domain.ErrNotFound for a missing document.
// BatchWrite commits at most domain.MaxBatchOps ops atomically and returns
// domain.ErrBatchTooLarge for anything bigger; use WriteChunked to split.
type Store interface {
	Insert(ctx context.Context, coll string, data domain.Fields) (string, error)
	Upsert(ctx context.Context, coll, id string, data domain.Fields, mergeFields ...string) error
	Get(ctx context.Context, coll, id string) (*Document, error)
	Query(ctx context.Context, coll string, preds ...Predicate) ([]Document, error)
	Delete(ctx context.Context, coll, id string) error
	BatchWrite(ctx context.Context, coll string, ops []Op) error
	Close() error
}

// CheckBatch validates a batch before a backend commits it
func CheckBatch(ops []Op) error {
	if len(ops) > domain.MaxBatchOps {
		return fmt.Errorf("%w: %d ops (max %d)", domain.ErrBatchTooLarge, len(ops), domain.MaxBatchOps)
	}
	for i, op := range ops {
		if op.ID == "" {
			return fmt.Errorf("op %d (%s): document id cannot be empty", i, op.Kind)
		}
	}
	return nil
}

// ApplyMerge returns existing with data merged in according to mergeFields:
// none replaces the document, MergeAll merges every key of data, otherwise
// only the named keys are copied.
func ApplyMerge(existing, data domain.Fields, mergeFields []string) domain.Fields {
	if len(mergeFields) == 0 {
		return copyFields(data)
	}
	out := copyFields(existing)
	if out == nil {
		out = domain.Fields{}
	}
	if len(mergeFields) == 1 && mergeFields[0] == MergeAll {
		for k, v := range data {
			out[k] = copyValue(v)
		}
		return out
	}
	for _, k := range mergeFields {
		if v, ok := data[k]; ok {
			out[k] = copyValue(v)
		}
	}
	return out
}

// Matches reports whether data satisfies every predicate
func Matches(data domain.Fields, preds []Predicate) bool {
	for _, p := range preds {
		v, ok := data[p.Field]
		if !ok || !Equal(v, p.Value) {
			return false
		}
	}
	return true
}

// Equal compares two field values the way a document database does:
// numbers by value regardless of Go type, timestamps by instant, and named
// string types by their text.
func Equal(a, b interface{}) bool {
	a, b = Normalize(a), Normalize(b)
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case float64, string, bool:
		return a == b
	}
	return false
}

// Normalize maps a predicate or field value onto float64, string, bool or
// time.Time where it has such a form.
func Normalize(v interface{}) interface{} {
	if f, ok := toFloat(v); ok {
		return f
	}
	switch t := v.(type) {
	case domain.Source:
		return string(t)
	case domain.Category:
		return string(t)
	case domain.InquiryStatus:
		return string(t)
	case *time.Time:
		if t != nil {
			return *t
		}
	}
	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func copyFields(f domain.Fields) domain.Fields {
	if f == nil {
		return nil
	}
	out := make(domain.Fields, len(f))
	for k, v := range f {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyFields(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
