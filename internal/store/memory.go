package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Memory is an in-process Store used by tests and dry runs. Documents are
// deep-copied on the way in and out so callers cannot alias stored state.
type Memory struct {
	mu      sync.RWMutex
	colls   map[string]map[string]domain.Fields
	commits []int
	fault   func(op, coll string) error
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{colls: make(map[string]map[string]domain.Fields)}
}

// SetFault installs a hook consulted before every operation; a non-nil
// return fails the operation without side effects.
func (m *Memory) SetFault(fn func(op, coll string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

// Commits returns the op count of every successful BatchWrite
func (m *Memory) Commits() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.commits...)
}

// Len returns the number of documents in coll
func (m *Memory) Len(coll string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.colls[coll])
}

func (m *Memory) check(op, coll string) error {
	if m.fault != nil {
		return m.fault(op, coll)
	}
	return nil
}

func (m *Memory) collection(coll string) map[string]domain.Fields {
	c, ok := m.colls[coll]
	if !ok {
		c = make(map[string]domain.Fields)
		m.colls[coll] = c
	}
	return c
}

func (m *Memory) Insert(ctx context.Context, coll string, data domain.Fields) (string, error) {
	id := uuid.NewString()
	if err := m.Upsert(ctx, coll, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Upsert(ctx context.Context, coll, id string, data domain.Fields, mergeFields ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("upsert", coll); err != nil {
		return err
	}
	c := m.collection(coll)
	c[id] = ApplyMerge(c[id], data, mergeFields)
	return nil
}

func (m *Memory) Get(ctx context.Context, coll, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get", coll); err != nil {
		return nil, err
	}
	data, ok := m.colls[coll][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", coll, id, domain.ErrNotFound)
	}
	return &Document{ID: id, Data: copyFields(data)}, nil
}

// Query returns matching documents ordered by id
func (m *Memory) Query(ctx context.Context, coll string, preds ...Predicate) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("query", coll); err != nil {
		return nil, err
	}
	var docs []Document
	for id, data := range m.colls[coll] {
		if Matches(data, preds) {
			docs = append(docs, Document{ID: id, Data: copyFields(data)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *Memory) Delete(ctx context.Context, coll, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete", coll); err != nil {
		return err
	}
	delete(m.colls[coll], id)
	return nil
}

// BatchWrite applies ops all-or-nothing
func (m *Memory) BatchWrite(ctx context.Context, coll string, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckBatch(ops); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("batch", coll); err != nil {
		return err
	}
	c := m.collection(coll)
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			c[op.ID] = copyFields(op.Data)
		case OpMerge:
			c[op.ID] = ApplyMerge(c[op.ID], op.Data, []string{MergeAll})
		case OpDelete:
			delete(c, op.ID)
		}
	}
	m.commits = append(m.commits, len(ops))
	return nil
}

func (m *Memory) Close() error { return nil }
