package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and local
// development; documents are kept as raw JSON so Get/Query decode through
// the same path the Postgres adapter uses.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage // collection -> id -> doc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]json.RawMessage)}
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(doc, out)
}

func (m *MemoryStore) Query(ctx context.Context, collection string, out any, filters ...Filter) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slicePtr := reflect.ValueOf(out)
	if slicePtr.Kind() != reflect.Ptr || slicePtr.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("store: query out must be a pointer to a slice, got %T", out)
	}
	sliceVal := slicePtr.Elem()
	elemType := sliceVal.Type().Elem()

	for _, doc := range m.data[collection] {
		if !matches(doc, filters) {
			continue
		}
		elem := reflect.New(elemType)
		if err := json.Unmarshal(doc, elem.Interface()); err != nil {
			return err
		}
		sliceVal.Set(reflect.Append(sliceVal, elem.Elem()))
	}
	return nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, doc)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(collection, id, fields)
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *MemoryStore) BatchCommit(ctx context.Context, ops []Op) error {
	if len(ops) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			doc, err := json.Marshal(op.Value)
			if err != nil {
				return err
			}
			m.setLocked(op.Collection, op.ID, doc)
		case OpUpdate:
			if err := m.updateLocked(op.Collection, op.ID, op.Fields); err != nil {
				return err
			}
		case OpDelete:
			delete(m.data[op.Collection], op.ID)
		default:
			return fmt.Errorf("store: unknown op kind %q", op.Kind)
		}
	}
	return nil
}

func (m *MemoryStore) setLocked(collection, id string, doc json.RawMessage) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	m.data[collection][id] = doc
}

func (m *MemoryStore) updateLocked(collection, id string, fields map[string]any) error {
	doc, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	var merged map[string]any
	if err := json.Unmarshal(doc, &merged); err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	m.data[collection][id] = out
	return nil
}

func matches(doc json.RawMessage, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	for _, f := range filters {
		got, ok := fields[f.Field]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}
