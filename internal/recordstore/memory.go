package recordstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"referral-workers/internal/common/errors"
)

// MemoryStore keeps records in process. Values are normalized through JSON on
// write so reads look like the network backends.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]*Record
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]*Record),
		now:    time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, table, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Query(ctx context.Context, table string, filter Filter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, rec := range m.tables[table] {
		if matches(filter, rec.Fields) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedTime.Equal(out[j].CreatedTime) {
			return out[i].CreatedTime.Before(out[j].CreatedTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, table string, fields map[string]interface{}) (*Record, error) {
	return m.Put(ctx, table, uuid.NewString(), fields)
}

// Put creates or replaces a record under a caller-chosen id.
func (m *MemoryStore) Put(ctx context.Context, table, id string, fields map[string]interface{}) (*Record, error) {
	norm, err := normalize(fields)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tables[table] == nil {
		m.tables[table] = make(map[string]*Record)
	}
	rec := &Record{ID: id, Fields: norm, CreatedTime: m.now().UTC()}
	m.tables[table][id] = rec
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Update(ctx context.Context, table, id string, fields map[string]interface{}) (*Record, error) {
	norm, err := normalize(fields)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	for k, v := range norm {
		rec.Fields[k] = v
	}
	return cloneRecord(rec), nil
}

func matches(f Filter, fields map[string]interface{}) bool {
	switch f := f.(type) {
	case nil:
		return true
	case EqFilter:
		got, ok := fields[f.Field]
		return ok && reflect.DeepEqual(got, normalizeValue(f.Value))
	case AndFilter:
		for _, sub := range f.Filters {
			if !matches(sub, fields) {
				return false
			}
		}
		return true
	case OrFilter:
		for _, sub := range f.Filters {
			if matches(sub, fields) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func cloneRecord(rec *Record) *Record {
	fields := make(map[string]interface{}, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	return &Record{ID: rec.ID, Fields: fields, CreatedTime: rec.CreatedTime}
}
