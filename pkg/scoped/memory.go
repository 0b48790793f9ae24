package scoped

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// FieldFunc extracts the value of a named field from an entity so the
// in-memory store can evaluate query filters.
type FieldFunc[T Entity] func(entity T, field string) (interface{}, bool)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore[T Entity] struct {
	mu       sync.RWMutex
	entities map[int64]T
	nextID   int64
	fields   FieldFunc[T]
	clone    func(T) T
}

// NewMemoryStore creates an in-memory store. clone must return a deep copy
// so callers cannot mutate stored state through returned entities. fields
// may be nil if queries never filter on entity-specific fields.
func NewMemoryStore[T Entity](clone func(T) T, fields FieldFunc[T]) *MemoryStore[T] {
	return &MemoryStore[T]{
		entities: make(map[int64]T),
		fields:   fields,
		clone:    clone,
	}
}

// Get returns the entity with the given ID, deleted or not.
func (s *MemoryStore[T]) Get(_ context.Context, id int64) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return s.clone(entity), nil
}

// Select returns entities matching every filter in the query, sorted by the
// query's ordering. Results always fall back to ID order so that pagination
// over the backing map stays stable between calls.
func (s *MemoryStore[T]) Select(_ context.Context, query Query) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []T
	for _, entity := range s.entities {
		if s.matches(entity, query.Filters) {
			matched = append(matched, s.clone(entity))
		}
	}
	s.sortMatched(matched, query.OrderBy)

	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(matched) {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// Insert stores a new entity and assigns it the next ID.
func (s *MemoryStore[T]) Insert(_ context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entity.SetID(s.nextID)
	s.entities[s.nextID] = s.clone(entity)
	return nil
}

// Update replaces an existing entity.
func (s *MemoryStore[T]) Update(_ context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.GetID()]; !ok {
		return ErrNotFound
	}
	s.entities[entity.GetID()] = s.clone(entity)
	return nil
}

func (s *MemoryStore[T]) sortMatched(matched []T, orderBy []Order) {
	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range orderBy {
			a, aok := s.fieldValue(matched[i], o.Field)
			b, bok := s.fieldValue(matched[j], o.Field)
			if !aok || !bok {
				continue
			}
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return matched[i].GetID() < matched[j].GetID()
	})
}

func (s *MemoryStore[T]) fieldValue(entity T, field string) (interface{}, bool) {
	switch field {
	case "id":
		return entity.GetID(), true
	case "org_id":
		return entity.GetOrgID(), true
	}
	if s.fields == nil {
		return nil, false
	}
	return s.fields(entity, field)
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareInt64(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return compareInt64(int64(av), int64(bv))
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (s *MemoryStore[T]) matches(entity T, filters []Filter) bool {
	for _, f := range filters {
		switch f.Field {
		case "org_id":
			if entity.GetOrgID() != f.Value.(int64) {
				return false
			}
		case "deleted_at":
			// nil filter value means "not deleted"
			if f.Value == nil {
				if entity.GetDeletedAt() != nil {
					return false
				}
				continue
			}
			if entity.GetDeletedAt() == nil {
				return false
			}
		default:
			if s.fields == nil {
				return false
			}
			value, ok := s.fields(entity, f.Field)
			if !ok || !reflect.DeepEqual(value, f.Value) {
				return false
			}
		}
	}
	return true
}
