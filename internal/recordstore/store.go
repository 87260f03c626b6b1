// Package recordstore is the schemaless record persistence used for buyers,
// suppliers and referrals. Records are attribute maps keyed by table and id;
// there are no multi-record transactions.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one stored row.
type Record struct {
	ID          string
	Fields      map[string]interface{}
	CreatedTime time.Time
}

// Store is implemented by every backend. Get and Update return a
// RESOURCE_NOT_FOUND StandardError for unknown ids. Update merges fields
// into the stored attributes.
type Store interface {
	Get(ctx context.Context, table, id string) (*Record, error)
	Query(ctx context.Context, table string, filter Filter) ([]*Record, error)
	Create(ctx context.Context, table string, fields map[string]interface{}) (*Record, error)
	Update(ctx context.Context, table, id string, fields map[string]interface{}) (*Record, error)
}

// Filter is a query predicate built with Eq, And and Or. A nil Filter matches every record.
type Filter interface {
	filter()
}

// EqFilter matches records whose scalar attribute equals Value.
type EqFilter struct {
	Field string
	Value interface{}
}

type AndFilter struct {
	Filters []Filter
}

type OrFilter struct {
	Filters []Filter
}

func (EqFilter) filter()  {}
func (AndFilter) filter() {}
func (OrFilter) filter()  {}

func Eq(field string, value interface{}) Filter {
	return EqFilter{Field: field, Value: value}
}

func And(filters ...Filter) Filter {
	return AndFilter{Filters: filters}
}

func Or(filters ...Filter) Filter {
	return OrFilter{Filters: filters}
}

// normalize converts attribute values to the shapes a JSON backend returns
// (float64 numbers, []interface{} lists, plain strings).
func normalize(fields map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := make(map[string]interface{}, len(fields))
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

func normalizeValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
