// Package ports declares the storage, cache and event contracts adapters
// implement for a single entity type.
package ports

import (
	"context"
	"time"
)

// Operator names a filter comparison.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIn, OpNotIn}

// FilterCondition compares one schema attribute against a value.
type FilterCondition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// FilterList is an ordered set of conditions combined with AND.
type FilterList []FilterCondition

// Where is shorthand for building a FilterCondition.
func Where(attribute string, op Operator, value any) FilterCondition {
	return FilterCondition{Attribute: attribute, Operator: op, Value: value}
}

// ListOptions bound and order a List call.
// Offset is only applied together with a limit.
type ListOptions struct {
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	OrderBy string `json:"order_by,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
}

type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(o *ListOptions) { o.Offset = offset }
}

func WithOrder(attribute string, desc bool) ListOption {
	return func(o *ListOptions) {
		o.OrderBy = attribute
		o.Desc = desc
	}
}

// ApplyListOptions resolves opts into a ListOptions value.
func ApplyListOptions(opts ...ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Repository performs CRUD for one entity type. Every call runs in its own
// store transaction.
type Repository[M any] interface {
	Create(ctx context.Context, item M) (M, error)
	List(ctx context.Context, filters FilterList, opts ...ListOption) ([]M, error)
	Detail(ctx context.Context, pk string, includeRelations ...string) (M, error)
	Update(ctx context.Context, pk string, patch M) (M, error)
	Delete(ctx context.Context, pk string) error
}

// Cache stores entity values under string keys. Entries always expire.
// Get reports a miss, not an error, for absent or undecodable entries.
type Cache[M any] interface {
	Get(ctx context.Context, key string) (M, bool, error)
	Set(ctx context.Context, key string, value M, ttl ...time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EventHandler receives decoded payloads from a subscription.
type EventHandler[M any] func(ctx context.Context, payload M) error

// Events publishes payloads to entity namespaced topics and consumes them.
type Events[M any] interface {
	Push(ctx context.Context, topic string, payload any) error
	Pull(ctx context.Context, topic string, handler EventHandler[M]) error
}
