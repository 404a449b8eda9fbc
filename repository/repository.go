// Package repository implements a generic CRUD repository over bun for one
// domain model / persistence schema pair, including the filter DSL used by
// List.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/ports"
)

var _ ports.Repository[any] = (*Repository[any, struct{}])(nil)

// Observer receives repository diagnostics, e.g. for metrics.
type Observer interface {
	FilterSkipped(entity, reason string)
}

type options struct {
	mode     FilterMode
	maxLimit int
	logger   *zap.Logger
	observer Observer
}

// Option configures a Repository.
type Option func(*options)

// WithFilterMode selects lenient (default) or strict filter handling.
func WithFilterMode(mode FilterMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithMaxLimit caps the number of rows List returns. Zero means unbounded.
func WithMaxLimit(n int) Option {
	return func(o *options) { o.maxLimit = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// Repository is a ports.Repository backed by a bun database.
type Repository[M, S any] struct {
	db        *bun.DB
	mapping   Mapping[M, S]
	evaluator *Evaluator
	opts      options
	logger    *zap.Logger
}

// New validates mapping against the schema and returns a repository.
func New[M, S any](db *bun.DB, mapping Mapping[M, S], opts ...Option) (*Repository[M, S], error) {
	if err := mapping.Validate(db); err != nil {
		return nil, err
	}

	o := options{mode: Lenient}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Repository[M, S]{
		db:        db,
		mapping:   mapping,
		evaluator: NewEvaluator(mapping.Registry()),
		opts:      o,
		logger:    logger.With(zap.String("entity", mapping.Entity)),
	}, nil
}

// Evaluator exposes the filter evaluator bound to this repository's schema.
func (r *Repository[M, S]) Evaluator() *Evaluator {
	return r.evaluator
}

// Create inserts the set fields of item and returns the stored record,
// including generated fields.
func (r *Repository[M, S]) Create(ctx context.Context, item M) (M, error) {
	var out M
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(S)
		cols := r.mapping.assign(row, item, forInsert)
		if _, err := tx.NewInsert().Model(row).Column(cols...).Exec(ctx); err != nil {
			return err
		}
		if err := tx.NewSelect().Model(row).WherePK().Scan(ctx); err != nil {
			return err
		}
		out = r.mapping.ToModel(row)
		return nil
	})
	return out, err
}

// List returns the records matching every valid condition in filters.
func (r *Repository[M, S]) List(ctx context.Context, filters ports.FilterList, opts ...ports.ListOption) ([]M, error) {
	preds, err := r.evaluator.BuildAll(filters, r.opts.mode, r.skipped)
	if err != nil {
		return nil, err
	}
	lo := ports.ApplyListOptions(opts...)

	var out []M
	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []S
		q := tx.NewSelect().Model(&rows)
		for _, p := range preds {
			q = p(q)
		}
		q, err := r.applyListOptions(q, lo)
		if err != nil {
			return err
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}
		out = make([]M, 0, len(rows))
		for i := range rows {
			out = append(out, r.mapping.ToModel(&rows[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Detail loads the record with the given primary key. Relation names the
// mapping does not declare are ignored.
func (r *Repository[M, S]) Detail(ctx context.Context, pk string, includeRelations ...string) (M, error) {
	var out M
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(S)
		q := r.byPK(tx.NewSelect().Model(row), pk)
		for _, name := range includeRelations {
			rel, ok := r.mapping.Relations[name]
			if !ok {
				r.logger.Debug("ignoring unknown relation", zap.String("relation", name))
				continue
			}
			q = q.Relation(rel)
		}
		if err := r.scanOne(ctx, q, pk); err != nil {
			return err
		}
		out = r.mapping.ToModel(row)
		return nil
	})
	return out, err
}

// Update overwrites only the fields set on patch and returns the merged record.
func (r *Repository[M, S]) Update(ctx context.Context, pk string, patch M) (M, error) {
	var out M
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(S)
		if err := r.scanOne(ctx, r.byPK(tx.NewSelect().Model(row), pk), pk); err != nil {
			return err
		}
		if cols := r.mapping.assign(row, patch, forUpdate); len(cols) > 0 {
			if _, err := tx.NewUpdate().Model(row).Column(cols...).WherePK().Exec(ctx); err != nil {
				return err
			}
			if err := tx.NewSelect().Model(row).WherePK().Scan(ctx); err != nil {
				return err
			}
		}
		out = r.mapping.ToModel(row)
		return nil
	})
	return out, err
}

// Delete removes the record with the given primary key.
func (r *Repository[M, S]) Delete(ctx context.Context, pk string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(S)
		if err := r.scanOne(ctx, r.byPK(tx.NewSelect().Model(row), pk), pk); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model(row).WherePK().Exec(ctx)
		return err
	})
}

func (r *Repository[M, S]) byPK(q *bun.SelectQuery, pk string) *bun.SelectQuery {
	return q.Where("?TableAlias.? = ?", bun.Ident(r.mapping.PrimaryKey), pk)
}

func (r *Repository[M, S]) scanOne(ctx context.Context, q *bun.SelectQuery, pk string) error {
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError(r.mapping.Entity, pk)
		}
		return err
	}
	return nil
}

func (r *Repository[M, S]) applyListOptions(q *bun.SelectQuery, lo ports.ListOptions) (*bun.SelectQuery, error) {
	if lo.OrderBy != "" {
		field, ok := r.evaluator.registry.Lookup(lo.OrderBy)
		switch {
		case ok:
			dir := "ASC"
			if lo.Desc {
				dir = "DESC"
			}
			q = q.OrderExpr("?TableAlias.? "+dir, bun.Ident(field.Name))
		case r.opts.mode == Strict:
			return nil, unknownAttributeError(lo.OrderBy)
		default:
			r.skipped(ports.FilterCondition{Attribute: lo.OrderBy}, unknownAttributeError(lo.OrderBy))
		}
	}

	limit := lo.Limit
	if limit < 0 {
		limit = 0
	}
	if r.opts.maxLimit > 0 && (limit == 0 || limit > r.opts.maxLimit) {
		limit = r.opts.maxLimit
	}
	if limit > 0 {
		q = q.Limit(limit)
		if lo.Offset > 0 {
			q = q.Offset(lo.Offset)
		}
	}
	return q, nil
}

func (r *Repository[M, S]) skipped(c ports.FilterCondition, err error) {
	r.logger.Warn("invalid filter condition skipped",
		zap.String("attribute", c.Attribute),
		zap.String("operator", string(c.Operator)),
		zap.Error(err),
	)
	if r.opts.observer != nil {
		r.opts.observer.FilterSkipped(r.mapping.Entity, TextCode(err))
	}
}
