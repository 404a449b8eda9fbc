package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserSchema is the storage row for a User.
type UserSchema struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string        `bun:"id,pk"`
	Name      *string       `bun:"name"`
	Email     *string       `bun:"email"`
	Age       *int          `bun:"age"`
	CreatedAt time.Time     `bun:"created_at,notnull"`
	UpdatedAt time.Time     `bun:"updated_at,notnull"`
	Posts     []*PostSchema `bun:"rel:has-many,join:id=user_id"`
}

var _ bun.BeforeAppendModelHook = (*UserSchema)(nil)

// BeforeAppendModel fills generated columns.
func (s *UserSchema) BeforeAppendModel(_ context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = now
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// PostSchema is the storage row for a Post.
type PostSchema struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Title     *string   `bun:"title"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

var _ bun.BeforeAppendModelHook = (*PostSchema)(nil)

func (s *PostSchema) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = time.Now().UTC()
		}
	}
	return nil
}

// CreateTables creates the users and posts tables when missing.
func CreateTables(ctx context.Context, db bun.IDB) error {
	for _, m := range []any{(*UserSchema)(nil), (*PostSchema)(nil)} {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
