// Package users is the concrete User entity: its domain model, its bun
// persistence schema and the port adapters bound to them.
package users

import (
	"time"

	"github.com/goliatone/go-repository-ports/model"
)

// User is the business facing user record.
type User struct {
	ID        string              `json:"id,omitempty" msgpack:"id,omitempty"`
	Name      model.Field[string] `json:"name,omitzero" msgpack:"name"`
	Email     model.Field[string] `json:"email,omitzero" msgpack:"email"`
	Age       model.Field[int]    `json:"age,omitzero" msgpack:"age"`
	CreatedAt time.Time           `json:"created_at,omitzero" msgpack:"created_at,omitempty"`
	UpdatedAt time.Time           `json:"updated_at,omitzero" msgpack:"updated_at,omitempty"`
	Posts     []Post              `json:"posts,omitempty" msgpack:"posts,omitempty"`
}

// Post is a user's post, loaded through the "posts" relation.
type Post struct {
	ID        string              `json:"id,omitempty" msgpack:"id,omitempty"`
	UserID    model.Field[string] `json:"user_id,omitzero" msgpack:"user_id"`
	Title     model.Field[string] `json:"title,omitzero" msgpack:"title"`
	CreatedAt time.Time           `json:"created_at,omitzero" msgpack:"created_at,omitempty"`
}

// PrimaryKey is the field name identifying a User.
const PrimaryKey = "id"

// Key returns the user's primary key value.
func (u User) Key() string { return u.ID }

// Key returns the post's primary key value.
func (p Post) Key() string { return p.ID }

// Dump returns the fields that are set, keyed by their JSON names. Explicit
// nulls are kept as nil.
func (u User) Dump() map[string]any {
	out := make(map[string]any, 6)
	if u.ID != "" {
		out["id"] = u.ID
	}
	dumpField(out, "name", u.Name)
	dumpField(out, "email", u.Email)
	dumpField(out, "age", u.Age)
	if !u.CreatedAt.IsZero() {
		out["created_at"] = u.CreatedAt
	}
	if !u.UpdatedAt.IsZero() {
		out["updated_at"] = u.UpdatedAt
	}
	return out
}

func dumpField[T any](out map[string]any, name string, f model.Field[T]) {
	switch {
	case f.IsNull():
		out[name] = nil
	case f.IsSet():
		out[name] = f.Value()
	}
}
