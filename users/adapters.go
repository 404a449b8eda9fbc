package users

import (
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/event"
	"github.com/goliatone/go-repository-ports/repository"
)

// Event topics, published as "User.<topic>".
const (
	TopicCreated = "created"
	TopicUpdated = "updated"
	TopicDeleted = "deleted"
)

// CachePrefix namespaces user entries in a shared cache store.
const CachePrefix = "users:"

// NewRepository returns the bun repository for users.
func NewRepository(db *bun.DB, opts ...repository.Option) (*repository.Repository[User, UserSchema], error) {
	return repository.New(db, Mapping(), opts...)
}

// NewPostRepository returns the bun repository for posts.
func NewPostRepository(db *bun.DB, opts ...repository.Option) (*repository.Repository[Post, PostSchema], error) {
	return repository.New(db, PostMapping(), opts...)
}

// NewCache returns a user cache on store. Callers may override the prefix.
func NewCache(store cache.Store, opts ...cache.Option) *cache.Cache[User] {
	return cache.New[User](store, append([]cache.Option{cache.WithPrefix(CachePrefix)}, opts...)...)
}

// NewEvents returns a publisher for the User topics.
func NewEvents(transport event.Transport, opts ...event.Option) *event.Publisher[User] {
	return event.NewPublisher[User](transport, append([]event.Option{event.WithEntity(Mapping().Entity)}, opts...)...)
}
