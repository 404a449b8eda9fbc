package event

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-repository-ports/ports"
)

// Router runs one consumption loop per registered topic.
type Router[M any] struct {
	events ports.Events[M]
	routes map[string]ports.EventHandler[M]
	order  []string
}

func NewRouter[M any](events ports.Events[M]) *Router[M] {
	return &Router[M]{events: events, routes: make(map[string]ports.EventHandler[M])}
}

// Handle registers handler for topic. Registering a topic twice replaces
// the previous handler.
func (r *Router[M]) Handle(topic string, handler ports.EventHandler[M]) *Router[M] {
	if _, ok := r.routes[topic]; !ok {
		r.order = append(r.order, topic)
	}
	r.routes[topic] = handler
	return r
}

// Topics returns the registered topics in registration order.
func (r *Router[M]) Topics() []string {
	return append([]string(nil), r.order...)
}

// Run pulls every registered topic concurrently and blocks until ctx is
// cancelled or one loop fails, which stops the others.
func (r *Router[M]) Run(ctx context.Context) error {
	if len(r.order) == 0 {
		return fmt.Errorf("event: router has no routes")
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range r.order {
		handler := r.routes[topic]
		g.Go(func() error {
			if err := r.events.Pull(ctx, topic, handler); err != nil {
				return fmt.Errorf("pulling %s: %w", topic, err)
			}
			return nil
		})
	}
	return g.Wait()
}
