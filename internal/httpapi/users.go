package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/ports"
	"github.com/goliatone/go-repository-ports/users"
)

// UsersHandler serves /users over the repository, cache and event ports.
type UsersHandler struct {
	repo   ports.Repository[users.User]
	cache  ports.Cache[users.User]
	events ports.Events[users.User]
	logger *zap.Logger
}

// NewUsersHandler returns a handler. cache and events may be nil.
func NewUsersHandler(
	repo ports.Repository[users.User],
	cache ports.Cache[users.User],
	events ports.Events[users.User],
	logger *zap.Logger,
) *UsersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsersHandler{repo: repo, cache: cache, events: events, logger: logger}
}

// Register mounts the /users routes on r.
func (h *UsersHandler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleDetail)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *UsersHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in users.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, h.logger, badInput("invalid request body"))
		return
	}

	created, err := h.repo.Create(ctx, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.publish(r, users.TopicCreated, created)
	writeJSON(w, http.StatusCreated, created)
}

func (h *UsersHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, opts, err := parseListQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, err := h.repo.List(r.Context(), filters, opts...)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []users.User{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDetail reads through the cache. Requests with includes change the
// shape of the record and go straight to the repository.
func (h *UsersHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	includes := splitList(r.URL.Query().Get("include"))

	cacheable := h.cache != nil && len(includes) == 0
	if cacheable {
		cached, ok, err := h.cache.Get(ctx, id)
		switch {
		case err != nil:
			h.logger.Warn("cache read failed", zap.String("id", id), zap.Error(err))
		case ok:
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	user, err := h.repo.Detail(ctx, id, includes...)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if cacheable {
		if err := h.cache.Set(ctx, id, user); err != nil {
			h.logger.Warn("cache write failed", zap.String("id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UsersHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var patch users.User
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, h.logger, badInput("invalid request body"))
		return
	}

	updated, err := h.repo.Update(ctx, id, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.evict(r, id)
	h.publish(r, users.TopicUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *UsersHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.evict(r, id)
	h.publish(r, users.TopicDeleted, users.User{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) evict(r *http.Request, id string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(r.Context(), id); err != nil {
		h.logger.Warn("cache eviction failed", zap.String("id", id), zap.Error(err))
	}
}

// publish is fire and forget: a failed push is logged, never returned.
func (h *UsersHandler) publish(r *http.Request, topic string, payload users.User) {
	if h.events == nil {
		return
	}
	if err := h.events.Push(r.Context(), topic, payload); err != nil {
		h.logger.Warn("event push failed",
			zap.String("topic", topic),
			zap.String("id", payload.ID),
			zap.Error(err),
		)
	}
}

// parseListQuery reads filter=attr:op:value (repeatable), limit, offset and
// order (prefix with "-" for descending).
func parseListQuery(r *http.Request) (ports.FilterList, []ports.ListOption, error) {
	q := r.URL.Query()

	var filters ports.FilterList
	for _, raw := range q["filter"] {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, nil, badInput("filter must look like attribute:operator:value")
		}
		filters = append(filters, ports.Where(parts[0], ports.Operator(parts[1]), filterValue(ports.Operator(parts[1]), parts[2])))
	}

	var opts []ports.ListOption
	for _, p := range []struct {
		name  string
		apply func(int) ports.ListOption
	}{
		{"limit", ports.WithLimit},
		{"offset", ports.WithOffset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, nil, badInput(p.name + " must be a non-negative integer")
		}
		opts = append(opts, p.apply(n))
	}
	if order := q.Get("order"); order != "" {
		opts = append(opts, ports.WithOrder(strings.TrimPrefix(order, "-"), strings.HasPrefix(order, "-")))
	}
	return filters, opts, nil
}

func filterValue(op ports.Operator, raw string) any {
	switch op {
	case ports.OpIn, ports.OpNotIn:
		return splitList(raw)
	case ports.OpEq, ports.OpNe:
		if raw == "null" {
			return nil
		}
	}
	return raw
}

func splitList(raw string) []string {
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func badInput(msg string) error {
	return goerrors.New(msg, goerrors.CategoryBadInput).WithTextCode("BAD_REQUEST")
}
