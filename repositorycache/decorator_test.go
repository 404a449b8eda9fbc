package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/ports"
)

type TestUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// mockRepository records calls and returns canned results.
type mockRepository[T any] struct {
	mu           sync.Mutex
	calls        []string
	detailResult T
	detailError  error
	listResult   []T
	listError    error
	createResult T
	createError  error
	updateResult T
	updateError  error
	deleteError  error
}

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockRepository[T]) Create(ctx context.Context, item T) (T, error) {
	m.recordCall("Create")
	return m.createResult, m.createError
}

func (m *mockRepository[T]) List(ctx context.Context, filters ports.FilterList, opts ...ports.ListOption) ([]T, error) {
	m.recordCall("List")
	return m.listResult, m.listError
}

func (m *mockRepository[T]) Detail(ctx context.Context, pk string, includeRelations ...string) (T, error) {
	m.recordCall("Detail")
	return m.detailResult, m.detailError
}

func (m *mockRepository[T]) Update(ctx context.Context, pk string, patch T) (T, error) {
	m.recordCall("Update")
	return m.updateResult, m.updateError
}

func (m *mockRepository[T]) Delete(ctx context.Context, pk string) error {
	m.recordCall("Delete")
	return m.deleteError
}

// mockCacheService is a map backed CacheService that records calls.
type mockCacheService struct {
	mu        sync.Mutex
	calls     []string
	storage   map[string]any
	deleteErr error
}

func newMockCacheService() *mockCacheService {
	return &mockCacheService{storage: make(map[string]any)}
}

func (m *mockCacheService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "GetOrFetch:"+key)

	if value, ok := m.storage[key]; ok {
		return value, nil
	}

	result := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})
	if !result[1].IsNil() {
		return nil, result[1].Interface().(error)
	}
	value := result[0].Interface()
	m.storage[key] = value
	return value, nil
}

func (m *mockCacheService) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "Delete:"+key)
	delete(m.storage, key)
	return m.deleteErr
}

func (m *mockCacheService) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.storage[key]
	return ok
}

func (m *mockCacheService) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.storage))
	for k := range m.storage {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func newTestRepo() (*CachedRepository[TestUser], *mockRepository[TestUser], *mockCacheService) {
	base := &mockRepository[TestUser]{
		detailResult: TestUser{ID: "1", Name: "Ann"},
		listResult:   []TestUser{{ID: "1", Name: "Ann"}, {ID: "2", Name: "Bob"}},
		createResult: TestUser{ID: "3", Name: "Cid"},
		updateResult: TestUser{ID: "1", Name: "Anne"},
	}
	svc := newMockCacheService()
	return New[TestUser](base, svc, cache.NewDefaultKeySerializer()), base, svc
}

func TestNew_Namespace(t *testing.T) {
	cached, _, _ := newTestRepo()
	if got := cached.Namespace(); got != "test_users" {
		t.Errorf("expected namespace test_users, got %s", got)
	}

	custom := New[TestUser](&mockRepository[TestUser]{}, newMockCacheService(), cache.NewDefaultKeySerializer(), WithNamespace("people"))
	if got := custom.Namespace(); got != "people" {
		t.Errorf("expected namespace people, got %s", got)
	}

	pointer := New[*TestUser](&mockRepository[*TestUser]{}, newMockCacheService(), cache.NewDefaultKeySerializer())
	if got := pointer.Namespace(); got != "test_users" {
		t.Errorf("expected pointer types to share the namespace, got %s", got)
	}
}

func TestDetail_CachesResult(t *testing.T) {
	ctx := context.Background()
	cached, base, _ := newTestRepo()

	for range 3 {
		got, err := cached.Detail(ctx, "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "Ann" {
			t.Errorf("expected Ann, got %s", got.Name)
		}
	}
	if n := base.count("Detail"); n != 1 {
		t.Errorf("expected one base Detail call, got %d", n)
	}

	if _, err := cached.Detail(ctx, "1", "posts"); err != nil {
		t.Fatal(err)
	}
	if n := base.count("Detail"); n != 2 {
		t.Errorf("expected includes to use a separate key, got %d base calls", n)
	}

	if _, err := cached.Detail(ctx, "1", "posts", "posts", ""); err != nil {
		t.Fatal(err)
	}
	if n := base.count("Detail"); n != 2 {
		t.Errorf("expected duplicate includes to share a key, got %d base calls", n)
	}
}

func TestList_KeyedByResolvedOptions(t *testing.T) {
	ctx := context.Background()
	cached, base, _ := newTestRepo()
	filters := ports.FilterList{ports.Where("name", ports.OpEq, "Ann")}

	if _, err := cached.List(ctx, filters, ports.WithLimit(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.List(ctx, filters, ports.WithLimit(10)); err != nil {
		t.Fatal(err)
	}
	if n := base.count("List"); n != 1 {
		t.Errorf("expected equal option values to share a key, got %d base calls", n)
	}

	if _, err := cached.List(ctx, filters, ports.WithLimit(20)); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.List(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if n := base.count("List"); n != 3 {
		t.Errorf("expected distinct queries to miss, got %d base calls", n)
	}
}

func TestReads_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	cached, base, svc := newTestRepo()
	base.detailError = errors.New("db down")

	if _, err := cached.Detail(ctx, "1"); err == nil {
		t.Fatal("expected error")
	}
	if len(svc.keys()) != 0 {
		t.Errorf("expected nothing cached, got %v", svc.keys())
	}

	base.detailError = nil
	if _, err := cached.Detail(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if n := base.count("Detail"); n != 2 {
		t.Errorf("expected retry to reach base, got %d calls", n)
	}
}

func TestCreate_InvalidatesLists(t *testing.T) {
	ctx := context.Background()
	cached, base, svc := newTestRepo()

	if _, err := cached.Detail(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.List(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := cached.Create(ctx, TestUser{Name: "Cid"}); err != nil {
		t.Fatal(err)
	}

	keys := svc.keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "test_users::Detail::1") {
		t.Errorf("expected only the detail entry to survive, got %v", keys)
	}

	if _, err := cached.List(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if n := base.count("List"); n != 2 {
		t.Errorf("expected list refetch after create, got %d", n)
	}
}

func TestUpdateAndDelete_InvalidateRecord(t *testing.T) {
	ctx := context.Background()

	for _, op := range []string{"Update", "Delete"} {
		t.Run(op, func(t *testing.T) {
			cached, _, svc := newTestRepo()
			for _, pk := range []string{"1", "10"} {
				if _, err := cached.Detail(ctx, pk); err != nil {
					t.Fatal(err)
				}
				if _, err := cached.Detail(ctx, pk, "posts"); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := cached.List(ctx, nil); err != nil {
				t.Fatal(err)
			}

			var err error
			if op == "Update" {
				_, err = cached.Update(ctx, "1", TestUser{Name: "Anne"})
			} else {
				err = cached.Delete(ctx, "1")
			}
			if err != nil {
				t.Fatal(err)
			}

			for _, key := range svc.keys() {
				if !strings.HasPrefix(key, "test_users::Detail::10") {
					t.Errorf("unexpected surviving key %s", key)
				}
			}
			if len(svc.keys()) != 2 {
				t.Errorf("expected both entries for pk 10 to survive, got %v", svc.keys())
			}
		})
	}
}

func TestWrites_FailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	cached, base, svc := newTestRepo()
	base.updateError = errors.New("conflict")
	base.deleteError = errors.New("conflict")
	base.createError = errors.New("conflict")

	if _, err := cached.Detail(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.List(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := cached.Create(ctx, TestUser{}); err == nil {
		t.Error("expected create error")
	}
	if _, err := cached.Update(ctx, "1", TestUser{}); err == nil {
		t.Error("expected update error")
	}
	if err := cached.Delete(ctx, "1"); err == nil {
		t.Error("expected delete error")
	}
	if len(svc.keys()) != 2 {
		t.Errorf("expected cache untouched, got %v", svc.keys())
	}
}

func TestCacheTags(t *testing.T) {
	ctx := context.Background()
	cached, base, svc := newTestRepo()

	tagged := WithCacheTags(ctx, "dashboard", "dashboard", "")
	if got := cacheTagsFromContext(tagged); !slices.Equal(got, []string{"dashboard"}) {
		t.Fatalf("expected deduped tags, got %v", got)
	}

	if _, err := cached.List(tagged, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Detail(ctx, "2"); err != nil {
		t.Fatal(err)
	}

	cached.InvalidateTags(ctx, "dashboard", "unknown")
	keys := svc.keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "test_users::Detail::2") {
		t.Errorf("expected only untagged detail to survive, got %v", keys)
	}

	if _, err := cached.List(tagged, nil); err != nil {
		t.Fatal(err)
	}
	if n := base.count("List"); n != 2 {
		t.Errorf("expected refetch after tag invalidation, got %d", n)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	cached, _, svc := newTestRepo()

	for i := range 3 {
		if _, err := cached.Detail(ctx, fmt.Sprint(i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := cached.List(ctx, nil); err != nil {
		t.Fatal(err)
	}

	cached.Purge(ctx)
	if keys := svc.keys(); len(keys) != 0 {
		t.Errorf("expected empty cache, got %v", keys)
	}
}

func TestDeleteErrorsAreLoggedNotReturned(t *testing.T) {
	ctx := context.Background()
	cached, _, svc := newTestRepo()
	svc.deleteErr = errors.New("cache down")

	if _, err := cached.Detail(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Update(ctx, "1", TestUser{}); err != nil {
		t.Errorf("cache failures must not fail the write: %v", err)
	}
	if svc.has("test_users::Detail::1::slice:nil") {
		t.Error("expected entry to be removed from storage")
	}
}

func TestWithSturdycService(t *testing.T) {
	ctx := context.Background()
	svc, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	base := &mockRepository[TestUser]{detailResult: TestUser{ID: "1", Name: "Ann"}}
	cached := New[TestUser](base, svc, cache.NewDefaultKeySerializer())

	for range 2 {
		if _, err := cached.Detail(ctx, "1"); err != nil {
			t.Fatal(err)
		}
	}
	if err := cached.Delete(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Detail(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if n := base.count("Detail"); n != 2 {
		t.Errorf("expected two base calls, got %d", n)
	}
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"User":            "user",
		"TestUser":        "test_user",
		"HTTPRequest":     "http_request",
		"UserV2":          "user_v_2",
		"List[main.User]": "list_main_user",
		"already_snake":   "already_snake",
		"":                "",
	}
	for in, want := range tests {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}
