package di

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-ports/model"
	"github.com/goliatone/go-repository-ports/ports"
	"github.com/goliatone/go-repository-ports/users"
)

func seedUsers(tb testing.TB, repo ports.Repository[users.User], n int) {
	tb.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Create(context.Background(), users.User{
			ID:    fmt.Sprintf("user-%d", i),
			Name:  model.Set(fmt.Sprintf("User %d", i)),
			Email: model.Set(fmt.Sprintf("user%d@example.com", i)),
			Age:   model.Set(20 + i%50),
		})
		if err != nil {
			tb.Fatalf("seeding user %d failed: %v", i, err)
		}
	}
}

// TestConcurrentAccess tests concurrent access to cached repository operations
func TestConcurrentAccess(t *testing.T) {
	container := newTestContainer(t, testConfig())
	counting := newCountingUsers(t, container)
	cachedRepo := NewCachedRepository[users.User](container, counting)
	seedUsers(t, counting.base, 100)

	ctx := context.Background()
	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < operationsPerGoroutine; j++ {
				userID := fmt.Sprintf("user-%d", (workerID*operationsPerGoroutine+j)%100)

				if _, err := cachedRepo.Detail(ctx, userID); err != nil {
					errs <- fmt.Errorf("worker %d operation %d Detail failed: %v", workerID, j, err)
					continue
				}

				if j%5 == 0 {
					filters := ports.FilterList{ports.Where("age", ports.OpGte, 40)}
					if _, err := cachedRepo.List(ctx, filters); err != nil {
						errs <- fmt.Errorf("worker %d operation %d List failed: %v", workerID, j, err)
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	var errorCount int
	for err := range errs {
		t.Error(err)
		errorCount++
		if errorCount > 10 {
			t.Error("... and more errors")
			break
		}
	}
	if errorCount > 0 {
		t.Fatalf("Concurrent access test failed with %d errors", errorCount)
	}

	totalOperations := numGoroutines * operationsPerGoroutine
	detailCalls := counting.getCallCount("Detail")
	if detailCalls >= totalOperations {
		t.Errorf("Expected cache to reduce Detail calls: got %d calls for %d operations", detailCalls, totalOperations)
	}

	t.Logf("Concurrent test completed: %d operations resulted in %d Detail calls (%.1f%% cache hit rate)",
		totalOperations, detailCalls, float64(totalOperations-detailCalls)/float64(totalOperations)*100)
}

// TestConcurrentReadWrite interleaves updates with reads. The last write is
// visible once writers are done.
func TestConcurrentReadWrite(t *testing.T) {
	container := newTestContainer(t, testConfig())
	counting := newCountingUsers(t, container)
	cachedRepo := NewCachedRepository[users.User](container, counting)
	seedUsers(t, counting.base, 1)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 200)

	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := cachedRepo.Update(ctx, "user-0", users.User{Age: model.Set(w*100 + i)}); err != nil {
					errs <- err
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				u, err := cachedRepo.Detail(ctx, "user-0")
				if err != nil {
					errs <- err
					continue
				}
				if u.Name.Value() != "User 0" {
					errs <- fmt.Errorf("unexpected name %q", u.Name.Value())
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if _, err := cachedRepo.Update(ctx, "user-0", users.User{Age: model.Set(999)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	cached, err := cachedRepo.Detail(ctx, "user-0")
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if cached.Age.Value() != 999 {
		t.Errorf("Expected the last write to be visible, got %d", cached.Age.Value())
	}
}

func BenchmarkKeySerializationPerformance(b *testing.B) {
	container, err := NewContainer(context.Background(), testConfig())
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()
	ser := container.KeySerializer()

	filters := ports.FilterList{
		ports.Where("age", ports.OpGte, 30),
		ports.Where("name", ports.OpIn, []string{"Ann", "Bob"}),
	}
	opts := ports.ApplyListOptions(ports.WithLimit(20), ports.WithOrder("name", false))

	b.Run("detail", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = ser.SerializeKey("users::Detail", "user-1", []string{"posts"})
		}
	})
	b.Run("list", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = ser.SerializeKey("users::List", filters, opts)
		}
	})
}

func BenchmarkCachedVsBaseRepository(b *testing.B) {
	container, err := NewContainer(context.Background(), testConfig())
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()
	if err := users.CreateTables(context.Background(), container.DB()); err != nil {
		b.Fatalf("creating tables failed: %v", err)
	}
	base, err := NewRepository(container, users.Mapping())
	if err != nil {
		b.Fatalf("NewRepository() failed: %v", err)
	}
	seedUsers(b, base, 100)
	cachedRepo := NewCachedRepository[users.User](container, base)
	ctx := context.Background()

	b.Run("base", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := base.Detail(ctx, fmt.Sprintf("user-%d", i%100)); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("cached", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := cachedRepo.Detail(ctx, fmt.Sprintf("user-%d", i%100)); err != nil {
				b.Fatal(err)
			}
		}
	})
}
