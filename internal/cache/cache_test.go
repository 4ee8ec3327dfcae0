package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func TestRememberMemoizes(t *testing.T) {
	c := New(0, 0, nil)
	ctx := context.Background()
	key := NewKey("square", 3)

	var calls int
	load := func(context.Context) (int, error) {
		calls++
		return 9, nil
	}
	for i := 0; i < 3; i++ {
		v, err := Remember(ctx, c, key, load)
		if err != nil {
			t.Fatal(err)
		}
		if v != 9 {
			t.Errorf("v = %d, want 9", v)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}
}

func TestRememberExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(10, time.Minute, nil, WithClock(clock.Now))
	ctx := context.Background()
	key := NewKey("f")

	var calls int
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	Remember(ctx, c, key, load)
	clock.Advance(30 * time.Second)
	if v, _ := Remember(ctx, c, key, load); v != 1 {
		t.Errorf("before expiry v = %d, want 1", v)
	}
	clock.Advance(time.Minute)
	if v, _ := Remember(ctx, c, key, load); v != 2 {
		t.Errorf("after expiry v = %d, want 2", v)
	}
}

func TestRememberDoesNotCacheErrors(t *testing.T) {
	c := New(0, 0, nil)
	ctx := context.Background()
	key := NewKey("flaky")
	boom := errors.New("boom")

	_, err := Remember(ctx, c, key, func(context.Context) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	v, err := Remember(ctx, c, key, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("second call = %q, %v", v, err)
	}
}

func TestRememberEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, 0, nil)
	ctx := context.Background()
	var calls int
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	Remember(ctx, c, NewKey("f", 1), load)
	Remember(ctx, c, NewKey("f", 2), load)
	Remember(ctx, c, NewKey("f", 3), load)
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	Remember(ctx, c, NewKey("f", 1), load)
	if calls != 4 {
		t.Errorf("calls = %d, want 4 after eviction", calls)
	}
}

func TestRememberCollapsesConcurrentLoads(t *testing.T) {
	c := New(0, 0, nil)
	ctx := context.Background()
	key := NewKey("slow")

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Remember(ctx, c, key, load)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("load called %d times, want 1", n)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("result[%d] = %d, want 42", i, v)
		}
	}
}

type layer struct {
	Name   string     `json:"name"`
	Bounds [2]float64 `json:"bounds"`
}

func TestRememberJSONUsesSharedStore(t *testing.T) {
	shared := newMemStore()
	ctx := context.Background()
	key := NewKey("layer", "top.gri")

	first := New(0, 0, nil, WithShared(shared))
	v, err := RememberJSON(ctx, first, key, func(context.Context) (layer, error) {
		return layer{Name: "top", Bounds: [2]float64{1, 2}}, nil
	})
	if err != nil || v.Name != "top" {
		t.Fatalf("first = %+v, %v", v, err)
	}
	if shared.sets != 1 {
		t.Errorf("shared sets = %d, want 1", shared.sets)
	}

	// A second process with a cold memory cache reads from the shared store.
	second := New(0, 0, nil, WithShared(shared))
	v, err = RememberJSON(ctx, second, key, func(context.Context) (layer, error) {
		t.Error("load called despite shared entry")
		return layer{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "top" || v.Bounds[1] != 2 {
		t.Errorf("shared value = %+v", v)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestRememberJSONToleratesSharedFailures(t *testing.T) {
	c := New(0, 0, nil, WithShared(failingStore{}))
	v, err := RememberJSON(context.Background(), c, NewKey("x"), func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Errorf("RememberJSON = %d, %v", v, err)
	}
}

func TestNewKey(t *testing.T) {
	lo := 1.0
	if NewKey("f", "a", true) == NewKey("f", "a", false) {
		t.Error("bool argument ignored")
	}
	if NewKey("f", "ab", "c") == NewKey("f", "a", "bc") {
		t.Error("string boundaries ignored")
	}
	if NewKey("f", (*float64)(nil)) == NewKey("f", &lo) {
		t.Error("nil pointer collides with value")
	}
	if NewKey("f", 1) != NewKey("f", 1) {
		t.Error("key not deterministic")
	}
	if k := NewKey("load", "x"); k.Fn != "load" {
		t.Errorf("Fn = %q", k.Fn)
	}
}
