package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/firasghr/wreqbridge/dispatch"
	"github.com/firasghr/wreqbridge/runtime"
)

func TestDispatcher_PreservesOrder(t *testing.T) {
	host := runtime.NewHost(4)
	host.Start()
	defer host.Stop()

	d := dispatch.NewDispatcher[int](host, 8)
	events := make(chan int, 16)

	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), events, func(v int) {
			// introduce artificial jitter so arrival order would break
			// without the dispatcher's single in-flight-per-event design
			time.Sleep(time.Millisecond)
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		})
		close(done)
	}()

	const n = 50
	for i := 0; i < n; i++ {
		events <- i
	}
	close(events)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("len(seen) = %d, want %d", len(seen), n)
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("seen[%d] = %d, want %d — order not preserved", i, v, i)
		}
	}
}

func TestDispatcher_StopsOnContextCancellation(t *testing.T) {
	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	d := dispatch.NewDispatcher[int](host, 1)
	events := make(chan int)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events, func(int) {})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
