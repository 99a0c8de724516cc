package health

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("rpc", func(_ context.Context) Status {
		return Status{Name: "rpc", Healthy: true}
	})
	r.Register("backend", func(_ context.Context) Status {
		return Status{Name: "backend", Healthy: true, Detail: "ok"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("rpc", func(_ context.Context) Status {
		return Status{Name: "rpc", Healthy: true}
	})
	r.Register("backend", func(_ context.Context) Status {
		return Status{Name: "backend", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].Detail != "connection refused" {
		t.Fatalf("expected detail 'connection refused', got %q", statuses[1].Detail)
	}
}

func TestRegistryChecksGetDeadline(t *testing.T) {
	r := NewRegistry()
	r.Register("rpc", func(ctx context.Context) Status {
		if _, ok := ctx.Deadline(); !ok {
			return Status{Name: "rpc", Healthy: false, Detail: "no deadline"}
		}
		return Status{Name: "rpc", Healthy: true}
	})

	healthy, _ := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("checker should run with a per-check deadline")
	}
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestPingChecker(t *testing.T) {
	ok := PingChecker("rpc", fakePinger{})(context.Background())
	if !ok.Healthy || ok.Name != "rpc" {
		t.Fatalf("expected healthy rpc status, got %+v", ok)
	}

	bad := PingChecker("backend", fakePinger{err: errors.New("timeout")})(context.Background())
	if bad.Healthy {
		t.Fatal("failing pinger should report unhealthy")
	}
	if bad.Detail != "timeout" {
		t.Fatalf("expected detail 'timeout', got %q", bad.Detail)
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Status{Name: "checker", Healthy: true}
			})
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
