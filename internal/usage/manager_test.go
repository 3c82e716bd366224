package usage

import (
	"context"
	"sync"
	"testing"
	"time"
)

// capturePlugin collects delivered records.
type capturePlugin struct {
	mu      sync.Mutex
	records []Record
}

func (c *capturePlugin) HandleUsage(_ context.Context, record Record) {
	c.mu.Lock()
	c.records = append(c.records, record)
	c.mu.Unlock()
}

func (c *capturePlugin) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// panicPlugin always panics; the dispatcher must survive it.
type panicPlugin struct{}

func (panicPlugin) HandleUsage(context.Context, Record) { panic("boom") }

func waitFor(t *testing.T, ok func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func TestManagerDeliversToPlugins(t *testing.T) {
	t.Parallel()

	manager := NewManager()
	first := &capturePlugin{}
	second := &capturePlugin{}
	manager.Register(first)
	manager.Register(second)
	manager.Start(context.Background())
	defer manager.Stop()

	manager.Publish(context.Background(), Record{Model: "claude", Detail: Detail{TotalTokens: 10}})
	manager.Publish(context.Background(), Record{Model: "claude", Failed: true})

	waitFor(t, func() bool { return first.count() == 2 && second.count() == 2 })

	first.mu.Lock()
	defer first.mu.Unlock()
	if first.records[0].Detail.TotalTokens != 10 {
		t.Errorf("record = %+v", first.records[0])
	}
	if !first.records[1].Failed {
		t.Errorf("second record not marked failed: %+v", first.records[1])
	}
}

func TestManagerSurvivesPluginPanic(t *testing.T) {
	t.Parallel()

	manager := NewManager()
	capture := &capturePlugin{}
	manager.Register(panicPlugin{})
	manager.Register(capture)
	manager.Start(context.Background())
	defer manager.Stop()

	manager.Publish(context.Background(), Record{Model: "claude"})
	manager.Publish(context.Background(), Record{Model: "claude"})

	waitFor(t, func() bool { return capture.count() == 2 })
}

func TestManagerStartsOnPublish(t *testing.T) {
	t.Parallel()

	manager := NewManager()
	capture := &capturePlugin{}
	manager.Register(capture)
	defer manager.Stop()

	// No explicit Start; Publish must spin the dispatcher up itself.
	manager.Publish(context.Background(), Record{Model: "claude"})

	waitFor(t, func() bool { return capture.count() == 1 })
}

func TestManagerStopDropsLaterPublishes(t *testing.T) {
	t.Parallel()

	manager := NewManager()
	capture := &capturePlugin{}
	manager.Register(capture)
	manager.Start(context.Background())
	manager.Stop()

	manager.Publish(context.Background(), Record{Model: "claude"})
	time.Sleep(50 * time.Millisecond)
	if got := capture.count(); got != 0 {
		t.Errorf("records after Stop = %d, want 0", got)
	}
}

func TestManagerStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	manager := NewManager()
	capture := &capturePlugin{}
	manager.Register(capture)

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	cancel()

	waitFor(t, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		return manager.closed
	})

	manager.Publish(context.Background(), Record{Model: "claude"})
	time.Sleep(50 * time.Millisecond)
	if got := capture.count(); got != 0 {
		t.Errorf("records after cancellation = %d, want 0", got)
	}
}

func TestNilManagerIsSafe(t *testing.T) {
	t.Parallel()

	var manager *Manager
	manager.Start(context.Background())
	manager.Register(&capturePlugin{})
	manager.Publish(context.Background(), Record{})
	manager.Stop()
}
