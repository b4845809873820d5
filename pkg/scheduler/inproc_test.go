package scheduler

import (
	"sync"
	"testing"
	"time"

	shared "github.com/vitalsync/agent/pkg"
)

func TestInProcReplaceSupersedesPending(t *testing.T) {
	s := NewInProc(discardLogger())
	defer s.Close()

	var mu sync.Mutex
	fired := 0
	done := make(chan struct{}, 2)
	s.SetHandler(func(name string) {
		mu.Lock()
		fired++
		mu.Unlock()
		done <- struct{}{}
	})

	s.EnqueueOnce("sync-sleep", time.Hour, true)
	s.EnqueueOnce("sync-sleep", 10*time.Millisecond, true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for slot to fire")
	}

	// The superseded hour-long timer must not fire a second instance.
	select {
	case <-done:
		t.Fatal("slot fired twice; replace must supersede the pending entry")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("expected exactly one invocation, got %d", fired)
	}
}

func TestInProcNoReplaceKeepsPending(t *testing.T) {
	s := NewInProc(discardLogger())
	defer s.Close()
	s.SetHandler(func(name string) {})

	s.EnqueueOnce("sync-sleep", time.Hour, true)
	s.EnqueueOnce("sync-sleep", 10*time.Millisecond, false)

	// The short timer was discarded, so the slot stays pending.
	time.Sleep(50 * time.Millisecond)
	if got := s.QueryStatus("sync-sleep"); got != shared.TaskPending {
		t.Fatalf("expected pending, got %s", got)
	}
}

func TestInProcStatusLifecycle(t *testing.T) {
	s := NewInProc(discardLogger())
	defer s.Close()

	if got := s.QueryStatus("sync-sleep"); got != shared.TaskAbsent {
		t.Fatalf("expected absent before enqueue, got %s", got)
	}

	release := make(chan struct{})
	running := make(chan struct{})
	s.SetHandler(func(name string) {
		close(running)
		<-release
	})

	s.EnqueueOnce("sync-sleep", time.Millisecond, true)
	if got := s.QueryStatus("sync-sleep"); got != shared.TaskPending {
		t.Fatalf("expected pending after enqueue, got %s", got)
	}

	<-running
	if got := s.QueryStatus("sync-sleep"); got != shared.TaskRunning {
		t.Fatalf("expected running while handler executes, got %s", got)
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for s.QueryStatus("sync-sleep") != shared.TaskAbsent {
		select {
		case <-deadline:
			t.Fatal("slot never returned to absent")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInProcCancelRemovesSlot(t *testing.T) {
	s := NewInProc(discardLogger())
	defer s.Close()
	s.SetHandler(func(name string) {})

	s.EnqueueOnce("sync-sleep", time.Hour, true)
	s.Cancel("sync-sleep")

	if got := s.QueryStatus("sync-sleep"); got != shared.TaskAbsent {
		t.Fatalf("expected absent after cancel, got %s", got)
	}
}
