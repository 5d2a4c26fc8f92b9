package download

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStateIsTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateCancelled}
	nonTerminal := []State{StatePending, StateDownloading, StatePaused, StateFailed}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestPauseGateBlocksUntilResumed(t *testing.T) {
	var gate pauseGate
	gate.pause()

	done := make(chan struct{})
	go func() {
		gate.wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before resume was called")
	case <-time.After(20 * time.Millisecond):
	}

	gate.resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}

func TestPauseGateWaitIsNoopWhenNotPaused(t *testing.T) {
	var gate pauseGate
	if err := gate.wait(context.Background()); err != nil {
		t.Fatalf("wait on an un-paused gate returned an error: %s", err)
	}
}

func TestPauseGateWaitUnblocksOnCancel(t *testing.T) {
	var gate pauseGate
	gate.pause()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gate.wait(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected ctx.Err() from a cancelled wait")
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not return after cancel")
	}
}

// TestPauseResumeGatesExactCallCount reproduces the heart of spec §8 oracle
// scenario #7: pausing after some number of completed steps in a
// multi-step loop blocks further progress until resume is called, at which
// point exactly the remaining steps run and no more.
func TestPauseResumeGatesExactCallCount(t *testing.T) {
	const total = 10
	const pauseAfter = 3

	var gate pauseGate
	var mu sync.Mutex
	calls := 0

	ctx := context.Background()
	stepDone := make(chan struct{})

	go func() {
		for i := 0; i < total; i++ {
			if i == pauseAfter {
				gate.pause()
				close(stepDone)
			}
			if err := gate.wait(ctx); err != nil {
				return
			}
			mu.Lock()
			calls++
			mu.Unlock()
		}
	}()

	<-stepDone
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	afterPause := calls
	mu.Unlock()
	if afterPause != pauseAfter {
		t.Fatalf("calls after pause = %d, want %d", afterPause, pauseAfter)
	}

	gate.resume()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := calls
	mu.Unlock()
	if final != total {
		t.Fatalf("final calls = %d, want %d", final, total)
	}
}
