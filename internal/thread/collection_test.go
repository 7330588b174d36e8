package thread

import "testing"

func TestUpdateThreadsDropsMissingAndPreservesFocus(t *testing.T) {
	c := New()
	c.UpdateThreads([]Thread{{ID: 1, Name: "main"}, {ID: 2, Name: "worker"}})
	if !c.SetFocusThread(1) {
		t.Fatalf("expected to focus thread 1")
	}

	c.UpdateThreads([]Thread{{ID: 1, Name: "main"}})

	if _, ok := c.Get(2); ok {
		t.Fatalf("expected thread 2 to be dropped")
	}
	focus, ok := c.FocusThread()
	if !ok || focus.ID != 1 {
		t.Fatalf("expected focus thread to still be 1, got %+v ok=%v", focus, ok)
	}
}

func TestUpdateThreadsClearsFocusWhenThreadGone(t *testing.T) {
	c := New()
	c.UpdateThreads([]Thread{{ID: 1}, {ID: 2}})
	c.SetFocusThread(2)

	c.UpdateThreads([]Thread{{ID: 1}})

	if _, ok := c.FocusThread(); ok {
		t.Fatalf("expected focus thread to be cleared once thread 2 is gone")
	}
}

func TestMarkAllThreadsStoppedClearsSelectedFrames(t *testing.T) {
	c := New()
	c.UpdateThreads([]Thread{{ID: 1, Running: true}, {ID: 2, Running: true}})
	c.SetSelectedFrame(1, 3)
	c.SetSelectedFrame(2, 5)

	c.MarkAllThreadsStopped()

	if !c.AllThreadsStopped() {
		t.Fatalf("expected AllThreadsStopped to hold")
	}
	for _, th := range c.All() {
		if th.SelectedFrame != 0 {
			t.Fatalf("expected selected frame cleared for thread %d, got %d", th.ID, th.SelectedFrame)
		}
	}
}

func TestFirstStoppedThreadIsDeterministicByAscendingID(t *testing.T) {
	c := New()
	c.UpdateThreads([]Thread{{ID: 5, Running: true}, {ID: 2, Running: false}, {ID: 3, Running: false}})

	first, ok := c.FirstStoppedThread()
	if !ok || first.ID != 2 {
		t.Fatalf("expected thread 2 as first stopped, got %+v ok=%v", first, ok)
	}
}

func TestAllThreadsRunning(t *testing.T) {
	c := New()
	c.UpdateThreads([]Thread{{ID: 1, Running: true}, {ID: 2, Running: true}})
	if !c.AllThreadsRunning() {
		t.Fatalf("expected AllThreadsRunning to hold")
	}

	c.MarkThreadStopped(2)
	if c.AllThreadsRunning() {
		t.Fatalf("expected AllThreadsRunning to no longer hold")
	}
}

func TestSetFocusThreadRequiresExistingThread(t *testing.T) {
	c := New()
	if c.SetFocusThread(42) {
		t.Fatalf("expected SetFocusThread to fail for unknown thread")
	}
}
