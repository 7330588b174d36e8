package thread

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/emirpasic/gods/utils"
)

// Collection is the ThreadCollection: SessionCore's view of which
// debuggee threads currently exist. It maintains an optional focus
// thread that, once set, is cleared as soon as its thread leaves the
// collection, a deterministic first-stopped-thread by ascending id,
// and cheap
// allThreadsRunning/Stopped checks.
//
// byID is a treemap keyed by thread id so FirstStoppedThread can walk
// in ascending order without a sort; running is a hashset of
// currently-running thread ids, letting AllThreadsRunning/Stopped
// compare set sizes instead of scanning every thread by hand.
type Collection struct {
	mu         sync.Mutex
	byID       *treemap.Map // int64 -> *Thread
	running    *hashset.Set // int64 thread ids currently running
	focusThread int64
	hasFocus    bool
}

// New returns an empty ThreadCollection.
func New() *Collection {
	return &Collection{
		byID:    treemap.NewWith(utils.Int64Comparator),
		running: hashset.New(),
	}
}

// UpdateThreads reconciles the collection against a freshly fetched
// thread list (typically from a DAP `threads` response). Threads not
// present in newList are dropped. The focus thread, if it still
// exists, is preserved.
func (c *Collection) UpdateThreads(newList []Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[int64]struct{}, len(newList))
	for _, t := range newList {
		seen[t.ID] = struct{}{}
		if existing, ok := c.byID.Get(t.ID); ok {
			// Preserve local running/selected-frame state; only the
			// name is refreshed from the adapter.
			et := existing.(*Thread)
			et.Name = t.Name
			continue
		}
		nt := t
		c.byID.Put(nt.ID, &nt)
		if nt.Running {
			c.running.Add(nt.ID)
		}
	}

	for _, k := range c.byID.Keys() {
		id := k.(int64)
		if _, ok := seen[id]; !ok {
			c.byID.Remove(id)
			c.running.Remove(id)
		}
	}

	if c.hasFocus {
		if _, ok := c.byID.Get(c.focusThread); !ok {
			c.hasFocus = false
		}
	}
}

// AddThread adds a single thread, e.g. from a `thread` started event.
func (c *Collection) AddThread(t Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nt := t
	c.byID.Put(nt.ID, &nt)
	if nt.Running {
		c.running.Add(nt.ID)
	}
}

// RemoveThread drops a thread, e.g. from a `thread` exited event.
// Clears the focus thread if it was the one removed.
func (c *Collection) RemoveThread(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID.Remove(id)
	c.running.Remove(id)
	if c.hasFocus && c.focusThread == id {
		c.hasFocus = false
	}
}

// MarkThreadRunning marks a single thread as running.
func (c *Collection) MarkThreadRunning(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setRunningLocked(id, true)
}

// MarkThreadStopped marks a single thread as stopped and clears its
// selected frame, matching MarkAllThreadsStopped's behavior for the
// single-thread case.
func (c *Collection) MarkThreadStopped(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setRunningLocked(id, false)
	if v, ok := c.byID.Get(id); ok {
		v.(*Thread).SelectedFrame = 0
	}
}

func (c *Collection) setRunningLocked(id int64, running bool) {
	if v, ok := c.byID.Get(id); ok {
		v.(*Thread).Running = running
	}
	if running {
		c.running.Add(id)
	} else {
		c.running.Remove(id)
	}
}

// MarkAllThreadsRunning marks every known thread running.
func (c *Collection) MarkAllThreadsRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range c.byID.Values() {
		v.(*Thread).Running = true
	}
	c.running.Clear()
	for _, k := range c.byID.Keys() {
		c.running.Add(k)
	}
}

// MarkAllThreadsStopped marks every known thread stopped and clears
// every selected frame to 0.
func (c *Collection) MarkAllThreadsStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range c.byID.Values() {
		t := v.(*Thread)
		t.Running = false
		t.SelectedFrame = 0
	}
	c.running.Clear()
}

// SetFocusThread sets the focus thread; it is an error to focus a
// thread the collection doesn't hold, so the caller must check the
// returned bool.
func (c *Collection) SetFocusThread(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID.Get(id); !ok {
		return false
	}
	c.focusThread = id
	c.hasFocus = true
	return true
}

// FocusThread returns the current focus thread, if any.
func (c *Collection) FocusThread() (Thread, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasFocus {
		return Thread{}, false
	}
	v, ok := c.byID.Get(c.focusThread)
	if !ok {
		return Thread{}, false
	}
	return *v.(*Thread), true
}

// Get returns the thread with the given id.
func (c *Collection) Get(id int64) (Thread, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.byID.Get(id)
	if !ok {
		return Thread{}, false
	}
	return *v.(*Thread), true
}

// SetSelectedFrame updates the selected frame index for a thread.
func (c *Collection) SetSelectedFrame(id int64, frame uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.byID.Get(id)
	if !ok {
		return false
	}
	v.(*Thread).SelectedFrame = frame
	return true
}

// FirstStoppedThread returns the lowest-id thread that is not
// running.
func (c *Collection) FirstStoppedThread() (Thread, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range c.byID.Values() {
		t := v.(*Thread)
		if !t.Running {
			return *t, true
		}
	}
	return Thread{}, false
}

// AllThreadsRunning reports whether every known thread is running.
func (c *Collection) AllThreadsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running.Size() == c.byID.Size()
}

// AllThreadsStopped reports whether every known thread is stopped.
func (c *Collection) AllThreadsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running.Size() == 0
}

// All returns every known thread, ordered by ascending id.
func (c *Collection) All() []Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.byID.Values()
	out := make([]Thread, 0, len(values))
	for _, v := range values {
		out = append(out, *v.(*Thread))
	}
	return out
}
