package breakpoint

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

// Collection is the BreakpointCollection: the authoritative,
// session-independent set of breakpoints the user has declared.
// Indices are allocated monotonically and never reused. Entries are
// kept in a treemap ordered by index so All(), AllEnabledBySource()
// and AllEnabledFunction() iterate in a stable, user-meaningful order
// without a separate sort step. AllPaths() reads the separate paths
// map and returns a set with no defined order.
type Collection struct {
	mu     sync.Mutex
	byIdx  *treemap.Map      // int(index) -> Breakpoint
	byID   map[uint32]uint32 // adapter id -> index, for O(1) lookup
	nextID uint32

	// paths records every source path ever passed to AddSource. Unlike
	// byIdx, Delete/DeleteAll never remove a path from here: a source
	// whose last breakpoint was deleted still needs one more
	// setBreakpoints call with an empty list to actually clear it on
	// the adapter, since setBreakpoints replaces a source's entire
	// breakpoint list rather than diffing against it.
	paths map[string]struct{}
}

// New returns an empty BreakpointCollection.
func New() *Collection {
	return &Collection{
		byIdx: treemap.NewWithIntComparator(),
		byID:  make(map[uint32]uint32),
		paths: make(map[string]struct{}),
	}
}

// AddSource allocates a fresh index and records an enabled source
// breakpoint. No dedup is performed against existing (path, line)
// pairs — duplicates are a user error a higher layer may report.
func (c *Collection) AddSource(path string, line uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	idx := c.nextID
	c.byIdx.Put(int(idx), &SourceBreakpoint{
		index:   idx,
		Path:    path,
		Line:    line,
		enabled: true,
	})
	c.paths[path] = struct{}{}
	return idx
}

// AddFunction allocates a fresh index and records an enabled function
// breakpoint.
func (c *Collection) AddFunction(fn string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	idx := c.nextID
	c.byIdx.Put(int(idx), &FunctionBreakpoint{
		index:   idx,
		Func:    fn,
		enabled: true,
	})
	return idx
}

// Delete removes the breakpoint at index. Subsequent lookups by that
// index fail with NoSuchBreakpoint.
func (c *Collection) Delete(index uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bp, ok := c.getLocked(index)
	if !ok {
		return false
	}
	if id, hasID := bp.ID(); hasID {
		delete(c.byID, id)
	}
	c.byIdx.Remove(int(index))
	return true
}

// DeleteAll empties the collection. Index allocation is not reset:
// the next AddSource/AddFunction continues from where it left off.
func (c *Collection) DeleteAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byIdx.Clear()
	c.byID = make(map[uint32]uint32)
}

// SetEnabled toggles the enabled bit on the breakpoint at index.
func (c *Collection) SetEnabled(index uint32, enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bp, ok := c.getLocked(index)
	if !ok {
		return false
	}
	bp.setEnabled(enabled)
	return true
}

// SetVerified sets the verified bit, used both by the reconciler
// (optimistic auto-verify) and by breakpoint events (adapter
// confirmation arriving asynchronously).
func (c *Collection) SetVerified(index uint32, verified bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bp, ok := c.getLocked(index)
	if !ok {
		return false
	}
	bp.setVerified(verified)
	return true
}

// SetMessage sets the status message shown alongside an unverified
// breakpoint.
func (c *Collection) SetMessage(index uint32, message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bp, ok := c.getLocked(index)
	if !ok {
		return false
	}
	bp.setMessage(message)
	return true
}

// SetID records the adapter-assigned id for the breakpoint at index
// and maintains the id->index lookup. Re-setting the id for the same
// index first releases its previous mapping, if any.
func (c *Collection) SetID(index uint32, id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bp, ok := c.getLocked(index)
	if !ok {
		return false
	}
	if oldID, hasOld := bp.ID(); hasOld {
		delete(c.byID, oldID)
	}
	bp.setID(id, true)
	c.byID[id] = index
	return true
}

// SetCondition records the optional condition, hit condition, and log
// message on the source breakpoint at index, populated by the break
// command's "if"/"hit"/"log" clauses. No-op on function breakpoints.
func (c *Collection) SetCondition(index uint32, condition, hitCondition, logMessage string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.byIdx.Get(int(index))
	if !ok {
		return false
	}
	sb, ok := v.(*SourceBreakpoint)
	if !ok {
		return false
	}
	sb.Condition = condition
	sb.HitCondition = hitCondition
	sb.LogMessage = logMessage
	return true
}

// SetPathAndLine updates the resolved location of a function
// breakpoint once the adapter reports where the function lives.
func (c *Collection) SetPathAndLine(index uint32, path string, line uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.byIdx.Get(int(index))
	if !ok {
		return false
	}
	fb, ok := v.(*FunctionBreakpoint)
	if !ok {
		return false
	}
	fb.ResolvedPath = path
	fb.ResolvedLine = line
	return true
}

// GetByIndex returns the breakpoint at index, if present.
func (c *Collection) GetByIndex(index uint32) (Breakpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(index)
}

// GetByID returns the breakpoint carrying adapter id, if present.
func (c *Collection) GetByID(id uint32) (Breakpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return c.getLocked(index)
}

// All returns every breakpoint, ordered by index.
func (c *Collection) All() []Breakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.byIdx.Values()
	out := make([]Breakpoint, 0, len(values))
	for _, v := range values {
		out = append(out, v.(Breakpoint))
	}
	return out
}

// AllEnabledBySource groups enabled source breakpoints by path, for
// the DAP setBreakpoints request which replaces a source's entire
// breakpoint list in one call.
func (c *Collection) AllEnabledBySource() map[string][]*SourceBreakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]*SourceBreakpoint)
	for _, v := range c.byIdx.Values() {
		sb, ok := v.(*SourceBreakpoint)
		if !ok || !sb.enabled {
			continue
		}
		out[sb.Path] = append(out[sb.Path], sb)
	}
	return out
}

// AllEnabledFunction returns every enabled function breakpoint, for
// the DAP setFunctionBreakpoints request.
func (c *Collection) AllEnabledFunction() []*FunctionBreakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*FunctionBreakpoint
	for _, v := range c.byIdx.Values() {
		fb, ok := v.(*FunctionBreakpoint)
		if !ok || !fb.enabled {
			continue
		}
		out = append(out, fb)
	}
	return out
}

// AllPaths returns every source path ever declared via AddSource,
// including ones whose breakpoints have since all been deleted or
// disabled, used when reconciling so a source that drops to zero
// enabled breakpoints still gets an explicit empty setBreakpoints
// call rather than keeping whatever the adapter last had for it.
func (c *Collection) AllPaths() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]struct{}, len(c.paths))
	for path := range c.paths {
		out[path] = struct{}{}
	}
	return out
}

func (c *Collection) getLocked(index uint32) (Breakpoint, bool) {
	v, ok := c.byIdx.Get(int(index))
	if !ok {
		return nil, false
	}
	return v.(Breakpoint), true
}
