package breakpoint

import "testing"

func TestAddSourceAllocatesIncreasingIndices(t *testing.T) {
	c := New()
	i1 := c.AddSource("/a.go", 10)
	i2 := c.AddSource("/a.go", 20)
	i3 := c.AddFunction("main")

	if !(i1 < i2 && i2 < i3) {
		t.Fatalf("expected strictly increasing indices, got %d, %d, %d", i1, i2, i3)
	}
}

func TestIndicesNeverReused(t *testing.T) {
	c := New()
	i1 := c.AddSource("/a.go", 10)
	c.Delete(i1)
	i2 := c.AddSource("/b.go", 1)

	if i2 <= i1 {
		t.Fatalf("expected fresh index greater than deleted index %d, got %d", i1, i2)
	}
	if _, ok := c.GetByIndex(i1); ok {
		t.Fatalf("expected deleted breakpoint %d to be gone", i1)
	}
}

func TestAddSourceRoundTrip(t *testing.T) {
	c := New()
	idx := c.AddSource("/a.py", 10)

	bp, ok := c.GetByIndex(idx)
	if !ok {
		t.Fatalf("expected breakpoint at index %d", idx)
	}
	sb, ok := bp.(*SourceBreakpoint)
	if !ok {
		t.Fatalf("expected *SourceBreakpoint, got %T", bp)
	}
	if sb.Path != "/a.py" || sb.Line != 10 || !sb.Enabled() {
		t.Fatalf("unexpected breakpoint state: %+v", sb)
	}
}

func TestSetConditionOnlyAppliesToSourceBreakpoints(t *testing.T) {
	c := New()
	idx := c.AddSource("/a.py", 10)
	fnIdx := c.AddFunction("main")

	if !c.SetCondition(idx, "x > 1", "", "") {
		t.Fatalf("expected SetCondition to succeed on source breakpoint")
	}
	bp, _ := c.GetByIndex(idx)
	sb := bp.(*SourceBreakpoint)
	if sb.Condition != "x > 1" {
		t.Fatalf("condition = %q, want %q", sb.Condition, "x > 1")
	}

	if c.SetCondition(fnIdx, "x > 1", "", "") {
		t.Fatalf("expected SetCondition to fail on function breakpoint")
	}
}

func TestSetEnabledRoundTripIsNoOp(t *testing.T) {
	c := New()
	idx := c.AddSource("/a.py", 10)

	c.SetEnabled(idx, false)
	c.SetEnabled(idx, true)

	bp, _ := c.GetByIndex(idx)
	if !bp.Enabled() {
		t.Fatalf("expected breakpoint to be enabled after round trip")
	}
}

func TestSetIDMaintainsLookup(t *testing.T) {
	c := New()
	idx := c.AddSource("/a.py", 10)
	c.SetID(idx, 42)

	bp, ok := c.GetByID(42)
	if !ok {
		t.Fatalf("expected lookup by id 42 to succeed")
	}
	if bp.Index() != idx {
		t.Fatalf("expected id 42 to map to index %d, got %d", idx, bp.Index())
	}

	// Re-setting the id should release the old mapping.
	c.SetID(idx, 99)
	if _, ok := c.GetByID(42); ok {
		t.Fatalf("expected old id 42 to no longer resolve")
	}
	if _, ok := c.GetByID(99); !ok {
		t.Fatalf("expected new id 99 to resolve")
	}
}

func TestDeleteAllEmptiesCollectionButKeepsAllocator(t *testing.T) {
	c := New()
	c.AddSource("/a.py", 1)
	c.AddSource("/b.py", 2)
	c.DeleteAll()

	if len(c.All()) != 0 {
		t.Fatalf("expected empty collection after DeleteAll")
	}

	idx := c.AddSource("/c.py", 3)
	if idx <= 2 {
		t.Fatalf("expected allocator to continue past 2, got %d", idx)
	}
}

func TestAllEnabledBySourceGroupsByPath(t *testing.T) {
	c := New()
	c.AddSource("/a.py", 1)
	c.AddSource("/a.py", 2)
	disabledIdx := c.AddSource("/b.py", 3)
	c.SetEnabled(disabledIdx, false)

	grouped := c.AllEnabledBySource()
	if len(grouped["/a.py"]) != 2 {
		t.Fatalf("expected 2 enabled breakpoints for /a.py, got %d", len(grouped["/a.py"]))
	}
	if _, ok := grouped["/b.py"]; ok {
		t.Fatalf("expected disabled breakpoint's path to be absent")
	}
}

func TestAllPathsSurvivesDeleteAndDisable(t *testing.T) {
	c := New()
	idx := c.AddSource("/a.py", 10)
	disabledIdx := c.AddSource("/b.py", 3)
	c.SetEnabled(disabledIdx, false)

	c.Delete(idx)

	paths := c.AllPaths()
	if _, ok := paths["/a.py"]; !ok {
		t.Fatalf("expected /a.py to remain in AllPaths after its only breakpoint was deleted")
	}
	if _, ok := paths["/b.py"]; !ok {
		t.Fatalf("expected /b.py to remain in AllPaths while disabled")
	}
	if len(c.AllEnabledBySource()) != 0 {
		t.Fatalf("expected AllEnabledBySource to be empty after delete and disable")
	}
}

func TestAllEnabledFunction(t *testing.T) {
	c := New()
	c.AddFunction("main")
	idx := c.AddFunction("helper")
	c.SetEnabled(idx, false)

	fns := c.AllEnabledFunction()
	if len(fns) != 1 || fns[0].Func != "main" {
		t.Fatalf("expected only 'main' enabled, got %+v", fns)
	}
}

func TestGetByIndexMissingFails(t *testing.T) {
	c := New()
	if _, ok := c.GetByIndex(999); ok {
		t.Fatalf("expected lookup of nonexistent index to fail")
	}
}
