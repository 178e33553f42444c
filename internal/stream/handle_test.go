package stream

import "testing"

func TestHandleCloseOnce(t *testing.T) {
	calls := 0
	h := NewHandle(func() { calls++ })
	h.Close()
	h.Close()
	if calls != 1 {
		t.Errorf("stop called %d times, want 1", calls)
	}
}

func TestHandleCloseNil(t *testing.T) {
	var h *Handle
	h.Close() // must not panic
}

func TestGroupClosesAllHandles(t *testing.T) {
	var g Group
	closed := make(map[int]int)
	for i := 0; i < 3; i++ {
		i := i
		g.Add(NewHandle(func() { closed[i]++ }))
	}
	g.Close()
	g.Close()

	for i := 0; i < 3; i++ {
		if closed[i] != 1 {
			t.Errorf("handle %d closed %d times, want 1", i, closed[i])
		}
	}
}

func TestGroupAddAfterClose(t *testing.T) {
	var g Group
	g.Close()

	calls := 0
	g.Add(NewHandle(func() { calls++ }))
	if calls != 1 {
		t.Error("handle added after close must be closed immediately")
	}
}
