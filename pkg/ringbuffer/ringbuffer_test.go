package ringbuffer

import "testing"

func TestAppendWithinCapacity(t *testing.T) {
	b := New(8)
	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5})
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}
	got := b.Snapshot()
	want := []byte{1, 2, 3, 4, 5}
	if !bytesEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	b := New(4)
	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5}) // evicts 1
	got := b.Snapshot()
	want := []byte{2, 3, 4, 5}
	if !bytesEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	if b.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", b.Len())
	}
}

func TestAppendLargerThanCapacity(t *testing.T) {
	b := New(4)
	b.Append([]byte{1, 2, 3, 4, 5, 6})
	got := b.Snapshot()
	want := []byte{3, 4, 5, 6}
	if !bytesEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
}

func TestWrapAroundAppend(t *testing.T) {
	b := New(4)
	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4}) // full: 1 2 3 4
	b.Append([]byte{5}) // evict 1: 2 3 4 5, write wraps to index 0
	got := b.Snapshot()
	want := []byte{2, 3, 4, 5}
	if !bytesEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
}

func TestTail(t *testing.T) {
	b := New(8)
	b.Append([]byte{1, 2, 3, 4, 5})
	if got := b.Tail(2); !bytesEqual(got, []byte{4, 5}) {
		t.Fatalf("Tail(2) = %v, want [4 5]", got)
	}
	if got := b.Tail(100); !bytesEqual(got, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("Tail(100) = %v, want full window", got)
	}
	if got := b.Tail(0); got != nil {
		t.Fatalf("Tail(0) = %v, want nil", got)
	}
}

func TestClear(t *testing.T) {
	b := New(4)
	b.Append([]byte{1, 2, 3})
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("Len() after Clear() = %d, want 0", b.Len())
	}
	b.Append([]byte{9})
	if got := b.Snapshot(); !bytesEqual(got, []byte{9}) {
		t.Fatalf("Snapshot() after Clear()+Append = %v, want [9]", got)
	}
}

func TestInvariantCountNeverExceedsCapacity(t *testing.T) {
	b := New(16)
	for i := 0; i < 100; i++ {
		b.Append(make([]byte, 3))
		if b.Len() > b.Cap() {
			t.Fatalf("Len() %d exceeds Cap() %d", b.Len(), b.Cap())
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
