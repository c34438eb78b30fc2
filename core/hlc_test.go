package core

import "testing"

// TestClockMonotonic verifies that successive readings from one clock are
// strictly increasing even while the wall clock stalls.
func TestClockMonotonic(t *testing.T) {
	wall := uint64(1000)
	c := NewClockAt(7, func() uint64 { return wall })
	prev := c.Now()
	for i := 0; i < 10000; i++ {
		if i%3 == 0 {
			wall++ // advance occasionally; stalls in between
		}
		cur := c.Now()
		if prev.Compare(cur) >= 0 {
			t.Fatalf("reading %d not increasing: %+v then %+v", i, prev, cur)
		}
		prev = cur
	}
}

// TestClockAbsorption verifies that after observing a remote stamp the next
// reading is strictly greater than it.
func TestClockAbsorption(t *testing.T) {
	cases := []Timestamp{
		{Wall: 500, Logical: 0, Node: 1},    // remote behind local wall
		{Wall: 1000, Logical: 42, Node: 1},  // remote on the local tick
		{Wall: 90000, Logical: 17, Node: 1}, // remote far ahead
	}
	for _, remote := range cases {
		c := NewClockAt(2, func() uint64 { return 1000 })
		c.Now()
		c.Observe(remote)
		got := c.Now()
		if got.Compare(remote) <= 0 {
			t.Fatalf("after Observe(%+v) got %+v, want strictly greater", remote, got)
		}
	}
}

// TestClockObserveKeepsLocalOrder verifies observation never lets the clock
// run backwards relative to earlier local readings.
func TestClockObserveKeepsLocalOrder(t *testing.T) {
	c := NewClockAt(3, func() uint64 { return 2000 })
	before := c.Now()
	c.Observe(Timestamp{Wall: 10, Logical: 3, Node: 9})
	after := c.Now()
	if before.Compare(after) >= 0 {
		t.Fatalf("observation of an old stamp broke local order: %+v then %+v", before, after)
	}
}

// TestTimestampCompare exercises the lexicographic order on all three
// components.
func TestTimestampCompare(t *testing.T) {
	a := Timestamp{Wall: 1, Logical: 2, Node: 3}
	cases := []struct {
		b    Timestamp
		want int
	}{
		{Timestamp{Wall: 2, Logical: 0, Node: 0}, -1},
		{Timestamp{Wall: 1, Logical: 3, Node: 0}, -1},
		{Timestamp{Wall: 1, Logical: 2, Node: 4}, -1},
		{Timestamp{Wall: 1, Logical: 2, Node: 3}, 0},
		{Timestamp{Wall: 0, Logical: 9, Node: 9}, 1},
	}
	for _, tc := range cases {
		if got := a.Compare(tc.b); got != tc.want {
			t.Fatalf("Compare(%+v, %+v)=%d want %d", a, tc.b, got, tc.want)
		}
	}
}

// TestClockCounterOverflow verifies the logical counter spills into the wall
// component instead of wrapping.
func TestClockCounterOverflow(t *testing.T) {
	c := NewClockAt(1, func() uint64 { return 100 })
	c.wall = 100
	c.logical = 1<<32 - 1
	before := Timestamp{Wall: c.wall, Logical: c.logical, Node: 1}
	got := c.Now()
	if got.Compare(before) <= 0 {
		t.Fatalf("overflow produced non-increasing stamp %+v", got)
	}
	if got.Wall != 101 || got.Logical != 0 {
		t.Fatalf("expected spill to wall 101 logical 0, got %+v", got)
	}
}

// TestNewClockDistinctNodes verifies two instances get distinct node ids.
func TestNewClockDistinctNodes(t *testing.T) {
	seen := map[uint32]bool{}
	for i := 0; i < 32; i++ {
		n := NewClock().Node()
		if seen[n] {
			t.Fatalf("node id %d repeated", n)
		}
		seen[n] = true
	}
}
