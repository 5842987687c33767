package clock

import "testing"

type fixedSource struct{ millis int64 }

func (f *fixedSource) NowMillis() int64 { return f.millis }

func TestNowMonotonic(t *testing.T) {
	src := &fixedSource{millis: 1000}
	c := NewWithSource("a", src)

	t1, err := c.Now()
	if err != nil {
		t.Fatal(err)
	}
	t2, err := c.Now()
	if err != nil {
		t.Fatal(err)
	}
	if Compare(t2, t1) <= 0 {
		t.Fatalf("expected t2 > t1, got %v vs %v", t2, t1)
	}

	src.millis = 999 // wall clock regresses
	t3, err := c.Now()
	if err != nil {
		t.Fatal(err)
	}
	if Compare(t3, t2) <= 0 {
		t.Fatalf("expected t3 > t2 even with regressed wall clock, got %v vs %v", t3, t2)
	}
}

func TestCounterResetsOnMillisAdvance(t *testing.T) {
	src := &fixedSource{millis: 1000}
	c := NewWithSource("a", src)
	t1, _ := c.Now()
	if t1.Counter != 0 {
		t.Fatalf("expected counter 0, got %d", t1.Counter)
	}
	t2, _ := c.Now()
	if t2.Counter != 1 {
		t.Fatalf("expected counter 1, got %d", t2.Counter)
	}
	src.millis = 2000
	t3, _ := c.Now()
	if t3.Counter != 0 {
		t.Fatalf("expected counter reset to 0 on millis advance, got %d", t3.Counter)
	}
}

func TestUpdateAdvancesPastRemote(t *testing.T) {
	src := &fixedSource{millis: 1000}
	local := NewWithSource("local", src)
	remote := Timestamp{Millis: 5000, Counter: 7, NodeID: "remote"}

	if err := local.Update(remote); err != nil {
		t.Fatal(err)
	}
	next, err := local.Now()
	if err != nil {
		t.Fatal(err)
	}
	if Compare(next, remote) <= 0 {
		t.Fatalf("expected next timestamp > remote, got %v vs %v", next, remote)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := Timestamp{Millis: 1700000000123, Counter: 42, NodeID: "node-7"}
	parsed, err := Parse(ts.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != ts {
		t.Fatalf("round trip mismatch: %v != %v", parsed, ts)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{"", "abc", "1:2", "1:2:", "x:2:node"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected error parsing %q", c)
		}
	}
}

func TestCompareLexicographic(t *testing.T) {
	a := Timestamp{Millis: 1, Counter: 0, NodeID: "a"}
	b := Timestamp{Millis: 1, Counter: 0, NodeID: "b"}
	if Compare(a, b) >= 0 {
		t.Fatalf("expected a < b by nodeId tiebreak")
	}
	c := Timestamp{Millis: 1, Counter: 1, NodeID: "a"}
	if Compare(a, c) >= 0 {
		t.Fatalf("expected a < c by counter")
	}
	d := Timestamp{Millis: 2, Counter: 0, NodeID: "a"}
	if Compare(a, d) >= 0 {
		t.Fatalf("expected a < d by millis")
	}
}
