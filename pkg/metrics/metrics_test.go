// Tests for the exposition primitives
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter", "A test counter")
	if v := c.Get(nil); v != 0 {
		t.Errorf("expected 0, got %d", v)
	}
	c.Inc(nil)
	c.Add(nil, 10)
	if v := c.Get(nil); v != 11 {
		t.Errorf("expected 11, got %d", v)
	}

	c.Inc(Labels{"api": "AxisPtp"})
	c.Inc(Labels{"api": "AxisPtp"})
	if v := c.Get(Labels{"api": "AxisPtp"}); v != 2 {
		t.Errorf("expected 2 for labelled series, got %d", v)
	}
	if c.Name() != "test_counter" || c.Help() != "A test counter" || c.Type() != TypeCounter {
		t.Errorf("unexpected metadata %s %s %s", c.Name(), c.Help(), c.Type())
	}
}

func TestCounterConcurrency(t *testing.T) {
	c := NewCounter("concurrent_total", "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc(Labels{"device": "0"})
			}
		}()
	}
	wg.Wait()
	if v := c.Get(Labels{"device": "0"}); v != 5000 {
		t.Errorf("expected 5000, got %d", v)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "")
	g.Set(nil, 42.5)
	g.Inc(nil)
	g.Dec(nil)
	g.Dec(nil)
	g.Add(nil, 0.5)
	if v := g.Get(nil); v != 42 {
		t.Errorf("expected 42, got %v", v)
	}
	if v := g.Get(Labels{"axis": "9"}); v != 0 {
		t.Errorf("unseen series should read 0, got %v", v)
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("cycle_seconds", "", []float64{1, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.7, 2} {
		h.Observe(nil, v)
	}
	s := h.GetSnapshot(nil)
	if s.Count != 5 {
		t.Errorf("expected count 5, got %d", s.Count)
	}
	if math.Abs(s.Sum-3.15) > 1e-9 {
		t.Errorf("expected sum 3.15, got %v", s.Sum)
	}
	want := map[float64]uint64{0.1: 2, 0.5: 3, 1: 4}
	for b, n := range want {
		if s.Buckets[b] != n {
			t.Errorf("bucket le=%v: expected %d, got %d", b, n, s.Buckets[b])
		}
	}

	h.ObserveDuration(Labels{"device": "0"}, 200*time.Millisecond)
	if s := h.GetSnapshot(Labels{"device": "0"}); s.Buckets[0.5] != 1 || s.Buckets[0.1] != 0 {
		t.Errorf("unexpected duration buckets %v", s.Buckets)
	}
}

func TestBucketHelpers(t *testing.T) {
	if b := DefaultBuckets(); len(b) != 11 || b[0] != 0.005 {
		t.Errorf("unexpected default buckets %v", b)
	}
	lin := LinearBuckets(1, 2, 4)
	for i, want := range []float64{1, 3, 5, 7} {
		if lin[i] != want {
			t.Errorf("linear[%d]: expected %v, got %v", i, want, lin[i])
		}
	}
	exp := ExponentialBuckets(1, 10, 3)
	for i, want := range []float64{1, 10, 100} {
		if exp[i] != want {
			t.Errorf("exponential[%d]: expected %v, got %v", i, want, exp[i])
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("a_total", "first")
	g := NewGauge("b_value", "second")
	r.MustRegister(c, g)
	if err := r.Register(NewCounter("a_total", "dup")); err == nil {
		t.Error("duplicate registration should fail")
	}
	if r.Get("b_value") != g {
		t.Error("Get should return the registered gauge")
	}

	c.Inc(nil)
	g.Set(Labels{"axis": "1"}, 2)
	g.Set(Labels{"axis": "0"}, 1)
	want := `# HELP a_total first
# TYPE a_total counter
a_total 1
# HELP b_value second
# TYPE b_value gauge
b_value{axis="0"} 1
b_value{axis="1"} 2
`
	if got := r.Gather(); got != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", got, want)
	}

	r.Unregister("a_total")
	if strings.Contains(r.Gather(), "a_total") {
		t.Error("unregistered metric still gathered")
	}
}

func TestHistogramExposition(t *testing.T) {
	r := NewRegistry()
	h := NewHistogram("lat_seconds", "latency", []float64{0.1, 1})
	r.MustRegister(h)
	h.Observe(Labels{"api": "x"}, 0.05)
	h.Observe(Labels{"api": "x"}, 5)

	out := r.Gather()
	for _, line := range []string{
		`lat_seconds_bucket{api="x",le="0.1"} 1`,
		`lat_seconds_bucket{api="x",le="1"} 1`,
		`lat_seconds_bucket{api="x",le="+Inf"} 2`,
		`lat_seconds_sum{api="x"} 5.05`,
		`lat_seconds_count{api="x"} 2`,
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("missing %q in\n%s", line, out)
		}
	}
}

func TestLabels(t *testing.T) {
	l := Labels{"b": "2", "a": "1"}
	if k := l.Key(); k != "a=1,b=2" {
		t.Errorf("unexpected key %q", k)
	}
	if s := l.String(); s != `{a="1",b="2"}` {
		t.Errorf("unexpected string %q", s)
	}
	var empty Labels
	if empty.Key() != "" || empty.String() != "" {
		t.Error("empty labels should render nothing")
	}

	w := l.With(Labels{"b": "3", "c": "4"})
	if w["b"] != "3" || w["c"] != "4" || l["b"] != "2" {
		t.Errorf("With should copy: %v %v", w, l)
	}

	esc := Labels{"text": "a\"b\\c\nd"}
	if s := esc.String(); s != `{text="a\"b\\c\nd"}` {
		t.Errorf("unexpected escaping %s", s)
	}
}

func BenchmarkCounterInc(b *testing.B) {
	c := NewCounter("bench_total", "")
	l := Labels{"device": "0"}
	for i := 0; i < b.N; i++ {
		c.Inc(l)
	}
}

func BenchmarkHistogramObserve(b *testing.B) {
	h := NewHistogram("bench_seconds", "", DefaultBuckets())
	for i := 0; i < b.N; i++ {
		h.Observe(nil, 0.02)
	}
}
