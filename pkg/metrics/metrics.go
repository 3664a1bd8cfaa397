// Prometheus text exposition
//
// Counters, gauges and histograms keyed by label sets, gathered from a
// Registry into the text format scraped by Prometheus. Series are written
// in label order so that the output is stable between scrapes.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// MetricType is the exposition type of a metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels are the label pairs of one series
type Labels map[string]string

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key identifies the series of a label set
func (l Labels) Key() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String renders {k="v",...}, or nothing for an empty set
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(labelEscaper.Replace(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// With returns a copy of l with the pairs of other added
func (l Labels) With(other Labels) Labels {
	out := make(Labels, len(l)+len(other))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Metric is anything the registry can write
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// family holds the series of one metric
type family[V any] struct {
	name, help string
	mu         sync.RWMutex
	series     map[string]*V
	labels     map[string]Labels
}

func (f *family[V]) init(name, help string) {
	f.name, f.help = name, help
	f.series = make(map[string]*V)
	f.labels = make(map[string]Labels)
}

func (f *family[V]) Name() string { return f.name }
func (f *family[V]) Help() string { return f.help }

// get returns the series of labels, creating it with mk
func (f *family[V]) get(labels Labels, mk func() *V) *V {
	key := labels.Key()
	f.mu.RLock()
	v, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return v
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok = f.series[key]; !ok {
		v = mk()
		f.series[key] = v
		f.labels[key] = labels.With(nil)
	}
	return v
}

func (f *family[V]) lookup(labels Labels) (*V, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.series[labels.Key()]
	return v, ok
}

// each visits the series in key order
func (f *family[V]) each(fn func(Labels, *V)) {
	f.mu.RLock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	type entry struct {
		l Labels
		v *V
	}
	entries := make([]entry, len(keys))
	for i, k := range keys {
		entries[i] = entry{f.labels[k], f.series[k]}
	}
	f.mu.RUnlock()
	for _, e := range entries {
		fn(e.l, e.v)
	}
}

func (f *family[V]) header(sb *strings.Builder, typ MetricType) {
	sb.WriteString("# HELP " + f.name + " " + f.help + "\n")
	sb.WriteString("# TYPE " + f.name + " " + typ.String() + "\n")
}

func sample(sb *strings.Builder, name string, labels Labels, value string) {
	sb.WriteString(name)
	sb.WriteString(labels.String())
	sb.WriteByte(' ')
	sb.WriteString(value)
	sb.WriteByte('\n')
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Counter only goes up
type Counter struct {
	family[atomic.Uint64]
}

func NewCounter(name, help string) *Counter {
	c := &Counter{}
	c.init(name, help)
	return c
}

func (c *Counter) Type() MetricType { return TypeCounter }

func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

func (c *Counter) Add(labels Labels, delta uint64) {
	c.get(labels, func() *atomic.Uint64 { return new(atomic.Uint64) }).Add(delta)
}

// Get returns the count of labels, zero for an unseen series
func (c *Counter) Get(labels Labels) uint64 {
	if v, ok := c.lookup(labels); ok {
		return v.Load()
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	c.header(sb, TypeCounter)
	c.each(func(l Labels, v *atomic.Uint64) {
		sample(sb, c.name, l, strconv.FormatUint(v.Load(), 10))
	})
}

type gaugeValue struct {
	mu sync.Mutex
	v  float64
}

// Gauge holds the last value set
type Gauge struct {
	family[gaugeValue]
}

func NewGauge(name, help string) *Gauge {
	g := &Gauge{}
	g.init(name, help)
	return g
}

func (g *Gauge) Type() MetricType { return TypeGauge }

func (g *Gauge) value(labels Labels) *gaugeValue {
	return g.get(labels, func() *gaugeValue { return new(gaugeValue) })
}

func (g *Gauge) Set(labels Labels, v float64) {
	gv := g.value(labels)
	gv.mu.Lock()
	gv.v = v
	gv.mu.Unlock()
}

func (g *Gauge) Add(labels Labels, delta float64) {
	gv := g.value(labels)
	gv.mu.Lock()
	gv.v += delta
	gv.mu.Unlock()
}

func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

func (g *Gauge) Get(labels Labels) float64 {
	gv, ok := g.lookup(labels)
	if !ok {
		return 0
	}
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.v
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.header(sb, TypeGauge)
	g.each(func(l Labels, gv *gaugeValue) {
		gv.mu.Lock()
		v := gv.v
		gv.mu.Unlock()
		sample(sb, g.name, l, formatFloat(v))
	})
}

type histogramValue struct {
	mu     sync.Mutex
	count  uint64
	sum    float64
	counts []uint64 // per bucket, not cumulative
}

// Histogram counts observations into upper-bounded buckets
type Histogram struct {
	family[histogramValue]
	bounds []float64
}

// NewHistogram sorts the bucket bounds; +Inf is implicit
func NewHistogram(name, help string, buckets []float64) *Histogram {
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{bounds: bounds}
	h.init(name, help)
	return h
}

// DefaultBuckets spans 5 ms to 10 s
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

func LinearBuckets(start, width float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start + float64(i)*width
	}
	return out
}

func ExponentialBuckets(start, factor float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start
		start *= factor
	}
	return out
}

func (h *Histogram) Type() MetricType { return TypeHistogram }

func (h *Histogram) Observe(labels Labels, v float64) {
	hv := h.get(labels, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.bounds))}
	})
	i := sort.SearchFloat64s(h.bounds, v)
	hv.mu.Lock()
	hv.count++
	hv.sum += v
	if i < len(hv.counts) {
		hv.counts[i]++
	}
	hv.mu.Unlock()
}

// ObserveDuration records d in seconds
func (h *Histogram) ObserveDuration(labels Labels, d time.Duration) {
	h.Observe(labels, d.Seconds())
}

// Timer returns a func that observes the time since Timer was called
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() { h.ObserveDuration(labels, time.Since(start)) }
}

// HistogramSnapshot holds cumulative bucket counts keyed by upper bound
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64
}

func (h *Histogram) snapshot(hv *histogramValue) HistogramSnapshot {
	hv.mu.Lock()
	defer hv.mu.Unlock()
	s := HistogramSnapshot{Count: hv.count, Sum: hv.sum, Buckets: make(map[float64]uint64, len(h.bounds))}
	var cum uint64
	for i, b := range h.bounds {
		cum += hv.counts[i]
		s.Buckets[b] = cum
	}
	return s
}

func (h *Histogram) GetSnapshot(labels Labels) HistogramSnapshot {
	hv, ok := h.lookup(labels)
	if !ok {
		return HistogramSnapshot{Buckets: map[float64]uint64{}}
	}
	return h.snapshot(hv)
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.header(sb, TypeHistogram)
	h.each(func(l Labels, hv *histogramValue) {
		s := h.snapshot(hv)
		for _, b := range h.bounds {
			sample(sb, h.name+"_bucket", l.With(Labels{"le": formatFloat(b)}), strconv.FormatUint(s.Buckets[b], 10))
		}
		sample(sb, h.name+"_bucket", l.With(Labels{"le": "+Inf"}), strconv.FormatUint(s.Count, 10))
		sample(sb, h.name+"_sum", l, formatFloat(s.Sum))
		sample(sb, h.name+"_count", l, strconv.FormatUint(s.Count, 10))
	})
}

// Registry writes its metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.metrics[m.Name()]; dup {
		return errors.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

func (r *Registry) MustRegister(ms ...Metric) {
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[name]; !ok {
		return
	}
	delete(r.metrics, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders every registered metric
func (r *Registry) Gather() string {
	r.mu.RLock()
	ms := make([]Metric, 0, len(r.order))
	for _, n := range r.order {
		ms = append(ms, r.metrics[n])
	}
	r.mu.RUnlock()

	var sb strings.Builder
	for _, m := range ms {
		m.Write(&sb)
	}
	return sb.String()
}
