// Package profile plans one-dimensional velocity profiles.
//
// A profile is a chain of velocity transitions. Each transition moves
// from one velocity to another over a fixed time with either a linear
// (trapezoid) or a half-cosine (S-curve) velocity shape. Both shapes
// cover the same distance for the same transition, so the two strategies
// share one planner and differ only in their effective acceleration.
package profile

import (
	"errors"
	"math"
)

const eps = 1e-12

var (
	// ErrOvershoot is returned when the start velocity cannot be brought
	// to rest within the requested distance, or points away from it.
	ErrOvershoot = errors.New("profile: start velocity overshoots target")

	// ErrLimits is returned for non-positive velocity or acceleration.
	ErrLimits = errors.New("profile: invalid limits")
)

// Limits bounds a profile
type Limits struct {
	Vel float64
	Acc float64
	Dec float64
}

func (l Limits) valid() bool {
	return l.Vel > 0 && l.Acc > 0 && l.Dec > 0 &&
		!math.IsInf(l.Vel, 0) && !math.IsNaN(l.Vel+l.Acc+l.Dec)
}

// Point is a sampled profile state relative to the profile start
type Point struct {
	Pos float64
	Vel float64
	Acc float64
}

// Trajectory is anything that can be sampled over time
type Trajectory interface {
	Duration() float64
	Sample(t float64) Point
}

// Shape selects the velocity blend of a transition
type Shape int

const (
	Linear Shape = iota
	Cosine
)

type phase struct {
	t0, dur float64
	p0      float64
	va, vb  float64
	shape   Shape
}

func (ph *phase) at(tau float64) Point {
	dv := ph.vb - ph.va
	if ph.dur <= 0 {
		return Point{Pos: ph.p0, Vel: ph.vb}
	}
	switch ph.shape {
	case Cosine:
		w := math.Pi / ph.dur
		return Point{
			Pos: ph.p0 + ph.va*tau + dv/2*(tau-math.Sin(w*tau)/w),
			Vel: ph.va + dv/2*(1-math.Cos(w*tau)),
			Acc: dv / 2 * w * math.Sin(w*tau),
		}
	default:
		a := dv / ph.dur
		return Point{
			Pos: ph.p0 + ph.va*tau + a*tau*tau/2,
			Vel: ph.va + a*tau,
			Acc: a,
		}
	}
}

func (ph *phase) dist() float64 {
	return (ph.va + ph.vb) / 2 * ph.dur
}

// Profile is a planned chain of transitions. A holding profile keeps its
// final velocity after the last transition and never ends.
type Profile struct {
	phases []phase
	dur    float64
	dist   float64
	vEnd   float64
	hold   bool
}

func (p *Profile) add(dur, va, vb float64, shape Shape) {
	if dur <= eps {
		return
	}
	ph := phase{t0: p.dur, dur: dur, p0: p.dist, va: va, vb: vb, shape: shape}
	p.phases = append(p.phases, ph)
	p.dur += dur
	p.dist += ph.dist()
	p.vEnd = vb
}

// Duration returns the total time, +Inf for holding profiles
func (p *Profile) Duration() float64 {
	if p.hold {
		return math.Inf(1)
	}
	return p.dur
}

// Distance returns the signed displacement covered by the transitions
func (p *Profile) Distance() float64 {
	return p.dist
}

// EndVelocity returns the velocity after the last transition
func (p *Profile) EndVelocity() float64 {
	return p.vEnd
}

// Sample evaluates the profile at time t
func (p *Profile) Sample(t float64) Point {
	if len(p.phases) == 0 {
		if p.hold && t > 0 {
			return Point{Pos: p.vEnd * t, Vel: p.vEnd}
		}
		return Point{Vel: p.vEnd}
	}
	if t <= 0 {
		return Point{Vel: p.phases[0].va}
	}
	if t >= p.dur {
		if p.hold {
			return Point{Pos: p.dist + p.vEnd*(t-p.dur), Vel: p.vEnd}
		}
		return Point{Pos: p.dist, Vel: p.vEnd}
	}
	i := len(p.phases) - 1
	for j := range p.phases {
		if t < p.phases[j].t0+p.phases[j].dur {
			i = j
			break
		}
	}
	ph := &p.phases[i]
	return ph.at(t - ph.t0)
}

// Strategy shapes point-to-point profiles
type Strategy interface {
	Name() string
	// Plan builds the fastest profile covering dist from start velocity v0
	// and ending at rest.
	Plan(dist, v0 float64, lim Limits) (*Profile, error)
	// PlanDuration builds a profile from rest covering dist in exactly T
	// seconds, or in the minimum time when T is shorter.
	PlanDuration(dist float64, lim Limits, T float64) (*Profile, error)
}

// MinTime returns the duration of the fastest rest-to-rest profile
func MinTime(s Strategy, dist float64, lim Limits) (float64, error) {
	p, err := s.Plan(dist, 0, lim)
	if err != nil {
		return 0, err
	}
	return p.Duration(), nil
}

// Trapezoid plans constant-acceleration profiles
type Trapezoid struct{}

func (Trapezoid) Name() string { return "trapezoid" }

func (Trapezoid) Plan(dist, v0 float64, lim Limits) (*Profile, error) {
	return plan(Linear, dist, v0, lim)
}

func (Trapezoid) PlanDuration(dist float64, lim Limits, T float64) (*Profile, error) {
	return planDuration(Linear, dist, lim, T)
}

// SCurve plans half-cosine velocity blends. The configured acceleration
// is the peak acceleration of each blend.
type SCurve struct{}

func (SCurve) Name() string { return "s-curve" }

func (SCurve) Plan(dist, v0 float64, lim Limits) (*Profile, error) {
	return plan(Cosine, dist, v0, effective(lim))
}

func (SCurve) PlanDuration(dist float64, lim Limits, T float64) (*Profile, error) {
	return planDuration(Cosine, dist, effective(lim), T)
}

func effective(lim Limits) Limits {
	return Limits{Vel: lim.Vel, Acc: lim.Acc * 2 / math.Pi, Dec: lim.Dec * 2 / math.Pi}
}

// ForType maps a PROF_TYPE parameter value to a strategy
func ForType(t int32) Strategy {
	if t == 1 {
		return SCurve{}
	}
	return Trapezoid{}
}

// StopDistance returns the distance needed to stop from v at dec
func StopDistance(v, dec float64) float64 {
	if dec <= 0 {
		return math.Inf(1)
	}
	return v * v / (2 * dec)
}

func plan(shape Shape, dist, v0 float64, lim Limits) (*Profile, error) {
	if !lim.valid() {
		return nil, ErrLimits
	}
	s := 1.0
	if dist < 0 {
		s = -1
	}
	d := math.Abs(dist)
	u0 := v0 * s
	if d < eps && math.Abs(v0) < 1e-9 {
		return &Profile{}, nil
	}
	if u0 < -1e-9 || StopDistance(u0, lim.Dec) > d+1e-9 {
		return nil, ErrOvershoot
	}
	if u0 < 0 {
		u0 = 0
	}
	A, D, V := lim.Acc, lim.Dec, lim.Vel
	vp := V
	if u0 <= V {
		d1 := (V*V - u0*u0) / (2 * A)
		d3 := V * V / (2 * D)
		if d1+d3 > d {
			k := 1/(2*A) + 1/(2*D)
			vp = math.Sqrt((d + u0*u0/(2*A)) / k)
			if vp < u0 {
				vp = u0
			}
		}
	}
	a1 := A
	if vp < u0 {
		a1 = D
	}
	t1 := math.Abs(vp-u0) / a1
	t3 := vp / D
	dc := d - (u0+vp)/2*t1 - vp/2*t3
	tc := 0.0
	if dc > 0 && vp > 0 {
		tc = dc / vp
	}
	p := &Profile{}
	p.add(t1, s*u0, s*vp, shape)
	p.add(tc, s*vp, s*vp, shape)
	p.add(t3, s*vp, 0, shape)
	p.dist = dist
	return p, nil
}

func planDuration(shape Shape, dist float64, lim Limits, T float64) (*Profile, error) {
	fastest, err := plan(shape, dist, 0, lim)
	if err != nil {
		return nil, err
	}
	if T <= fastest.Duration()+eps {
		return fastest, nil
	}
	d := math.Abs(dist)
	p := &Profile{}
	if d < eps {
		p.add(T, 0, 0, shape)
		return p, nil
	}
	s := 1.0
	if dist < 0 {
		s = -1
	}
	A, D := lim.Acc, lim.Dec
	k := 1/(2*A) + 1/(2*D)
	disc := T*T - 4*k*d
	if disc < 0 {
		disc = 0
	}
	vc := (T - math.Sqrt(disc)) / (2 * k)
	ta, td := vc/A, vc/D
	p.add(ta, 0, s*vc, shape)
	p.add(T-ta-td, s*vc, s*vc, shape)
	p.add(td, s*vc, 0, shape)
	p.dist = dist
	return p, nil
}

// Ramp changes velocity from v0 to v1 at rate a. When hold is set the
// profile keeps v1 afterwards.
func Ramp(shape Shape, v0, v1, a float64, hold bool) *Profile {
	p := &Profile{hold: hold, vEnd: v1}
	if a <= 0 {
		return p
	}
	rate := a
	if shape == Cosine {
		rate = a * 2 / math.Pi
	}
	p.add(math.Abs(v1-v0)/rate, v0, v1, shape)
	p.vEnd = v1
	return p
}
