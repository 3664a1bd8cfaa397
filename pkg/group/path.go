package group

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/kinematics"
	"nexmotion-go/pkg/profile"
)

// plan is a segment evaluated over its own time axis. sample returns the
// joint positions of the participants; seed is the previous sample.
type plan struct {
	dur    float64
	vPeak  float64
	start  []float64
	end    []float64
	sample func(t float64, seed []float64) ([]float64, error)
}

// builder plans a segment from the joint positions of all members
type builder func(start []float64) (plan, error)

// validation samples per finite path
const checkSamples = 64

func (p plan) validate() error {
	if math.IsInf(p.dur, 1) || p.dur <= 0 {
		_, err := p.sample(0, p.start)
		return err
	}
	seed := p.start
	for i := 0; i <= checkSamples; i++ {
		q, err := p.sample(p.dur*float64(i)/checkSamples, seed)
		if err != nil {
			return err
		}
		seed = q
	}
	return nil
}

// jointPlan runs every masked member on its own profile, stretched to the
// duration of the slowest one
func jointPlan(start []float64, targets map[int]float64, lims map[int]profile.Limits, strat profile.Strategy) (plan, error) {
	T := 0.0
	for i, target := range targets {
		d, err := profile.MinTime(strat, target-start[i], lims[i])
		if err != nil {
			return plan{}, errors.InvalidValue("member %d: %v", i, err)
		}
		T = math.Max(T, d)
	}
	profs := make(map[int]*profile.Profile, len(targets))
	peak := 0.0
	for i, target := range targets {
		p, err := strat.PlanDuration(target-start[i], lims[i], T)
		if err != nil {
			return plan{}, errors.InvalidValue("member %d: %v", i, err)
		}
		profs[i] = p
		peak = math.Max(peak, lims[i].Vel)
	}
	s0 := append([]float64(nil), start...)
	end := append([]float64(nil), start...)
	for i, target := range targets {
		end[i] = target
	}
	return plan{
		dur:   T,
		vPeak: peak,
		start: s0,
		end:   end,
		sample: func(t float64, _ []float64) ([]float64, error) {
			q := append([]float64(nil), s0...)
			for i, p := range profs {
				if t >= T {
					q[i] = end[i]
					continue
				}
				q[i] = s0[i] + p.Sample(t).Pos
			}
			return q, nil
		},
	}, nil
}

// jogPlan ramps one member to a constant velocity until halted
func jogPlan(start []float64, member int, v, acc float64, shape profile.Shape) plan {
	ramp := profile.Ramp(shape, 0, v, acc, true)
	s0 := append([]float64(nil), start...)
	return plan{
		dur:   math.Inf(1),
		vPeak: math.Abs(v),
		start: s0,
		end:   s0,
		sample: func(t float64, _ []float64) ([]float64, error) {
			q := append([]float64(nil), s0...)
			q[member] += ramp.Sample(t).Pos
			return q, nil
		},
	}
}

// solver maps PCS poses to member joints
type solver struct {
	kin kinematics.Kinematics
	tr  coord.Transformer
}

func (s solver) joints(pcs coord.Pos, seed []float64) ([]float64, error) {
	flange := s.tr.PCSToFlange(pcs)
	return s.kin.Inverse(flange[:], seed)
}

func (s solver) pcs(joints []float64) (coord.Pos, error) {
	flange, err := s.kin.Forward(joints)
	if err != nil {
		return coord.Pos{}, err
	}
	return s.tr.FlangeToPCS(flange), nil
}

// geometry maps a path fraction in [0, 1] to a PCS pose
type geometry func(f float64) coord.Pos

// cartPlan moves along a geometry of the given length with a path profile
func cartPlan(sv solver, start []float64, length float64, geom geometry, lim profile.Limits, strat profile.Strategy) (plan, error) {
	prof, err := strat.Plan(length, 0, lim)
	if err != nil {
		return plan{}, errors.InvalidValue("path: %v", err)
	}
	end, err := sv.joints(geom(1), start)
	if err != nil {
		return plan{}, err
	}
	p := plan{
		dur:   prof.Duration(),
		vPeak: lim.Vel,
		start: append([]float64(nil), start...),
		end:   end,
	}
	p.sample = func(t float64, seed []float64) ([]float64, error) {
		if length < geomEps {
			return sv.joints(geom(1), seed)
		}
		f := prof.Sample(t).Pos / length
		if t >= p.dur {
			f = 1
		}
		return sv.joints(geom(f), seed)
	}
	return p, p.validate()
}

// lerp blends every component of two poses
func lerp(a, b coord.Pos, f float64) coord.Pos {
	var out coord.Pos
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*f
	}
	return out
}

// lineGeometry returns a straight line and its length. Without a
// translation the largest other component change is used as length.
func lineGeometry(from, to coord.Pos) (geometry, float64) {
	d := math.Sqrt(sq(to[0]-from[0]) + sq(to[1]-from[1]) + sq(to[2]-from[2]))
	if d < geomEps {
		for i := 3; i < coord.PosSize; i++ {
			d = math.Max(d, math.Abs(to[i]-from[i]))
		}
	}
	return func(f float64) coord.Pos { return lerp(from, to, f) }, d
}

// arcGeometry follows c for X, Y, Z and blends the other components
func arcGeometry(c arc, from, to coord.Pos) (geometry, float64) {
	return func(f float64) coord.Pos {
		out := lerp(from, to, f)
		p := c.point(f)
		out[0], out[1], out[2] = p.X, p.Y, p.Z
		return out
	}, c.length()
}

func sq(v float64) float64 { return v * v }

func xyz(p coord.Pos) r3.Vec { return r3.Vec{X: p[0], Y: p[1], Z: p[2]} }

// frameJog moves the TCP along or around one axis of the tool frame or
// the PCS
type frameJog struct {
	cartAxis int
	tool     bool
}

func (j frameJog) geometry(from coord.Pos) func(s float64) coord.Pos {
	p0 := coord.FrameOfCart(from[:])
	return func(s float64) coord.Pos {
		if j.cartAxis >= coord.PoseSize {
			out := from
			out[j.cartAxis] += s
			return out
		}
		var delta coord.CoordTrans
		delta[j.cartAxis] = s
		d := coord.FromPose(delta)
		var f coord.Frame
		switch {
		case j.tool:
			f = p0.Mul(d)
		case j.cartAxis < 3:
			f = d.Mul(p0)
		default:
			// rotate about the PCS axis through the TCP
			f = d.Mul(coord.Frame{R: p0.R})
			f.T = p0.T
		}
		return coord.CartOfFrame(f, from[:])
	}
}

func framePlan(sv solver, start []float64, from coord.Pos, jog frameJog, v, acc float64, shape profile.Shape) (plan, error) {
	ramp := profile.Ramp(shape, 0, v, acc, true)
	geom := jog.geometry(from)
	p := plan{
		dur:   math.Inf(1),
		vPeak: math.Abs(v),
		start: append([]float64(nil), start...),
		end:   append([]float64(nil), start...),
		sample: func(t float64, seed []float64) ([]float64, error) {
			return sv.joints(geom(ramp.Sample(t).Pos), seed)
		},
	}
	return p, p.validate()
}
