package group

import (
	"math"

	"nexmotion-go/pkg/axis"
)

// segment is one group motion shared by its participants. The group
// advances it after the members have ticked, so members read the sample
// of the previous cycle.
type segment struct {
	kind  string
	parts []int       // member indexes taking part
	slot  map[int]int // device axis index -> member index
	build builder
	plan  plan

	started bool
	t       float64

	// time-warp for halts: the path clock slows from rate 1 to 0
	rate     float64
	warp     float64
	stopWith axis.Outcome

	out axis.Outcome
	pos []float64 // all members
	vel []float64
}

func newSegment(kind string, g *Group, parts []int, b builder, p plan) *segment {
	s := &segment{
		kind:  kind,
		parts: parts,
		slot:  make(map[int]int, len(parts)),
		build: b,
		plan:  p,
		rate:  1,
		out:   axis.Running,
		pos:   append([]float64(nil), p.start...),
		vel:   make([]float64, len(p.start)),
	}
	for _, m := range parts {
		s.slot[g.members[m].Index()] = m
	}
	return s
}

func (s *segment) Joint(axisIndex int) (float64, float64) {
	m, ok := s.slot[axisIndex]
	if !ok {
		return 0, 0
	}
	return s.pos[m], s.vel[m]
}

func (s *segment) Outcome() axis.Outcome { return s.out }

func (s *segment) finished() bool { return s.out != axis.Running }

// halt slows the path clock to zero with dec measured at the peak path
// velocity. A segment that has not started ends at once.
func (s *segment) halt(dec float64, outcome axis.Outcome) {
	if s.finished() {
		return
	}
	if !s.started || s.plan.vPeak <= 0 || dec <= 0 {
		s.end(outcome)
		return
	}
	s.warp = math.Max(s.warp, dec/s.plan.vPeak)
	if s.stopWith != axis.Stopped {
		s.stopWith = outcome
	}
}

func (s *segment) end(outcome axis.Outcome) {
	s.out = outcome
	for i := range s.vel {
		s.vel[i] = 0
	}
}

// advance moves the path clock by dt scaled with the group speed ratio
func (s *segment) advance(dt, ratio float64) error {
	if s.warp > 0 {
		s.rate -= s.warp * dt
		if s.rate <= 0 {
			s.end(s.stopWith)
			return nil
		}
	}
	s.t += dt * ratio * s.rate
	done := s.t >= s.plan.dur
	if done {
		s.t = s.plan.dur
	}
	q, err := s.plan.sample(s.t, s.pos)
	if err != nil {
		return err
	}
	for _, m := range s.parts {
		if dt > 0 {
			s.vel[m] = (q[m] - s.pos[m]) / dt
		}
		s.pos[m] = q[m]
	}
	if done {
		s.end(axis.Completed)
	}
	return nil
}
