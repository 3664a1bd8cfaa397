package axis

import (
	"nexmotion-go/pkg/profile"
)

// Kind identifies a motion command
type Kind int

const (
	KindPtp Kind = iota
	KindJog
	KindHome
	KindHalt
	KindStop
	KindGroup
	// KindBrake decelerates before a chained command without changing state
	KindBrake
)

var kindNames = [...]string{"ptp", "jog", "home", "halt", "stop", "group", "brake"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Outcome tells a member axis how a group segment ended
type Outcome int

const (
	Running Outcome = iota
	Completed
	Halted
	Stopped
	Aborted
)

// Segment is a group motion shared by several member axes. The group
// engine advances it; each member reads its own joint from it.
type Segment interface {
	// Joint returns the command position and velocity of the axis with
	// the given device index at the current segment time.
	Joint(axis int) (pos, vel float64)
	// Outcome is Running until the segment ends.
	Outcome() Outcome
}

// command is a queued request. Profiles are planned when it starts so
// that buffered commands begin from the state their predecessor left.
type command struct {
	kind     Kind
	target   float64
	dir      float64
	lim      profile.Limits
	strategy profile.Strategy
	seg      Segment
}

// motion is the active command with its planned trajectory
type motion struct {
	command
	start float64
	traj  profile.Trajectory
	t     float64

	// next starts right after a brake
	next *command

	// jog stopping at a software limit
	limited bool

	// group segment past its barrier
	released bool
}

func shapeOf(s profile.Strategy) profile.Shape {
	if _, ok := s.(profile.SCurve); ok {
		return profile.Cosine
	}
	return profile.Linear
}
