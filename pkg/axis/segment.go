package axis

import (
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/status"
)

// CanAcceptSegment checks whether a group segment may be queued
func (a *Axis) CanAcceptSegment(abort bool) error {
	switch a.state {
	case status.AxisStandStill, status.AxisDiscreteMotion, status.AxisContinuousMotion,
		status.AxisWaitSync, status.AxisGroupMotion:
	default:
		return a.denied("group motion")
	}
	if !abort && a.cur != nil && len(a.queue) >= a.depth {
		return errors.Busy("axis %d: motion buffer full", a.index)
	}
	return nil
}

// EnqueueSegment queues a group segment. With abort set, pending
// commands are dropped and a single-axis motion is braked first; an
// active group segment is left to the group to halt.
func (a *Axis) EnqueueSegment(seg Segment, abort bool) error {
	if err := a.CanAcceptSegment(abort); err != nil {
		return err
	}
	c := command{kind: KindGroup, seg: seg, lim: a.limits(), strategy: a.strategy()}
	if abort {
		a.queue = a.queue[:0]
	}
	switch {
	case a.cur == nil:
		a.start(c)
	case a.cur.kind == KindGroup:
		a.queue = append(a.queue, c)
	case abort || a.jogging():
		a.brakeInto(c)
	default:
		a.queue = append(a.queue, c)
	}
	return nil
}

// brakeInto decelerates the active motion with AXP_DEC and chains c
func (a *Axis) brakeInto(c command) {
	next := c
	a.cur = nil
	if a.pvel == 0 {
		a.start(next)
		return
	}
	a.start(command{kind: KindHalt, lim: a.limits(), strategy: a.strategy()})
	a.cur.kind = KindBrake
	a.cur.next = &next
	a.state = status.AxisWaitSync
}

// Parked returns the segment the axis waits on at the group barrier
func (a *Axis) Parked() Segment {
	if a.state == status.AxisWaitSync && a.cur != nil && a.cur.kind == KindGroup {
		return a.cur.seg
	}
	return nil
}

// Following returns the segment the axis currently belongs to, parked
// or running
func (a *Axis) Following() Segment {
	if a.cur == nil {
		return nil
	}
	if a.cur.kind == KindGroup {
		return a.cur.seg
	}
	if a.cur.kind == KindBrake && a.cur.next.kind == KindGroup {
		return a.cur.next.seg
	}
	return nil
}

// Release starts a parked segment
func (a *Axis) Release() {
	if a.Parked() != nil {
		a.cur.released = true
		a.state = status.AxisGroupMotion
		a.st = a.st.With(status.BitTAR, false)
	}
}

// MarkStopping shows a group halt or stop on the member and drops the
// commands queued behind the segment
func (a *Axis) MarkStopping(stop bool) {
	if a.cur == nil || a.cur.kind != KindGroup {
		return
	}
	a.queue = a.queue[:0]
	a.state = status.AxisStopping
	if stop {
		a.st = a.st.With(status.BitSTOP, true)
	}
}

// Holds reports whether seg is active or queued on the axis
func (a *Axis) Holds(seg Segment) bool {
	if a.Following() == seg {
		return true
	}
	for _, c := range a.queue {
		if c.kind == KindGroup && c.seg == seg {
			return true
		}
	}
	return false
}
