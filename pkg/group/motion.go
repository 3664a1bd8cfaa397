package group

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"nexmotion-go/pkg/axis"
	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/opt"
	"nexmotion-go/pkg/params"
	"nexmotion-go/pkg/profile"
	"nexmotion-go/pkg/status"
)

func (g *Group) strategy() profile.Strategy {
	return profile.ForType(g.params.I32(params.GpProfType))
}

func (g *Group) relative() bool { return g.params.I32(params.GpAbsRelMode) == 1 }

func (g *Group) buffered() bool { return g.params.I32(params.GpBuffMode) == params.BuffBuffered }

func shapeOf(s profile.Strategy) profile.Shape {
	if _, ok := s.(profile.SCurve); ok {
		return profile.Cosine
	}
	return profile.Linear
}

// pathLimits are the GP_* limits with an optional velocity override
func (g *Group) pathLimits(maxVel opt.Float) profile.Limits {
	lim := profile.Limits{
		Vel: g.params.F64(params.GpVM),
		Acc: g.params.F64(params.GpAcc),
		Dec: g.params.F64(params.GpDec),
	}
	if v, ok := maxVel.Get(); ok && v > 0 {
		lim.Vel = v
	}
	return lim
}

// memberLimits prefers GAXP_* and falls back to the axis AXP_* values
func (g *Group) memberLimits(m int) profile.Limits {
	ap := g.members[m].Params()
	pick := func(gaxp, axp int32) float64 {
		if v := g.gaxp[m].F64(gaxp); v > 0 {
			return v
		}
		return ap.F64(axp)
	}
	return profile.Limits{
		Vel: pick(params.GaxpVM, params.AxpVM),
		Acc: pick(params.GaxpAcc, params.AxpAcc),
		Dec: pick(params.GaxpDec, params.AxpDec),
	}
}

func (g *Group) checkMotion(op string) error {
	switch g.State() {
	case status.GroupStandStill, status.GroupMoving:
		return nil
	}
	return g.denied(op)
}

func (g *Group) checkMembers(mask status.AxisMask) error {
	if mask == 0 || !mask.Within(len(g.members)) {
		return errors.InvalidValue("group %d: axis mask %#x for %d members", g.index, uint32(mask), len(g.members))
	}
	return nil
}

func (g *Group) checkCart(mask status.AxisMask) error {
	if mask == 0 || mask&^g.kin.CartMask() != 0 {
		return errors.InvalidValue("group %d: cartesian mask %#x, %s supports %#x",
			g.index, uint32(mask), g.kin.GetType(), uint32(g.kin.CartMask()))
	}
	return nil
}

func checkFinite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.InvalidValue("non-finite value %v", v)
		}
	}
	return nil
}

func (g *Group) jogging() bool {
	for _, s := range g.segs {
		if !s.finished() && math.IsInf(s.plan.dur, 1) {
			return true
		}
	}
	return false
}

func (g *Group) pending() bool {
	for _, s := range g.segs {
		if !s.finished() {
			return true
		}
	}
	return false
}

// origin returns the buffer policy of the next segment and the joint
// positions it starts from
func (g *Group) origin() (bool, []float64) {
	abort := !g.buffered() || g.jogging()
	if abort || !g.pending() || g.end == nil {
		return abort, g.commandJoints()
	}
	return abort, append([]float64(nil), g.end...)
}

// submit plans a segment and queues it on every participant. Nothing is
// changed when planning or admission fails.
func (g *Group) submit(kind string, parts []int, abort bool, start []float64, b builder) error {
	p, err := b(start)
	if err != nil {
		return err
	}
	for _, m := range parts {
		if err := g.members[m].CanAcceptSegment(abort); err != nil {
			return err
		}
	}
	if abort {
		dec := g.params.F64(params.GpDec)
		for _, s := range g.segs {
			if s.started {
				s.halt(dec, axis.Halted)
			} else {
				s.end(axis.Aborted)
			}
		}
	}
	s := newSegment(kind, g, parts, b, p)
	for _, m := range parts {
		if err := g.members[m].EnqueueSegment(s, abort); err != nil {
			return err
		}
	}
	g.segs = append(g.segs, s)
	g.end = append(g.end[:0], p.end...)
	g.logger.Debug("%s segment queued on %v, %.3fs", kind, parts, p.dur)
	return nil
}

func allMembers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// PtpAcs moves one member point to point
func (g *Group) PtpAcs(member int, pos float64, maxVel opt.Float) error {
	if member < 0 || member >= len(g.members) {
		return errors.InvalidValue("group %d: member %d out of range", g.index, member)
	}
	var target coord.Pos
	target[member] = pos
	return g.ptpAcs(status.MaskOf(member), target, maxVel)
}

// PtpAcsAll moves the masked members so that they arrive together
func (g *Group) PtpAcsAll(mask status.AxisMask, pos coord.Pos) error {
	return g.ptpAcs(mask, pos, opt.None[float64]())
}

func (g *Group) ptpAcs(mask status.AxisMask, pos coord.Pos, maxVel opt.Float) error {
	if err := g.checkMotion("ptp"); err != nil {
		return err
	}
	if err := g.checkMembers(mask); err != nil {
		return err
	}
	if err := checkFinite(pos[:]...); err != nil {
		return err
	}
	abort, start := g.origin()
	parts := mask.Indexes()
	targets := make(map[int]float64, len(parts))
	lims := make(map[int]profile.Limits, len(parts))
	for _, m := range parts {
		targets[m] = pos[m]
		if g.relative() {
			targets[m] += start[m]
		}
		lims[m] = g.memberLimits(m)
		if v, ok := maxVel.Get(); ok && v > 0 {
			lims[m] = profile.Limits{Vel: v, Acc: lims[m].Acc, Dec: lims[m].Dec}
		}
	}
	strat := g.strategy()
	return g.submit("ptp", parts, abort, start, func(q []float64) (plan, error) {
		return jointPlan(q, targets, lims, strat)
	})
}

// PtpCart moves one cartesian component in PCS point to point in joint
// space
func (g *Group) PtpCart(cartAxis int, value float64) error {
	if cartAxis < 0 || cartAxis >= coord.PosSize {
		return errors.InvalidValue("cartesian axis %d", cartAxis)
	}
	var pos coord.Pos
	pos[cartAxis] = value
	return g.PtpCartAll(status.MaskOf(cartAxis), pos)
}

// PtpCartAll solves the masked PCS target and runs a synchronized ACS
// point to point move to it
func (g *Group) PtpCartAll(mask status.AxisMask, pos coord.Pos) error {
	if err := g.checkMotion("ptp"); err != nil {
		return err
	}
	if err := g.checkCart(mask); err != nil {
		return err
	}
	if err := checkFinite(pos[:]...); err != nil {
		return err
	}
	abort, start := g.origin()
	sv := g.solver()
	target, err := g.cartTarget(sv, start, mask, pos)
	if err != nil {
		return err
	}
	parts := allMembers(len(g.members))
	lims := make(map[int]profile.Limits, len(parts))
	for _, m := range parts {
		lims[m] = g.memberLimits(m)
	}
	strat := g.strategy()
	return g.submit("ptp_cart", parts, abort, start, func(q []float64) (plan, error) {
		joints, err := sv.joints(target, q)
		if err != nil {
			return plan{}, err
		}
		targets := make(map[int]float64, len(parts))
		for _, m := range parts {
			targets[m] = joints[m]
		}
		return jointPlan(q, targets, lims, strat)
	})
}

// cartTarget merges the masked components into the PCS pose at start
func (g *Group) cartTarget(sv solver, start []float64, mask status.AxisMask, pos coord.Pos) (coord.Pos, error) {
	from, err := sv.pcs(start)
	if err != nil {
		return from, err
	}
	target := from
	for _, i := range mask.Indexes() {
		target[i] = pos[i]
		if g.relative() {
			target[i] += from[i]
		}
	}
	return target, nil
}

// pathMove queues a cartesian path built from the PCS pose at its start
func (g *Group) pathMove(kind string, maxVel opt.Float, abort bool, start []float64, shape func(from coord.Pos) (geometry, float64, error)) error {
	sv := g.solver()
	lim := g.pathLimits(maxVel)
	strat := g.strategy()
	return g.submit(kind, allMembers(len(g.members)), abort, start, func(q []float64) (plan, error) {
		from, err := sv.pcs(q)
		if err != nil {
			return plan{}, err
		}
		geom, length, err := shape(from)
		if err != nil {
			return plan{}, err
		}
		return cartPlan(sv, q, length, geom, lim, strat)
	})
}

// LineXY runs a straight line in the XY plane of the PCS
func (g *Group) LineXY(x, y opt.Float, maxVel opt.Float) error {
	var mask status.AxisMask
	var pos coord.Pos
	if v, ok := x.Get(); ok {
		mask |= status.MaskX
		pos[0] = v
	}
	if v, ok := y.Get(); ok {
		mask |= status.MaskY
		pos[1] = v
	}
	return g.Line(mask, pos, maxVel)
}

// Line runs a straight line in the PCS to the masked target
func (g *Group) Line(mask status.AxisMask, pos coord.Pos, maxVel opt.Float) error {
	if err := g.checkMotion("line"); err != nil {
		return err
	}
	if err := g.checkCart(mask); err != nil {
		return err
	}
	if err := checkFinite(pos[:]...); err != nil {
		return err
	}
	abort, start := g.origin()
	target, err := g.cartTarget(g.solver(), start, mask, pos)
	if err != nil {
		return err
	}
	return g.pathMove("line", maxVel, abort, start, func(from coord.Pos) (geometry, float64, error) {
		geom, length := lineGeometry(from, target)
		return geom, length, nil
	})
}

// planeTarget fills the optional X and Y of a 2-D arc
func (g *Group) planeTarget(ex, ey opt.Float) (status.AxisMask, coord.Pos, error) {
	var mask status.AxisMask
	var pos coord.Pos
	if v, ok := ex.Get(); ok {
		mask |= status.MaskX
		pos[0] = v
	}
	if v, ok := ey.Get(); ok {
		mask |= status.MaskY
		pos[1] = v
	}
	if err := checkFinite(pos[:]...); err != nil {
		return 0, pos, err
	}
	if err := g.checkCart(status.MaskX | status.MaskY); err != nil {
		return 0, pos, err
	}
	return mask, pos, nil
}

var planeZ = r3.Vec{Z: 1}

// arcMove resolves the end pose and queues an arc whose geometry is
// rebuilt from the PCS pose at its start
func (g *Group) arcMove(kind string, mask status.AxisMask, pos coord.Pos, maxVel opt.Float, build func(from, to coord.Pos) (arc, error)) error {
	if err := g.checkMotion(kind); err != nil {
		return err
	}
	abort, start := g.origin()
	sv := g.solver()
	target := coord.Pos{}
	if mask != 0 {
		var err error
		if target, err = g.cartTarget(sv, start, mask, pos); err != nil {
			return err
		}
	} else {
		from, err := sv.pcs(start)
		if err != nil {
			return err
		}
		target = from
	}
	return g.pathMove(kind, maxVel, abort, start, func(from coord.Pos) (geometry, float64, error) {
		c, err := build(from, target)
		if err != nil {
			return nil, 0, err
		}
		geom, length := arcGeometry(c, from, target)
		return geom, length, nil
	})
}

// Circ2R runs an XY arc of the given radius. The sign of the radius and
// the ArcSelector pick the minor or the major arc.
func (g *Group) Circ2R(ex, ey opt.Float, radius float64, dir Direction, maxVel opt.Float) error {
	if !dir.valid() {
		return errors.InvalidValue("arc direction %d", dir)
	}
	if err := checkFinite(radius); err != nil {
		return err
	}
	mask, pos, err := g.planeTarget(ex, ey)
	if err != nil {
		return err
	}
	major := g.arcs.Major(radius, dir)
	return g.arcMove("circ", mask, pos, maxVel, func(from, to coord.Pos) (arc, error) {
		return arcRadius(xyz(from), xyz(to), planeZ, radius, dir.sign(), major)
	})
}

// Circ2C runs an XY arc around a center given as offset from the start.
// An end point equal to the start point runs a full circle.
func (g *Group) Circ2C(ex, ey, cxOfs, cyOfs opt.Float, dir Direction, maxVel opt.Float) error {
	if !dir.valid() {
		return errors.InvalidValue("arc direction %d", dir)
	}
	mask, pos, err := g.planeTarget(ex, ey)
	if err != nil {
		return err
	}
	ofs := r3.Vec{X: cxOfs.Or(0), Y: cyOfs.Or(0)}
	if err := checkFinite(ofs.X, ofs.Y); err != nil {
		return err
	}
	return g.arcMove("circ", mask, pos, maxVel, func(from, to coord.Pos) (arc, error) {
		return arcCenter(xyz(from), xyz(to), r3.Add(xyz(from), ofs), planeZ, dir.sign())
	})
}

// Circ2B runs an XY arc through a border point
func (g *Group) Circ2B(ex, ey, bx, by opt.Float, maxVel opt.Float) error {
	return g.Circ2BEx(ex, ey, bx, by, opt.None[float64](), maxVel)
}

// Circ2BEx runs an XY arc through a border point. A set angle in degrees
// replaces the end angle; the end point then only shapes the circle.
func (g *Group) Circ2BEx(ex, ey, bx, by, angle opt.Float, maxVel opt.Float) error {
	mask, pos, err := g.planeTarget(ex, ey)
	if err != nil {
		return err
	}
	sweep, err := sweepOf(angle)
	if err != nil {
		return err
	}
	rel := g.relative()
	return g.arcMove("circ", mask, pos, maxVel, func(from, to coord.Pos) (arc, error) {
		pb := xyz(from)
		if v, ok := bx.Get(); ok {
			pb.X = v
			if rel {
				pb.X += from[0]
			}
		}
		if v, ok := by.Get(); ok {
			pb.Y = v
			if rel {
				pb.Y += from[1]
			}
		}
		return arcBorder(xyz(from), pb, xyz(to), sweep)
	})
}

func sweepOf(angle opt.Float) (float64, error) {
	v, ok := angle.Get()
	if !ok {
		return 0, nil
	}
	if math.IsNaN(v) || v <= 0 || math.IsInf(v, 0) {
		return 0, errors.InvalidValue("arc angle %v", v)
	}
	return v, nil
}

// CircR runs a 3-D arc of the given radius counter-clockwise about
// normal. dir only takes part in the arc selection.
func (g *Group) CircR(mask status.AxisMask, pos coord.Pos, normal coord.Xyz, radius float64, dir Direction, maxVel opt.Float) error {
	if !dir.valid() {
		return errors.InvalidValue("arc direction %d", dir)
	}
	if err := g.checkCart(mask); err != nil {
		return err
	}
	if err := checkFinite(append(pos[:], radius, normal[0], normal[1], normal[2])...); err != nil {
		return err
	}
	n, ok := unit(normal.Vec())
	if !ok {
		return errors.InvalidValue("arc normal is zero")
	}
	major := g.arcs.Major(radius, dir)
	return g.arcMove("circ", mask, pos, maxVel, func(from, to coord.Pos) (arc, error) {
		return arcRadius(xyz(from), xyz(to), n, radius, 1, major)
	})
}

// CircC runs a 3-D arc around a center given as offset from the start.
// The plane normal is oriented so that its last non-zero component of Z,
// Y, X is positive and dir turns about it.
func (g *Group) CircC(mask status.AxisMask, pos coord.Pos, cenMask status.AxisMask, cenOfs coord.Xyz, dir Direction, maxVel opt.Float) error {
	if !dir.valid() {
		return errors.InvalidValue("arc direction %d", dir)
	}
	if err := g.checkCart(mask); err != nil {
		return err
	}
	if !cenMask.Within(coord.XyzSize) {
		return errors.InvalidValue("center mask %#x", uint32(cenMask))
	}
	if err := checkFinite(append(pos[:], cenOfs[:]...)...); err != nil {
		return err
	}
	var ofs r3.Vec
	for _, i := range cenMask.Indexes() {
		switch i {
		case 0:
			ofs.X = cenOfs[0]
		case 1:
			ofs.Y = cenOfs[1]
		case 2:
			ofs.Z = cenOfs[2]
		}
	}
	return g.arcMove("circ", mask, pos, maxVel, func(from, to coord.Pos) (arc, error) {
		p0, p1 := xyz(from), xyz(to)
		center := r3.Add(p0, ofs)
		n, ok := unit(r3.Cross(r3.Sub(p0, center), r3.Sub(p1, center)))
		if !ok {
			return arc{}, errors.InvalidValue("start, end and center do not span a plane")
		}
		return arcCenter(p0, p1, center, canonical(n), dir.sign())
	})
}

// CircB runs a 3-D arc through a border point
func (g *Group) CircB(mask status.AxisMask, pos coord.Pos, borMask status.AxisMask, border coord.Xyz, maxVel opt.Float) error {
	return g.CircBEx(mask, pos, borMask, border, opt.None[float64](), maxVel)
}

// CircBEx runs a 3-D arc through a border point with an optional sweep
// angle in degrees
func (g *Group) CircBEx(mask status.AxisMask, pos coord.Pos, borMask status.AxisMask, border coord.Xyz, angle opt.Float, maxVel opt.Float) error {
	if err := g.checkCart(mask); err != nil {
		return err
	}
	if !borMask.Within(coord.XyzSize) {
		return errors.InvalidValue("border mask %#x", uint32(borMask))
	}
	if err := checkFinite(append(pos[:], border[:]...)...); err != nil {
		return err
	}
	sweep, err := sweepOf(angle)
	if err != nil {
		return err
	}
	rel := g.relative()
	return g.arcMove("circ", mask, pos, maxVel, func(from, to coord.Pos) (arc, error) {
		pb := from
		for _, i := range borMask.Indexes() {
			pb[i] = border[i]
			if rel {
				pb[i] += from[i]
			}
		}
		return arcBorder(xyz(from), xyz(pb), xyz(to), sweep)
	})
}

func jogDir(dir int) error {
	if dir != 1 && dir != -1 {
		return errors.InvalidValue("jog direction %d", dir)
	}
	return nil
}

// JogAcs runs one member at constant velocity until halted
func (g *Group) JogAcs(member, dir int, maxVel opt.Float) error {
	if err := g.checkMotion("jog"); err != nil {
		return err
	}
	if member < 0 || member >= len(g.members) {
		return errors.InvalidValue("group %d: member %d out of range", g.index, member)
	}
	if err := jogDir(dir); err != nil {
		return err
	}
	lim := g.memberLimits(member)
	if v, ok := maxVel.Get(); ok && v > 0 {
		lim.Vel = v
	}
	_, start := g.origin()
	shape := shapeOf(g.strategy())
	v := float64(dir) * lim.Vel
	return g.submit("jog", []int{member}, true, start, func(q []float64) (plan, error) {
		return jogPlan(q, member, v, lim.Acc, shape), nil
	})
}

// JogTcpFrame moves the TCP along or around an axis of the tool frame
func (g *Group) JogTcpFrame(cartAxis, dir int, maxVel opt.Float) error {
	return g.frameJog(frameJog{cartAxis: cartAxis, tool: true}, dir, maxVel)
}

// JogPcsFrame moves the TCP along or around an axis of the PCS
func (g *Group) JogPcsFrame(cartAxis, dir int, maxVel opt.Float) error {
	return g.frameJog(frameJog{cartAxis: cartAxis}, dir, maxVel)
}

func (g *Group) frameJog(jog frameJog, dir int, maxVel opt.Float) error {
	if err := g.checkMotion("jog"); err != nil {
		return err
	}
	if jog.cartAxis < 0 || jog.cartAxis >= coord.PosSize || !g.kin.CartMask().Has(jog.cartAxis) {
		return errors.InvalidValue("group %d: cartesian axis %d", g.index, jog.cartAxis)
	}
	if err := jogDir(dir); err != nil {
		return err
	}
	lim := g.pathLimits(maxVel)
	_, start := g.origin()
	sv := g.solver()
	shape := shapeOf(g.strategy())
	v := float64(dir) * lim.Vel
	return g.submit("jog", allMembers(len(g.members)), true, start, func(q []float64) (plan, error) {
		from, err := sv.pcs(q)
		if err != nil {
			return plan{}, err
		}
		return framePlan(sv, q, from, jog, v, lim.Acc, shape)
	})
}

// SetHomePos sets the home position of the masked members
func (g *Group) SetHomePos(mask status.AxisMask, pos coord.Pos) error {
	if err := g.checkMembers(mask); err != nil {
		return err
	}
	if err := checkFinite(pos[:]...); err != nil {
		return err
	}
	for _, m := range mask.Indexes() {
		if err := g.members[m].SetHomePos(pos[m]); err != nil {
			return err
		}
	}
	return nil
}

// AxesHomeDrive homes the masked members
func (g *Group) AxesHomeDrive(mask status.AxisMask) error {
	if err := g.checkMembers(mask); err != nil {
		return err
	}
	if g.State() != status.GroupStandStill {
		return g.denied("home")
	}
	for _, m := range mask.Indexes() {
		if err := g.members[m].HomeDrive(); err != nil {
			return err
		}
	}
	return nil
}
