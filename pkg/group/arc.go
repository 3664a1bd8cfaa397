package group

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"nexmotion-go/pkg/errors"
)

// Direction is the CW_CCW argument of arc calls
type Direction int32

const (
	CW  Direction = 0
	CCW Direction = 1
)

func (d Direction) valid() bool { return d == CW || d == CCW }

func (d Direction) sign() float64 {
	if d == CW {
		return -1
	}
	return 1
}

// ArcSelector picks one of the two arcs of a given radius joining two
// points
type ArcSelector interface {
	// Major reports whether the arc longer than half a turn is meant
	Major(radius float64, dir Direction) bool
}

// PLCopenArcs takes the minor arc for a positive radius and the major
// arc for a negative one
type PLCopenArcs struct{}

func (PLCopenArcs) Major(radius float64, _ Direction) bool { return radius < 0 }

// MajorPositiveArcs is the inverse convention used by some controllers
type MajorPositiveArcs struct{}

func (MajorPositiveArcs) Major(radius float64, _ Direction) bool { return radius > 0 }

const geomEps = 1e-9

// arc is a circle segment with an optional linear lift along the normal
type arc struct {
	center r3.Vec
	radius float64
	u, v   r3.Vec // u points to the start, v along the travel direction
	sweep  float64
	lift   float64 // displacement along the normal at the end
	normal r3.Vec

	// requested end point, returned exactly at f == 1
	end   r3.Vec
	exact bool
}

func (c arc) point(f float64) r3.Vec {
	if f >= 1 && c.exact {
		return c.end
	}
	phi := f * c.sweep
	p := r3.Add(c.center, r3.Add(r3.Scale(c.radius*math.Cos(phi), c.u), r3.Scale(c.radius*math.Sin(phi), c.v)))
	return r3.Add(p, r3.Scale(f*c.lift, c.normal))
}

func (c arc) length() float64 {
	return math.Hypot(c.radius*c.sweep, c.lift)
}

func unit(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if n < geomEps {
		return v, false
	}
	return r3.Scale(1/n, v), true
}

// canonical orients a plane normal so that its last non-zero component
// of z, y, x is positive
func canonical(n r3.Vec) r3.Vec {
	switch {
	case math.Abs(n.Z) > geomEps:
		if n.Z < 0 {
			return r3.Scale(-1, n)
		}
	case math.Abs(n.Y) > geomEps:
		if n.Y < 0 {
			return r3.Scale(-1, n)
		}
	case n.X < 0:
		return r3.Scale(-1, n)
	}
	return n
}

// split separates p1 into its projection on the plane through p0 with
// normal n and the lift along n
func split(p0, p1, n r3.Vec) (r3.Vec, float64) {
	lift := r3.Dot(r3.Sub(p1, p0), n)
	return r3.Sub(p1, r3.Scale(lift, n)), lift
}

// angleTo returns the angle of p around the arc frame in (0, 2pi]
func (c *arc) angleTo(p r3.Vec) float64 {
	d := r3.Sub(p, c.center)
	phi := math.Atan2(r3.Dot(d, c.v), r3.Dot(d, c.u))
	if phi <= geomEps {
		phi += 2 * math.Pi
	}
	return phi
}

func newArc(center, p0, n r3.Vec, dir float64) (arc, error) {
	u, ok := unit(r3.Sub(p0, center))
	if !ok {
		return arc{}, errors.InvalidValue("arc start coincides with the center")
	}
	return arc{
		center: center,
		radius: r3.Norm(r3.Sub(p0, center)),
		u:      u,
		v:      r3.Scale(dir, r3.Cross(n, u)),
		normal: n,
	}, nil
}

// arcRadius builds the arc from p0 to p1 of the given radius about n
func arcRadius(p0, p1, n r3.Vec, radius float64, dir float64, major bool) (arc, error) {
	q1, lift := split(p0, p1, n)
	chord := r3.Sub(q1, p0)
	d := r3.Norm(chord)
	r := math.Abs(radius)
	if d < geomEps {
		return arc{}, errors.InvalidValue("arc end point equals start point")
	}
	if r < geomEps || d > 2*r*(1+1e-9) {
		return arc{}, errors.InvalidValue("radius %.6f too small for chord %.6f", r, d)
	}
	h := math.Sqrt(math.Max(0, r*r-d*d/4))
	w, _ := unit(r3.Cross(n, chord))
	side := dir
	if major {
		side = -side
	}
	center := r3.Add(r3.Scale(0.5, r3.Add(p0, q1)), r3.Scale(side*h, w))
	c, err := newArc(center, p0, n, dir)
	if err != nil {
		return c, err
	}
	c.radius = r
	c.sweep = c.angleTo(q1)
	c.lift = lift
	c.end, c.exact = p1, true
	return c, nil
}

// arcCenter builds the arc from p0 to p1 around center. Equal start and
// end points give a full circle.
func arcCenter(p0, p1, center, n r3.Vec, dir float64) (arc, error) {
	c, err := newArc(center, p0, n, dir)
	if err != nil {
		return c, err
	}
	q1, lift := split(p0, p1, n)
	r1 := r3.Norm(r3.Sub(q1, center))
	if math.Abs(r1-c.radius) > 1e-6*math.Max(1, c.radius) {
		return c, errors.InvalidValue("end point is %.6f from the center, start is %.6f", r1, c.radius)
	}
	if r3.Norm(r3.Sub(q1, p0)) < geomEps {
		c.sweep = 2 * math.Pi
	} else {
		c.sweep = c.angleTo(q1)
	}
	c.lift = lift
	c.end, c.exact = p1, true
	return c, nil
}

// circumcenter returns the center of the circle through a, b and c and
// the normal for which a, b, c run counter-clockwise
func circumcenter(a, b, c r3.Vec) (r3.Vec, r3.Vec, error) {
	ab, ac := r3.Sub(b, a), r3.Sub(c, a)
	n := r3.Cross(ab, ac)
	n2 := r3.Dot(n, n)
	if n2 < geomEps*geomEps {
		return r3.Vec{}, r3.Vec{}, errors.InvalidValue("arc points are collinear")
	}
	num := r3.Cross(r3.Sub(r3.Scale(r3.Dot(ab, ab), ac), r3.Scale(r3.Dot(ac, ac), ab)), n)
	center := r3.Add(a, r3.Scale(1/(2*n2), num))
	nu, _ := unit(n)
	return center, nu, nil
}

// arcBorder builds the arc from p0 through pb to p1. A positive sweep in
// degrees replaces the end angle and may exceed a full turn.
func arcBorder(p0, pb, p1 r3.Vec, sweepDeg float64) (arc, error) {
	center, n, err := circumcenter(p0, pb, p1)
	if err != nil {
		return arc{}, err
	}
	c, err := newArc(center, p0, n, 1)
	if err != nil {
		return c, err
	}
	if sweepDeg > 0 {
		c.sweep = sweepDeg * math.Pi / 180
	} else {
		c.sweep = c.angleTo(p1)
		c.end, c.exact = p1, true
	}
	return c, nil
}
