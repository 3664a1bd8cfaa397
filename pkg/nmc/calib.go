package nmc

import (
	"nexmotion-go/pkg/calib"
	"nexmotion-go/pkg/coord"
)

// ToolCalib4p finds a tool offset from four poses touching one point.
// tol is the largest TCP deviation between the poses.
func (l *Library) ToolCalib4p(p1, p2, p3, p4 coord.Pos) (tr coord.CoordTrans, tol float64, err error) {
	defer l.traced("ToolCalib_4p", l.tracer.Begin(), &err)
	return calib.Tool4p(p1, p2, p3, p4)
}

// ToolCalib4pWithZ also aligns the tool z axis with the p4 approach
func (l *Library) ToolCalib4pWithZ(p1, p2, p3, p4ZDir coord.Pos) (tr coord.CoordTrans, tol float64, err error) {
	defer l.traced("ToolCalib_4pWithZ", l.tracer.Begin(), &err)
	return calib.Tool4pWithZ(p1, p2, p3, p4ZDir)
}

// ToolCalib4pWithOri teaches offset and orientation
func (l *Library) ToolCalib4pWithOri(p1, p2, p3, p4, minusZ, yzPlane coord.Pos) (tr coord.CoordTrans, tol float64, err error) {
	defer l.traced("ToolCalib_4pWithOri", l.tracer.Begin(), &err)
	return calib.Tool4pWithOri(p1, p2, p3, p4, minusZ, yzPlane)
}

func (l *Library) ToolCalibOri(org, minusZ, yz coord.Pos) (tr coord.CoordTrans, err error) {
	defer l.traced("ToolCalib_Ori", l.tracer.Begin(), &err)
	return calib.ToolOri(org, minusZ, yz)
}

func (l *Library) BaseCalib1p(p1 coord.Pos) (tr coord.CoordTrans, err error) {
	defer l.traced("BaseCalib_1p", l.tracer.Begin(), &err)
	return calib.Base1p(p1)
}

func (l *Library) BaseCalib2p(p1, p2 coord.Pos) (tr coord.CoordTrans, err error) {
	defer l.traced("BaseCalib_2p", l.tracer.Begin(), &err)
	return calib.Base2p(p1, p2)
}

func (l *Library) BaseCalib3p(p1, p2, p3 coord.Pos) (tr coord.CoordTrans, err error) {
	defer l.traced("BaseCalib_3p", l.tracer.Begin(), &err)
	return calib.Base3p(p1, p2, p3)
}
