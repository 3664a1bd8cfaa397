package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"nexmotion-go/pkg/coord"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/nmc"
	"nexmotion-go/pkg/opt"
	"nexmotion-go/pkg/status"
)

// methodError is a JSON-RPC protocol error, as opposed to a controller
// return code
type methodError struct {
	code int
	msg  string
}

func (e *methodError) Error() string { return e.msg }

func invalidParams(format string, args ...any) error {
	return &methodError{code: codeInvalidParams, msg: fmt.Sprintf(format, args...)}
}

// rpcError maps controller errors onto their NexMotion return code
func rpcError(err error) *jsonRPCError {
	if me, ok := err.(*methodError); ok {
		return &jsonRPCError{Code: me.code, Message: me.msg}
	}
	if ce, ok := errors.As(err); ok {
		re := &jsonRPCError{Code: int(ce.Code), Message: err.Error()}
		if ce.Op != "" || ce.Object != "" {
			re.Data = &errorData{Op: ce.Op, Object: ce.Object}
		}
		return re
	}
	return &jsonRPCError{Code: codeServerError, Message: err.Error()}
}

func decode(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

type axisParams struct {
	Axis   *int     `json:"axis"`
	Target *float64 `json:"target"`
	Dir    int      `json:"dir"`
	MaxVel *float64 `json:"max_vel"`
}

func (p axisParams) index() (int, error) {
	if p.Axis == nil {
		return 0, invalidParams("missing axis")
	}
	return *p.Axis, nil
}

type groupParams struct {
	Group  *int      `json:"group"`
	Mask   []int     `json:"mask"`
	Pos    []float64 `json:"pos"`
	MaxVel *float64  `json:"max_vel"`
}

func (p groupParams) index() (int, error) {
	if p.Group == nil {
		return 0, invalidParams("missing group")
	}
	return *p.Group, nil
}

// target converts the member indexes and positions of a group move
func (p groupParams) target() (status.AxisMask, coord.Pos, error) {
	var pos coord.Pos
	if len(p.Pos) > len(pos) {
		return 0, pos, invalidParams("pos has %d values, at most %d allowed", len(p.Pos), len(pos))
	}
	for _, i := range p.Mask {
		if i < 0 || i >= len(pos) {
			return 0, pos, invalidParams("mask index %d out of range", i)
		}
	}
	copy(pos[:], p.Pos)
	return status.MaskOf(p.Mask...), pos, nil
}

func maxVel(v *float64) opt.Float {
	if v == nil {
		return opt.None[float64]()
	}
	return opt.F(*v)
}

// subscription selects the objects of notify_status_update. The zero
// value selects everything.
type subscription struct {
	Device bool  `json:"device"`
	Axes   []int `json:"axes"`
	Groups []int `json:"groups"`
}

func (sub subscription) all() bool {
	return !sub.Device && sub.Axes == nil && sub.Groups == nil
}

func (sub subscription) status(snap *nmc.Snapshot) map[string]any {
	out := make(map[string]any)
	if sub.all() || sub.Device {
		out["device"] = deviceStatus(snap)
	}
	if sub.all() || len(sub.Axes) > 0 {
		axes := make(map[string]AxisStatus)
		for _, a := range snap.Axes {
			if sub.all() || contains(sub.Axes, a.Index) {
				axes[fmt.Sprint(a.Index)] = axisStatus(a)
			}
		}
		out["axis"] = axes
	}
	if sub.all() || len(sub.Groups) > 0 {
		groups := make(map[string]GroupStatus)
		for _, g := range snap.Groups {
			if sub.all() || contains(sub.Groups, g.Index) {
				groups[fmt.Sprint(g.Index)] = groupStatus(g)
			}
		}
		out["group"] = groups
	}
	return out
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Server) dispatchMethod(method string, raw json.RawMessage, client *WSClient) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo()
	case "device.state":
		return deviceStatus(s.dev.Snapshot()), nil
	case "device.enable_all":
		return nil, s.dev.EnableAll()
	case "device.stop_all":
		return nil, s.dev.StopAll()
	case "axis.status":
		return s.methodAxisStatus(raw)
	case "axis.enable", "axis.disable", "axis.halt", "axis.stop", "axis.reset":
		return s.methodAxisCommand(method, raw)
	case "axis.ptp":
		return s.methodAxisPtp(raw)
	case "axis.jog":
		return s.methodAxisJog(raw)
	case "group.status":
		return s.methodGroupStatus(raw)
	case "group.enable", "group.halt", "group.stop":
		return s.methodGroupCommand(method, raw)
	case "group.ptp_acs_all", "group.line":
		return s.methodGroupMove(method, raw)
	case "message.pop":
		msg, err := s.lib.MessagePopFirst()
		if err != nil {
			return nil, err
		}
		return messageEvent(int32(s.dev.ID()), msg), nil
	case "status.subscribe":
		return s.methodSubscribe(raw, client)
	default:
		return nil, &methodError{code: codeMethodNotFound, msg: "method not found: " + method}
	}
}

func (s *Server) methodServerInfo() (any, error) {
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()

	return map[string]any{
		"version":         nmc.GetLibVersionString(),
		"device":          int32(s.dev.ID()),
		"device_type":     s.dev.Type().String(),
		"device_state":    s.dev.GetState().String(),
		"websocket_count": clients,
		"uptime":          time.Since(s.startTime).Seconds(),
	}, nil
}

func (s *Server) methodAxisStatus(raw json.RawMessage) (any, error) {
	var p axisParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	snap := s.dev.Snapshot()
	if p.Axis == nil {
		out := make([]AxisStatus, len(snap.Axes))
		for i, a := range snap.Axes {
			out[i] = axisStatus(a)
		}
		return out, nil
	}
	i := *p.Axis
	if i < 0 || i >= len(snap.Axes) {
		return nil, errors.InvalidObject("axis", i)
	}
	return axisStatus(snap.Axes[i]), nil
}

func (s *Server) methodAxisCommand(method string, raw json.RawMessage) (any, error) {
	var p axisParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	i, err := p.index()
	if err != nil {
		return nil, err
	}
	switch method {
	case "axis.enable":
		return nil, s.dev.AxisEnable(i)
	case "axis.disable":
		return nil, s.dev.AxisDisable(i)
	case "axis.halt":
		return nil, s.dev.AxisHalt(i)
	case "axis.stop":
		return nil, s.dev.AxisStop(i)
	default:
		return nil, s.dev.AxisResetState(i)
	}
}

func (s *Server) methodAxisPtp(raw json.RawMessage) (any, error) {
	var p axisParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	i, err := p.index()
	if err != nil {
		return nil, err
	}
	if p.Target == nil {
		return nil, invalidParams("missing target")
	}
	return nil, s.dev.AxisPtp(i, *p.Target, maxVel(p.MaxVel))
}

func (s *Server) methodAxisJog(raw json.RawMessage) (any, error) {
	var p axisParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	i, err := p.index()
	if err != nil {
		return nil, err
	}
	return nil, s.dev.AxisJog(i, p.Dir, maxVel(p.MaxVel))
}

func (s *Server) methodGroupStatus(raw json.RawMessage) (any, error) {
	var p groupParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	snap := s.dev.Snapshot()
	if p.Group == nil {
		out := make([]GroupStatus, len(snap.Groups))
		for i, g := range snap.Groups {
			out[i] = groupStatus(g)
		}
		return out, nil
	}
	g := *p.Group
	if g < 0 || g >= len(snap.Groups) {
		return nil, errors.InvalidObject("group", g)
	}
	return groupStatus(snap.Groups[g]), nil
}

func (s *Server) methodGroupCommand(method string, raw json.RawMessage) (any, error) {
	var p groupParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	g, err := p.index()
	if err != nil {
		return nil, err
	}
	switch method {
	case "group.enable":
		return nil, s.dev.GroupEnable(g)
	case "group.halt":
		return nil, s.dev.GroupHalt(g)
	default:
		return nil, s.dev.GroupStop(g)
	}
}

func (s *Server) methodGroupMove(method string, raw json.RawMessage) (any, error) {
	var p groupParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	g, err := p.index()
	if err != nil {
		return nil, err
	}
	mask, pos, err := p.target()
	if err != nil {
		return nil, err
	}
	if method == "group.line" {
		return nil, s.dev.GroupLine(g, mask, pos, maxVel(p.MaxVel))
	}
	return nil, s.dev.GroupPtpAcsAll(g, mask, pos)
}

// methodSubscribe replaces the session's subscription and answers with
// the current status
func (s *Server) methodSubscribe(raw json.RawMessage, client *WSClient) (any, error) {
	if client == nil {
		return nil, errors.Denied("status.subscribe needs a websocket session")
	}
	var sub subscription
	if err := decode(raw, &sub); err != nil {
		return nil, err
	}
	s.subMu.Lock()
	s.subscriptions[client.id] = sub
	s.subMu.Unlock()

	return map[string]any{
		"eventtime": s.eventTime(),
		"status":    sub.status(s.dev.Snapshot()),
	}, nil
}
