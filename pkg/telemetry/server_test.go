package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"nexmotion-go/pkg/config"
	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/nmc"
	"nexmotion-go/pkg/status"
)

// simDevice starts a manually stepped simulator with the default axes
// and an empty message queue
func simDevice(t *testing.T) *nmc.Device {
	t.Helper()
	lib := nmc.NewLibrary(nmc.WithManualCycle())
	id, err := lib.DeviceCreate(nmc.DevSimulator, 0)
	require.NoError(t, err)
	d, err := lib.Device(id)
	require.NoError(t, err)
	require.NoError(t, d.Configure(config.DefaultLibConfig()))
	require.NoError(t, d.Start())
	drain(lib)
	return d
}

func drain(lib *nmc.Library) {
	for {
		if _, err := lib.MessagePopFirst(); err != nil {
			return
		}
	}
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
	ID     any             `json:"id"`
}

func post(t *testing.T, url, method string, params any) rpcReply {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": 7}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return postRaw(t, url, body)
}

func postRaw(t *testing.T, url string, body []byte) rpcReply {
	t.Helper()
	resp, err := http.Post(url+"/jsonrpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func requireOK(t *testing.T, reply rpcReply) {
	t.Helper()
	require.Nil(t, reply.Error, "%+v", reply.Error)
	require.JSONEq(t, `"ok"`, string(reply.Result))
}

func newTestServer(t *testing.T) (*Server, *nmc.Device, *httptest.Server) {
	t.Helper()
	d := simDevice(t)
	s := New(Config{Device: d})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, d, ts
}

func TestServerInfo(t *testing.T) {
	_, _, ts := newTestServer(t)

	reply := post(t, ts.URL, "server.info", nil)
	require.Nil(t, reply.Error)
	var info map[string]any
	require.NoError(t, json.Unmarshal(reply.Result, &info))
	require.Equal(t, nmc.GetLibVersionString(), info["version"])
	require.Equal(t, "operation", info["device_state"])
	require.EqualValues(t, 7, reply.ID)

	reply = post(t, ts.URL, "device.state", nil)
	var dev DeviceStatus
	require.NoError(t, json.Unmarshal(reply.Result, &dev))
	require.Equal(t, int32(status.DeviceOperation), dev.StateCode)
	require.Equal(t, 4, dev.AxisCount)
	require.Equal(t, 1, dev.GroupCount)
}

func TestAxisPtpOverHTTP(t *testing.T) {
	_, d, ts := newTestServer(t)

	requireOK(t, post(t, ts.URL, "axis.enable", map[string]any{"axis": 0}))
	requireOK(t, post(t, ts.URL, "axis.ptp", map[string]any{"axis": 0, "target": 10.0}))
	for n := 0; n < 5000; n++ {
		d.Step(1)
		if st, _ := d.AxisGetState(0); !st.Moving() {
			break
		}
	}

	reply := post(t, ts.URL, "axis.status", map[string]any{"axis": 0})
	var ax AxisStatus
	require.NoError(t, json.Unmarshal(reply.Result, &ax))
	require.Equal(t, "stand_still", ax.State)
	require.InDelta(t, 10, ax.ActPos, 1e-6)

	reply = post(t, ts.URL, "axis.status", nil)
	var all []AxisStatus
	require.NoError(t, json.Unmarshal(reply.Result, &all))
	require.Len(t, all, 4)
	require.Equal(t, int32(status.AxisDisable), all[3].StateCode)

	requireOK(t, post(t, ts.URL, "axis.jog", map[string]any{"axis": 0, "dir": 1}))
	d.Step(5)
	requireOK(t, post(t, ts.URL, "axis.halt", map[string]any{"axis": 0}))
	requireOK(t, post(t, ts.URL, "axis.stop", map[string]any{"axis": 0}))
	d.Step(1000)
	reply = post(t, ts.URL, "axis.ptp", map[string]any{"axis": 0, "target": 0.0})
	require.NotNil(t, reply.Error)
	require.Equal(t, int(errors.OperationDenied), reply.Error.Code)
	requireOK(t, post(t, ts.URL, "axis.reset", map[string]any{"axis": 0}))
	requireOK(t, post(t, ts.URL, "axis.disable", map[string]any{"axis": 0}))
}

func TestGroupMoveOverHTTP(t *testing.T) {
	_, d, ts := newTestServer(t)

	requireOK(t, post(t, ts.URL, "device.enable_all", nil))
	requireOK(t, post(t, ts.URL, "group.ptp_acs_all", map[string]any{
		"group": 0, "mask": []int{0, 2}, "pos": []float64{10, 50, 20},
	}))
	for n := 0; n < 5000; n++ {
		d.Step(1)
		if st, _ := d.GroupGetState(0); st == status.GroupStandStill {
			break
		}
	}

	reply := post(t, ts.URL, "group.status", map[string]any{"group": 0})
	var gs GroupStatus
	require.NoError(t, json.Unmarshal(reply.Result, &gs))
	require.Len(t, gs.ActACS, 3)
	require.InDelta(t, 10, gs.ActACS[0], 1e-6)
	require.InDelta(t, 0, gs.ActACS[1], 1e-9)
	require.InDelta(t, 20, gs.ActACS[2], 1e-6)

	requireOK(t, post(t, ts.URL, "group.line", map[string]any{
		"group": 0, "mask": []int{0, 1, 2}, "pos": []float64{0, 0, 0}, "max_vel": 50.0,
	}))
	d.Step(10)
	requireOK(t, post(t, ts.URL, "group.halt", map[string]any{"group": 0}))
	requireOK(t, post(t, ts.URL, "device.stop_all", nil))
	d.Step(1000)
	st, err := d.GroupGetState(0)
	require.NoError(t, err)
	require.NotEqual(t, status.GroupMoving, st)
}

func TestJSONRPCErrors(t *testing.T) {
	_, _, ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		code   int
		object string
	}{
		{"parse error", `{"jsonrpc":`, codeParseError, ""},
		{"no method", `{"jsonrpc":"2.0","id":1}`, codeInvalidRequest, ""},
		{"unknown method", `{"jsonrpc":"2.0","method":"axis.fly","id":1}`, codeMethodNotFound, ""},
		{"missing target", `{"jsonrpc":"2.0","method":"axis.ptp","params":{"axis":0},"id":1}`, codeInvalidParams, ""},
		{"unknown field", `{"jsonrpc":"2.0","method":"axis.enable","params":{"axs":0},"id":1}`, codeInvalidParams, ""},
		{"mask out of range", `{"jsonrpc":"2.0","method":"group.line","params":{"group":0,"mask":[99]},"id":1}`, codeInvalidParams, ""},
		{"bad axis", `{"jsonrpc":"2.0","method":"axis.status","params":{"axis":9},"id":1}`, int(errors.ObjectIdInvalid), "axis 9"},
		{"bad group", `{"jsonrpc":"2.0","method":"group.halt","params":{"group":3},"id":1}`, int(errors.ObjectIdInvalid), ""},
		{"empty queue", `{"jsonrpc":"2.0","method":"message.pop","id":1}`, int(errors.QueueEmpty), ""},
		{"subscribe over http", `{"jsonrpc":"2.0","method":"status.subscribe","id":1}`, int(errors.OperationDenied), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := postRaw(t, ts.URL, []byte(tt.body))
			require.NotNil(t, reply.Error)
			require.Equal(t, tt.code, reply.Error.Code, reply.Error.Message)
			if tt.object != "" {
				require.NotNil(t, reply.Error.Data)
				require.Equal(t, tt.object, reply.Error.Data.Object)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/jsonrpc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMessagePop(t *testing.T) {
	_, d, ts := newTestServer(t)
	require.NoError(t, d.AxisEnable(3))
	drain(d.Library())

	sim, err := d.SimDrive(3)
	require.NoError(t, err)
	sim.InjectAlarm(0x2220, true)
	d.Step(1)

	reply := post(t, ts.URL, "message.pop", nil)
	require.Nil(t, reply.Error)
	var ev MessageEvent
	require.NoError(t, json.Unmarshal(reply.Result, &ev))
	require.Equal(t, "error", ev.Type)
	require.Equal(t, "dev0.axis3", ev.Source)
	require.Equal(t, int32(3), ev.ID)
}

func TestCORSPreflight(t *testing.T) {
	_, _, ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/jsonrpc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestWebSocketSubscribe(t *testing.T) {
	s, d, ts := newTestServer(t)
	require.NoError(t, d.AxisEnable(1))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello struct {
		Method string `json:"method"`
		Params struct {
			Session string       `json:"session"`
			Device  DeviceStatus `json:"device"`
		} `json:"params"`
	}
	readJSON(t, conn, &hello)
	require.Equal(t, "notify_connected", hello.Method)
	require.NotEmpty(t, hello.Params.Session)
	require.Equal(t, "operation", hello.Params.Device.State)
	require.Equal(t, 1, s.ClientCount())

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "method": "status.subscribe", "id": 1,
		"params": map[string]any{"axes": []int{1}},
	}))
	var sub struct {
		Result struct {
			Status map[string]json.RawMessage `json:"status"`
		} `json:"result"`
	}
	readJSON(t, conn, &sub)
	require.NotContains(t, sub.Result.Status, "device")
	require.NotContains(t, sub.Result.Status, "group")
	var axes map[string]AxisStatus
	require.NoError(t, json.Unmarshal(sub.Result.Status["axis"], &axes))
	require.Len(t, axes, 1)
	require.Equal(t, "stand_still", axes["1"].State)

	s.broadcastStatusUpdates()
	var update struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	readJSON(t, conn, &update)
	require.Equal(t, "notify_status_update", update.Method)
	require.Len(t, update.Params, 2)

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	s.subMu.RLock()
	require.Empty(t, s.subscriptions)
	s.subMu.RUnlock()
}

func TestStartStop(t *testing.T) {
	d := simDevice(t)
	s := New(Config{Addr: "127.0.0.1:0", Device: d, Interval: 10 * time.Millisecond})
	errCh := s.StartAsync()
	require.Eventually(t, s.IsRunning, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/server/info")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, <-errCh)
	require.False(t, s.IsRunning())
}
