package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"nexmotion-go/pkg/message"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics map[string][]byte
	closed bool
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topics == nil {
		p.topics = make(map[string][]byte)
	}
	p.topics[topic] = append([]byte(nil), payload...)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) get(topic string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.topics[topic]
	return b, ok
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, m := range w.msgs {
		out = append(out, string(m.Key))
	}
	return out
}

func TestPublishSnapshot(t *testing.T) {
	d := simDevice(t)
	require.NoError(t, d.AxisEnable(2))
	pub := &fakePublisher{}
	s := NewStreamer(d, pub, nil, StreamerConfig{Prefix: "cell1"})

	require.NoError(t, s.PublishSnapshot())
	for _, topic := range []string{"cell1/0/state", "cell1/0/axis/0", "cell1/0/axis/3", "cell1/0/group/0"} {
		_, ok := pub.get(topic)
		require.True(t, ok, topic)
	}

	data, _ := pub.get("cell1/0/axis/2")
	var ax AxisStatus
	require.NoError(t, json.Unmarshal(data, &ax))
	require.Equal(t, 2, ax.Index)
	require.Equal(t, "stand_still", ax.State)

	data, _ = pub.get("cell1/0/group/0")
	var gs GroupStatus
	require.NoError(t, json.Unmarshal(data, &gs))
	require.Equal(t, 3, gs.AxisCount)
}

func TestStreamerForwardsMessages(t *testing.T) {
	d := simDevice(t)
	pub, w := &fakePublisher{}, &fakeWriter{}
	s := NewStreamer(d, pub, w, StreamerConfig{Interval: 5 * time.Millisecond})
	s.Start()

	require.NoError(t, d.AxisEnable(3))
	sim, err := d.SimDrive(3)
	require.NoError(t, err)
	sim.InjectAlarm(0x2220, true)
	d.Step(1)

	require.Eventually(t, func() bool {
		for _, k := range w.keys() {
			if k == "dev0.axis3" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := pub.get("nexmotion/0/axis/3")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.True(t, w.closed)
	require.True(t, pub.closed)
	require.NoError(t, s.Stop())

	w.mu.Lock()
	last := w.msgs[len(w.msgs)-1]
	w.mu.Unlock()
	var ev MessageEvent
	require.NoError(t, json.Unmarshal(last.Value, &ev))
	require.Equal(t, int32(0), ev.Device)
}

func TestStreamerFlushOnStop(t *testing.T) {
	d := simDevice(t)
	w := &fakeWriter{}
	s := NewStreamer(d, nil, w, StreamerConfig{Buffer: 2})

	s.enqueue(message.Message{Type: message.Warning, Source: "dev0.axis1"})
	s.enqueue(message.Message{Type: message.Normal, Source: "dev0"})
	s.enqueue(message.Message{Type: message.Normal, Source: "dev0"})
	require.Equal(t, uint64(1), s.Dropped())

	require.NoError(t, s.Stop())
	require.Equal(t, []string{"dev0.axis1", "dev0"}, w.keys())

	s.enqueue(message.Message{})
	require.Equal(t, uint64(1), s.Dropped())
}

func TestStreamerStopErrors(t *testing.T) {
	d := simDevice(t)
	w := &fakeWriter{fail: errors.New("broker down")}
	s := NewStreamer(d, nil, w, StreamerConfig{})
	s.enqueue(message.Message{Source: "dev0"})

	err := s.Stop()
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)
	require.Contains(t, err.Error(), "broker down")
	require.True(t, w.closed)
}
