// Snapshot and message streaming
//
// The streamer publishes device, axis and group status to MQTT topics
//
//	<prefix>/<dev>/state
//	<prefix>/<dev>/axis/<i>
//	<prefix>/<dev>/group/<g>
//
// and forwards every system message to a Kafka topic keyed by source.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/message"
	"nexmotion-go/pkg/nmc"
	"nexmotion-go/pkg/pool"
)

// Publisher sends one payload to a topic. The payload is only valid for
// the duration of a successful call.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// MessageWriter is implemented by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Retained       bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// MQTTPublisher publishes through a paho client
type MQTTPublisher struct {
	client   mqtt.Client
	qos      byte
	retained bool
	timeout  time.Duration
}

// NewMQTTPublisher connects to the broker. An empty client id gets a
// random "nmcd-<uuid>" one.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "nmcd-" + uuid.NewString()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, errors.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", cfg.Broker)
	}
	return &MQTTPublisher{
		client:   client,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  cfg.ConnectTimeout,
	}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return errors.Errorf("mqtt publish %s timed out", topic)
	}
	return errors.Wrapf(token.Error(), "mqtt publish %s", topic)
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

// NewKafkaWriter creates a writer balancing over brokers
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
}

// MessageEvent is the stream payload of a system message
type MessageEvent struct {
	Device int32     `json:"device"`
	Index  uint32    `json:"index"`
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	ID     int32     `json:"id"`
	Code   int32     `json:"code"`
	Text   string    `json:"text"`
}

func messageEvent(dev int32, m message.Message) MessageEvent {
	return MessageEvent{
		Device: dev,
		Index:  m.Index,
		Time:   m.LocalTime,
		Type:   m.Type.String(),
		Source: m.Source,
		ID:     m.ID,
		Code:   m.Code,
		Text:   m.Text,
	}
}

type StreamerConfig struct {
	// Topic prefix, "nexmotion" when empty
	Prefix string

	// Snapshot publication period, 100ms when zero
	Interval time.Duration

	// Messages buffered between the control cycle and Kafka
	Buffer int

	WriteTimeout time.Duration

	Logger *log.Logger
}

// Streamer pushes one device to MQTT and Kafka. Either sink may be nil.
type Streamer struct {
	dev    *nmc.Device
	pub    Publisher
	sink   MessageWriter
	cfg    StreamerConfig
	logger *log.Logger

	msgs    chan message.Message
	dropped atomic.Uint64
	stopped atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewStreamer(dev *nmc.Device, pub Publisher, sink MessageWriter, cfg StreamerConfig) *Streamer {
	if cfg.Prefix == "" {
		cfg.Prefix = "nexmotion"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = message.DefaultDepth
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger("stream")
	}
	return &Streamer{
		dev:    dev,
		pub:    pub,
		sink:   sink,
		cfg:    cfg,
		logger: cfg.Logger,
		msgs:   make(chan message.Message, cfg.Buffer),
		stopCh: make(chan struct{}),
	}
}

// Dropped returns how many messages overflowed the buffer
func (s *Streamer) Dropped() uint64 { return s.dropped.Load() }

// Start subscribes to the message queue and runs the publish loops
func (s *Streamer) Start() {
	s.startOnce.Do(func() {
		if s.sink != nil {
			s.dev.Library().Queue().Subscribe(s.enqueue)
			s.wg.Add(1)
			go s.messageLoop()
		}
		if s.pub != nil {
			s.wg.Add(1)
			go s.snapshotLoop()
		}
	})
}

// enqueue runs on the posting goroutine, which may be the control cycle
func (s *Streamer) enqueue(m message.Message) {
	if s.stopped.Load() {
		return
	}
	select {
	case s.msgs <- m:
	default:
		s.dropped.Add(1)
	}
}

// Stop ends the loops, flushes pending messages and closes both sinks
func (s *Streamer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
		s.wg.Wait()

		if s.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
			err = multierr.Append(err, s.flush(ctx))
			cancel()
			err = multierr.Append(err, errors.Wrap(s.sink.Close(), "close message writer"))
		}
		if s.pub != nil {
			err = multierr.Append(err, errors.Wrap(s.pub.Close(), "close publisher"))
		}
	})
	return err
}

func (s *Streamer) topic(parts ...any) string {
	t := fmt.Sprintf("%s/%d", s.cfg.Prefix, s.dev.ID())
	for _, p := range parts {
		t += fmt.Sprintf("/%v", p)
	}
	return t
}

func (s *Streamer) publishJSON(topic string, v any) error {
	buf := pool.GetBuffer()
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		pool.PutBuffer(buf)
		return errors.Wrapf(err, "encode %s", topic)
	}
	// a failed publish may still hold the payload in the client's outbox
	if err := s.pub.Publish(topic, buf.Bytes()); err != nil {
		return err
	}
	pool.PutBuffer(buf)
	return nil
}

// PublishSnapshot publishes the current device, axis and group status
func (s *Streamer) PublishSnapshot() error {
	snap := s.dev.Snapshot()
	err := s.publishJSON(s.topic("state"), deviceStatus(snap))
	for _, a := range snap.Axes {
		err = multierr.Append(err, s.publishJSON(s.topic("axis", a.Index), axisStatus(a)))
	}
	for _, g := range snap.Groups {
		err = multierr.Append(err, s.publishJSON(s.topic("group", g.Index), groupStatus(g)))
	}
	return err
}

func (s *Streamer) snapshotLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.PublishSnapshot(); err != nil {
				s.logger.Warn("publish snapshot: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Streamer) messageLoop() {
	defer s.wg.Done()
	for {
		select {
		case m := <-s.msgs:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
			err := s.write(ctx, s.batch(m))
			cancel()
			if err != nil {
				s.logger.Warn("write messages: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// batch collects first and whatever else is already buffered
func (s *Streamer) batch(first message.Message) []message.Message {
	out := []message.Message{first}
	for {
		select {
		case m := <-s.msgs:
			out = append(out, m)
		default:
			return out
		}
	}
}

func (s *Streamer) flush(ctx context.Context) error {
	select {
	case m := <-s.msgs:
		return s.write(ctx, s.batch(m))
	default:
		return nil
	}
}

func (s *Streamer) write(ctx context.Context, ms []message.Message) error {
	dev := int32(s.dev.ID())
	out := make([]kafka.Message, 0, len(ms))
	for _, m := range ms {
		data, err := json.Marshal(messageEvent(dev, m))
		if err != nil {
			return errors.Wrap(err, "encode message")
		}
		out = append(out, kafka.Message{Key: []byte(m.Source), Value: data, Time: m.LocalTime})
	}
	return errors.Wrapf(s.sink.WriteMessages(ctx, out...), "write %d messages", len(out))
}
