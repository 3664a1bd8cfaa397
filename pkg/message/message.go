// System message queue
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package message

import (
	"sync"
	"time"
	"unicode/utf8"

	"nexmotion-go/pkg/errors"
)

// Field limits, including the terminating byte of the wire format
const (
	MaxSourceSize = 128
	MaxTextSize   = 1024
	DefaultDepth  = 256
)

// Type classifies a message
type Type int32

const (
	Normal  Type = 0
	Warning Type = 1
	Error   Type = 2
	Debug   Type = 3
)

func (t Type) String() string {
	switch t {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// Message is one queued system message
type Message struct {
	LocalTime time.Time `json:"local_time"`
	Index     uint32    `json:"index"`
	Type      Type      `json:"type"`
	Source    string    `json:"source"`
	ID        int32     `json:"id"`
	Code      int32     `json:"code"`
	Text      string    `json:"text"`
}

// Listener observes every posted message
type Listener func(Message)

// Queue is a bounded FIFO of system messages. When full, the oldest
// message is dropped.
type Queue struct {
	mu        sync.Mutex
	buf       []Message
	head      int
	count     int
	next      uint32
	dropped   uint64
	listeners []Listener
	now       func() time.Time
}

// NewQueue creates a queue holding up to depth messages
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Queue{buf: make([]Message, depth), now: time.Now}
}

func truncate(s string, max int) string {
	if len(s) < max {
		return s
	}
	s = s[:max-1]
	// drop a trailing partial UTF-8 sequence
	for i := 0; i < utf8.UTFMax && len(s) > 0; i++ {
		if r, size := utf8.DecodeLastRuneInString(s); r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// Post appends a message, assigning its index and timestamp
func (q *Queue) Post(typ Type, source string, id, code int32, text string) Message {
	q.mu.Lock()
	m := Message{
		LocalTime: q.now(),
		Index:     q.next,
		Type:      typ,
		Source:    truncate(source, MaxSourceSize),
		ID:        id,
		Code:      code,
		Text:      truncate(text, MaxTextSize),
	}
	q.next++
	if q.count == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped++
	}
	q.buf[(q.head+q.count)%len(q.buf)] = m
	q.count++
	listeners := q.listeners
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(m)
	}
	return m
}

// PopFirst removes and returns the oldest message
func (q *Queue) PopFirst() (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Message{}, errors.New(errors.QueueEmpty, "no system message")
	}
	m := q.buf[q.head]
	q.buf[q.head] = Message{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return m, nil
}

// Len returns the number of queued messages
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns how many messages were discarded on overflow
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Subscribe registers a listener run synchronously on every Post
func (q *Queue) Subscribe(fn Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(append([]Listener(nil), q.listeners...), fn)
}

// Clear drops all queued messages
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.buf {
		q.buf[i] = Message{}
	}
	q.head, q.count = 0, 0
}
