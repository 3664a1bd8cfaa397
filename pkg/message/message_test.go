package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nexmotion-go/pkg/errors"
)

func TestPopFirstSequence(t *testing.T) {
	q := NewQueue(4)

	_, err := q.PopFirst()
	require.Equal(t, errors.QueueEmpty, errors.CodeOf(err))

	q.Post(Error, "axis 0", 1, int32(errors.OperationDenied), "drive alarm")

	m, err := q.PopFirst()
	require.NoError(t, err)
	require.Equal(t, Error, m.Type)
	require.Equal(t, "axis 0", m.Source)
	require.Equal(t, int32(-23), m.Code)

	_, err = q.PopFirst()
	require.Equal(t, errors.QueueEmpty, errors.CodeOf(err))
}

func TestOverflowDropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Post(Normal, "a", 0, 0, "1")
	q.Post(Normal, "a", 0, 0, "2")
	q.Post(Normal, "a", 0, 0, "3")

	require.Equal(t, 2, q.Len())
	require.Equal(t, uint64(1), q.Dropped())
	m, _ := q.PopFirst()
	require.Equal(t, "2", m.Text)
	require.Equal(t, uint32(1), m.Index)
}

func TestTruncation(t *testing.T) {
	q := NewQueue(1)
	m := q.Post(Warning, strings.Repeat("s", 300), 0, 0, strings.Repeat("é", 600))
	require.Len(t, m.Source, MaxSourceSize-1)
	require.LessOrEqual(t, len(m.Text), MaxTextSize-1)
	require.True(t, strings.HasSuffix(m.Text, "é"))
}

func TestSubscribe(t *testing.T) {
	q := NewQueue(1)
	var got []string
	q.Subscribe(func(m Message) { got = append(got, m.Text) })
	q.Post(Debug, "x", 0, 0, "hello")
	require.Equal(t, []string{"hello"}, got)
}
