package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(0)
	require.Equal(t, ErrCapacity, err)

	q, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Cap())
	assert.Equal(t, 0, q.Size())
}

func TestQueue_FIFO(t *testing.T) {
	q, err := New(3)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Enqueue(3))
	assert.True(t, q.IsFull())
	assert.Equal(t, ErrFull, q.Enqueue(4))
	assert.Equal(t, []uint8{1, 2, 3}, q.Values())

	front, err := q.Front()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), front)
	rear, err := q.Rear()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), rear)

	// Wrap the rear index around.
	require.NoError(t, q.Dequeue())
	require.NoError(t, q.Enqueue(5))
	assert.Equal(t, []uint8{2, 3, 5}, q.Values())
	assert.True(t, q.Contains(5))
	assert.False(t, q.Contains(1))

	rear, err = q.Rear()
	require.NoError(t, err)
	assert.Equal(t, uint8(5), rear)
}

func TestQueue_Empty(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)

	assert.Equal(t, ErrEmpty, q.Dequeue())
	_, err = q.Front()
	assert.Equal(t, ErrEmpty, err)
	_, err = q.Rear()
	assert.Equal(t, ErrEmpty, err)

	require.NoError(t, q.Enqueue(7))
	q.Clear()
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, ErrEmpty, q.Dequeue())
	assert.Equal(t, 0, q.Size())

	// Clearing an empty queue must not fail.
	q.Clear()
	require.NoError(t, q.Enqueue(9))
	front, err := q.Front()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), front)
}

func TestQueue_RandomOps(t *testing.T) {
	const capacity = 5
	q, err := New(capacity)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var model []uint8
	for i := 0; i < 10000; i++ {
		switch rng.Intn(3) {
		case 0:
			v := uint8(rng.Intn(256))
			err := q.Enqueue(v)
			if len(model) == capacity {
				require.Equal(t, ErrFull, err)
			} else {
				require.NoError(t, err)
				model = append(model, v)
			}
		case 1:
			err := q.Dequeue()
			if len(model) == 0 {
				require.Equal(t, ErrEmpty, err)
			} else {
				require.NoError(t, err)
				model = model[1:]
			}
		default:
			if rng.Intn(10) == 0 {
				q.Clear()
				model = model[:0]
			}
		}
		require.True(t, q.Size() >= 0 && q.Size() <= capacity)
		require.Equal(t, len(model), q.Size())
		if len(model) == 0 {
			require.Empty(t, q.Values())
		} else {
			require.Equal(t, model, q.Values())
		}
	}
}
