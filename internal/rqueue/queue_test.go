package rqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New[int]()
	assert.True(t, q.IsEmpty())

	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	assert.False(t, q.IsEmpty())

	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

func TestQueuePopEmpty(t *testing.T) {
	q := New[string]()
	v, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestQueueInterleavedPushPop(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	q.Push(3)
	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	assert.True(t, q.IsEmpty())
}

func TestQueueConcurrentPushPop(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	const producers = 8
	const perProducer = 100
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base + i)
			}
		}(p * perProducer)
	}
	wg.Wait()

	count := 0
	for {
		_, ok := q.Pop()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}

// elem is a payload that embeds its own intrusive link, the pattern
// tasksched.Task/Callout follow to avoid allocating a wrapper node.
type elem struct {
	link  Link[elem]
	value int
}

func elemLink(e *elem) *Link[elem] { return &e.link }

func TestIntQueueFIFOOrder(t *testing.T) {
	q := NewIntQueue(elemLink)
	assert.True(t, q.IsEmpty())

	nodes := make([]*elem, 5)
	for i := range nodes {
		nodes[i] = &elem{value: i}
		q.Push(nodes[i])
	}
	assert.False(t, q.IsEmpty())

	for i := 0; i < 5; i++ {
		got := q.Pop()
		require.NotNil(t, got)
		assert.Equal(t, i, got.value)
	}

	assert.Nil(t, q.Pop())
	assert.True(t, q.IsEmpty())
}

func TestIntQueueReusedAfterDrain(t *testing.T) {
	q := NewIntQueue(elemLink)
	a := &elem{value: 1}
	q.Push(a)
	require.Same(t, a, q.Pop())
	assert.True(t, q.IsEmpty())

	// bottom must have been reset to the sentinel; pushing again must not
	// corrupt the list.
	b := &elem{value: 2}
	c := &elem{value: 3}
	q.Push(b)
	q.Push(c)
	require.Same(t, b, q.Pop())
	require.Same(t, c, q.Pop())
	assert.Nil(t, q.Pop())
}

func TestIntQueueNoAllocationOnPayload(t *testing.T) {
	// Push/Pop must operate purely on the caller-owned *elem: the same
	// pointer identity must come back out, never a copy.
	q := NewIntQueue(elemLink)
	e := &elem{value: 42}
	q.Push(e)
	got := q.Pop()
	assert.Same(t, e, got)
}
