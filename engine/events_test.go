package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBuffer_SequenceIsStrictlyMonotonicallyIncreasing(t *testing.T) {
	b := newEventBuffer("sess-1")
	var seqs []uint64
	b.Subscribe(func(e Event) { seqs = append(seqs, e.Sequence) })

	b.emit(1, EventTickStart, nil)
	b.emit(1, EventTickEnd, nil)
	b.emit(2, EventTickStart, nil)

	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestEventBuffer_FansOutToEverySubscriber(t *testing.T) {
	b := newEventBuffer("sess-2")
	var a, bCount int
	b.Subscribe(func(e Event) { a++ })
	b.Subscribe(func(e Event) { bCount++ })

	b.emit(1, EventTickStart, nil)

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, bCount)
}

func TestEventBuffer_EventIDsAreUniquePerSession(t *testing.T) {
	b := newEventBuffer("sess-3")
	e1 := b.emit(1, EventTickStart, nil)
	e2 := b.emit(1, EventTickEnd, nil)
	assert.NotEqual(t, e1.ID, e2.ID)
}
