package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnStatusUpdate(t *testing.T) {
	tr := New()

	tr.OnStatusUpdate(42, true)
	assert.True(t, tr.IsOnline(42))
	assert.False(t, tr.IsOnline(7))

	tr.OnStatusUpdate(42, false)
	assert.False(t, tr.IsOnline(42))
}

func TestIdempotence(t *testing.T) {
	tr := New()

	tr.OnStatusUpdate(42, true)
	tr.OnStatusUpdate(42, true)
	assert.Equal(t, []int64{42}, tr.Online())

	// removing an absent user is a no-op
	tr.OnStatusUpdate(99, false)
	assert.Equal(t, []int64{42}, tr.Online())
}

func TestOnlineSorted(t *testing.T) {
	tr := New()
	for _, id := range []int64{9, 3, 7} {
		tr.OnStatusUpdate(id, true)
	}
	assert.Equal(t, []int64{3, 7, 9}, tr.Online())
}

func TestReset(t *testing.T) {
	tr := New()
	tr.OnStatusUpdate(1, true)
	tr.Reset()
	assert.Empty(t, tr.Online())
}
