package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFrame(t *testing.T) {
	f := NewFrame(6, 4)
	assert.NoError(t, f.Validate())
	assert.Len(t, f.Planes[0], 24)
	assert.Len(t, f.Planes[1], 6)
	assert.Equal(t, [3]int{6, 3, 3}, f.Strides)
	assert.Len(t, f.Row(1, 1), 3)

	f.Planes[2] = f.Planes[2][:2]
	assert.Error(t, f.Validate())
}

func TestChromaSize(t *testing.T) {
	w, h := ChromaSize(1366, 768)
	assert.Equal(t, 683, w)
	assert.Equal(t, 384, h)

	w, h = ChromaSize(5, 3)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
}

func TestPacket_Release(t *testing.T) {
	calls := 0
	p := NewPacket([]byte{1, 2, 3}, 4, 3, true, func() { calls++ })
	assert.Equal(t, 3, p.Size())
	assert.False(t, p.Released())

	p.Release()
	p.Release()
	assert.Equal(t, 1, calls)
	assert.True(t, p.Released())
	assert.Zero(t, p.Size())
}
