package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("display went away")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "configuration without stage",
			err:  Configurationf("invalid framerate: %d", 0),
			want: "configuration error: invalid framerate: 0",
		},
		{
			name: "resource with stage",
			err:  Resource("open output", cause),
			want: "resource unavailable during open output: display went away",
		},
		{
			name: "capture with frame",
			err:  Capture(4, cause),
			want: "capture failure during capture at frame 4: display went away",
		},
		{
			name: "encode with frame zero",
			err:  Encode("feed", 0, cause),
			want: "encode failure during feed at frame 0: display went away",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindThroughWrapping(t *testing.T) {
	cause := stderrors.New("boom")
	err := fmt.Errorf("recording: %w", Capture(2, cause))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindCapture, kind)
	assert.True(t, IsCapture(err))
	assert.False(t, IsEncode(err))
	assert.False(t, IsConfiguration(err))
	assert.ErrorIs(t, err, cause)

	_, ok = KindOf(cause)
	assert.False(t, ok)
}

func TestAtFrameCopies(t *testing.T) {
	base := New(KindEncode, "write", nil)
	tagged := base.AtFrame(7)

	assert.Equal(t, NoFrame, base.Frame)
	assert.Equal(t, 7, tagged.Frame)
	assert.Equal(t, "encode failure during write at frame 7", tagged.Error())
}
