package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecDevice_StreamsCommandOutput(t *testing.T) {
	dev := &ExecDevice{Command: []string{"sh", "-c", "printf audio-bytes; sleep 5"}}

	stream, err := dev.Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	select {
	case chunk := <-stream.Chunks():
		assert.Equal(t, []byte("audio-bytes"), chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk from capture command")
	}

	// Close kills the process and ends the stream.
	require.NoError(t, stream.Close())
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-stream.Chunks():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecDevice_MissingCommand(t *testing.T) {
	dev := &ExecDevice{Command: []string{"definitely-not-a-real-recorder"}}
	_, err := dev.Open(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestExecDevice_Unconfigured(t *testing.T) {
	dev := &ExecDevice{}
	_, err := dev.Open(context.Background())
	assert.Error(t, err)
}
