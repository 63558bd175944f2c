package detection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRecognizer_StreamsLines(t *testing.T) {
	r := &CommandRecognizer{Command: []string{"sh", "-c", `printf 'some chatter\nhey friday\n'`}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transcripts, err := r.Listen(ctx)
	require.NoError(t, err)

	var got []string
	for line := range transcripts {
		got = append(got, line)
	}
	assert.Equal(t, []string{"some chatter", "hey friday"}, got)
}

func TestCommandRecognizer_Unconfigured(t *testing.T) {
	r := &CommandRecognizer{}
	_, err := r.Listen(context.Background())
	assert.ErrorIs(t, err, ErrRecognizerUnavailable)
}

func TestCommandRecognizer_MissingCommand(t *testing.T) {
	r := &CommandRecognizer{Command: []string{"definitely-not-a-real-recognizer"}}
	_, err := r.Listen(context.Background())
	assert.ErrorIs(t, err, ErrRecognizerUnavailable)
}
