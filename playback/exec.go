package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ExecSink plays audio by piping it to a player command (mpg123, aplay,
// ffplay). The command must read encoded audio from stdin and exit when the
// stream ends.
type ExecSink struct {
	// Command is the player command and its arguments. Required.
	Command []string
}

// Name implements Sink.
func (s *ExecSink) Name() string {
	if len(s.Command) == 0 {
		return "exec"
	}
	return s.Command[0]
}

// Play implements Sink. It blocks until the player command exits.
func (s *ExecSink) Play(ctx context.Context, audio []byte) error {
	if len(s.Command) == 0 {
		return errors.New("player command not configured")
	}

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player command failed: %w", err)
	}
	return nil
}
