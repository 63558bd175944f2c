package detection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/vignanchoutpally/voice-rag/logger"
)

// CommandRecognizer runs an external speech-to-text command and treats each
// stdout line as one transcript fragment. Suitable for local recognizers
// that stream continuous partial results (vosk, whisper.cpp in stream mode).
type CommandRecognizer struct {
	// Command is the recognizer command and its arguments. Required.
	Command []string
}

// Name implements Recognizer.
func (r *CommandRecognizer) Name() string {
	if len(r.Command) == 0 {
		return "exec"
	}
	return r.Command[0]
}

// Listen implements Recognizer. The returned channel closes when the command
// exits; a missing command reports ErrRecognizerUnavailable.
func (r *CommandRecognizer) Listen(ctx context.Context) (<-chan string, error) {
	if len(r.Command) == 0 {
		return nil, ErrRecognizerUnavailable
	}

	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open recognizer pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("recognizer command %q: %w", r.Command[0], ErrRecognizerUnavailable)
		}
		return nil, fmt.Errorf("failed to start recognizer: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() {
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				logger.Debug("recognizer command exited", "error", err)
			}
		}()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
