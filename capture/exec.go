package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/vignanchoutpally/voice-rag/logger"
)

const defaultChunkSize = 4096

// ExecDevice records by running a capture command (arecord, sox, ffmpeg) and
// streaming its stdout as audio chunks. The command must write encoded audio
// to stdout until killed.
type ExecDevice struct {
	// Command is the capture command and its arguments. Required.
	Command []string

	// ChunkSize is the read size per chunk. Defaults to 4096 bytes.
	ChunkSize int
}

// Name implements MicrophoneDevice.
func (d *ExecDevice) Name() string {
	if len(d.Command) == 0 {
		return "exec"
	}
	return d.Command[0]
}

// Open implements MicrophoneDevice.
func (d *ExecDevice) Open(ctx context.Context) (Stream, error) {
	if len(d.Command) == 0 {
		return nil, errors.New("capture command not configured")
	}

	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("capture command %q: %w", d.Command[0], ErrPermissionDenied)
		}
		return nil, fmt.Errorf("failed to start capture command: %w", err)
	}

	chunkSize := d.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}

	s := &execStream{
		cmd:    cmd,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go s.pump(stdout, chunkSize)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

type execStream struct {
	cmd    *exec.Cmd
	chunks chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *execStream) Chunks() <-chan []byte { return s.chunks }

// pump reads stdout into fixed-size chunks until the process exits or the
// stream is closed.
func (s *execStream) pump(r io.Reader, chunkSize int) {
	defer close(s.chunks)
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				logger.Warn("capture command read failed", "error", err)
			}
			return
		}
	}
}

// Close kills the capture process and releases the device.
func (s *execStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
