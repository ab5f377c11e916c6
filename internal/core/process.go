package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// ErrProcessClosed is returned after Close or after the pipe broke.
var ErrProcessClosed = errors.New("core process is not running")

// Process is a Core living in a child process that speaks the framed
// protocol served by Serve on its stdin and stdout.
//
// Calls are serialized. If a call is abandoned because its context ended,
// the stream position is unknown, so the process is killed and later calls
// fail with ErrProcessClosed.
type Process struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	dead   bool
	logger *slog.Logger
}

// StartProcess launches name with args. Extra environment entries are
// appended to the current environment. The child's stderr is forwarded to
// ours.
func StartProcess(name string, args []string, env []string, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start core process: %w", err)
	}
	logger.Info("core process started", "command", name, "pid", cmd.Process.Pid)
	return &Process{cmd: cmd, stdin: stdin, stdout: stdout, logger: logger}, nil
}

// ProcessEvent implements Core.
func (p *Process) ProcessEvent(ctx context.Context, event []byte) ([]byte, error) {
	return p.call(ctx, opEvent, 0, event)
}

// HandleResponse implements Core.
func (p *Process) HandleResponse(ctx context.Context, id uint32, response []byte) ([]byte, error) {
	return p.call(ctx, opResponse, id, response)
}

// View implements Core.
func (p *Process) View(ctx context.Context) ([]byte, error) {
	return p.call(ctx, opView, 0, nil)
}

func (p *Process) call(ctx context.Context, op byte, id uint32, payload []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return nil, ErrProcessClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		body []byte
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		if err := writeFrame(p.stdin, encodeCall(op, id, payload)); err != nil {
			resCh <- result{err: fmt.Errorf("write call: %w", err)}
			return
		}
		body, err := readFrame(p.stdout)
		if err != nil {
			resCh <- result{err: fmt.Errorf("read reply: %w", err)}
			return
		}
		resCh <- result{body: body}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			p.kill("pipe failure")
			return nil, res.err
		}
		return decodeReply(res.body)
	case <-ctx.Done():
		p.kill("call abandoned")
		return nil, ctx.Err()
	}
}

// kill stops the child. Caller holds p.mu.
func (p *Process) kill(reason string) {
	if p.dead {
		return
	}
	p.dead = true
	p.logger.Warn("stopping core process", "reason", reason)
	p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}

// Close shuts the child down by closing its stdin and waiting for it to exit.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return nil
	}
	p.dead = true
	p.stdin.Close()
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("core process exited: %w", err)
	}
	return err
}
