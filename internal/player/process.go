package player

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// Process is a running audio process.
type Process interface {
	Wait() error
	Kill() error
}

// Starter launches playback of url from the given offset.
type Starter func(ctx context.Context, url string, start time.Duration) (Process, error)

// MPVStarter returns a [Starter] that runs the mpv binary at path in audio-only mode.
func MPVStarter(path string) Starter {
	if path == "" {
		path = "mpv"
	}

	return func(_ context.Context, url string, start time.Duration) (Process, error) {
		args := []string{"--no-video", "--no-terminal", "--really-quiet"}
		if start > 0 {
			args = append(args, "--start="+strconv.FormatFloat(start.Seconds(), 'f', 1, 64))
		}
		args = append(args, url)

		cmd := exec.Command(path, args...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start mpv: %w", err)
		}
		return &mpvProcess{cmd: cmd}, nil
	}
}

type mpvProcess struct {
	cmd *exec.Cmd
}

func (p *mpvProcess) Wait() error { return p.cmd.Wait() }

// Kill terminates mpv and its process group.
func (p *mpvProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(p.cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	}
	return p.cmd.Process.Kill()
}
