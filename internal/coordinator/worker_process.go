package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// AttachTokenEnv carries the one-time attach token to a spawned worker. It is
// passed in the environment so it does not show up in process listings.
const AttachTokenEnv = "CHATPOOL_ATTACH_TOKEN"

const workerLogMode = 0o600

// SpawnSpec describes one worker process to start.
type SpawnSpec struct {
	UserID  string
	DataDir string
	Socket  string
	Driver  string
	Token   string
}

// Process is a running worker process.
type Process interface {
	PID() int
	// Wait blocks until the process exits and returns its exit code
	// (-1 when it was killed by a signal). It is called exactly once.
	Wait() (int, error)
	// Signal delivers sig to the process group.
	Signal(sig syscall.Signal) error
	// Kill force-terminates the process group.
	Kill() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, spec SpawnSpec) (Process, error)
}

// ExecSpawner runs the worker binary as a child process in its own process
// group. Output goes to worker.log in the worker's data directory.
type ExecSpawner struct {
	Binary string
	Args   []string // extra arguments appended after the standard flags
}

// Spawn starts the worker binary for spec.
func (s *ExecSpawner) Spawn(ctx context.Context, spec SpawnSpec) (Process, error) {
	if s.Binary == "" {
		return nil, errors.New("worker binary not configured")
	}

	logFile, err := os.OpenFile(filepath.Join(spec.DataDir, "worker.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, workerLogMode)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}

	args := []string{
		"--user-id", spec.UserID,
		"--data-dir", spec.DataDir,
		"--socket", spec.Socket,
		"--driver", spec.Driver,
	}
	args = append(args, s.Args...)

	// The child must outlive the request that spawned it, so it is not bound to ctx.
	cmd := exec.Command(s.Binary, args...) // #nosec G204 -- binary comes from coordinator config
	cmd.Env = append(os.Environ(), AttachTokenEnv+"="+spec.Token)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start %s: %w", s.Binary, err)
	}
	return &execProcess{cmd: cmd, log: logFile}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	log *os.File
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	_ = p.log.Close()

	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return p.cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}

func (p *execProcess) Signal(sig syscall.Signal) error {
	return signalGroup(p.PID(), sig)
}

func (p *execProcess) Kill() error {
	return signalGroup(p.PID(), unix.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %v to process group %d: %w", sig, pid, err)
	}
	return nil
}

// processAlive reports whether pid exists, using the null signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
