package server

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// EnvListenFDs names the environment variable carrying the number of
// inherited listening descriptors.
const EnvListenFDs = "TLSOCK_LISTEN_FDS"

// firstInheritedFD is the first descriptor after stdin, stdout and stderr.
const firstInheritedFD = 3

// ListenFDs returns the listening descriptors inherited from a restarting
// parent, or nil when none were passed. The variable is cleared so it is
// not seen twice.
func ListenFDs() ([]uintptr, error) {
	v, ok := os.LookupEnv(EnvListenFDs)
	if !ok {
		return nil, nil
	}
	_ = os.Unsetenv(EnvListenFDs)
	return parseListenFDs(v)
}

func parseListenFDs(v string) ([]uintptr, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %s=%q", ErrInherited, EnvListenFDs, v)
	}
	if n == 0 {
		return nil, nil
	}
	fds := make([]uintptr, n)
	for i := range fds {
		fds[i] = uintptr(firstInheritedFD + i)
	}
	return fds, nil
}

// HandoffFiles duplicates the listening descriptors in configuration
// order. The caller closes the files.
func (s *Server) HandoffFiles() ([]*os.File, error) {
	s.mu.RLock()
	listeners := s.listeners
	running := s.state == StateRunning
	s.mu.RUnlock()
	if !running {
		return nil, ErrNotStarted
	}

	files := make([]*os.File, 0, len(listeners))
	for _, l := range listeners {
		f, err := l.File()
		if err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("listener %s: %w", l.ID(), err)
		}
		files = append(files, f)
	}
	return files, nil
}

// Restart starts a new copy of the running executable with the same
// arguments, passing it the listening descriptors. The caller is expected
// to Shutdown afterwards.
func (s *Server) Restart() (*os.Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return s.RestartWith(exe, os.Args[1:]...)
}

// RestartWith is Restart with an explicit executable and arguments.
func (s *Server) RestartWith(exe string, args ...string) (*os.Process, error) {
	files, err := s.HandoffFiles()
	if err != nil {
		return nil, err
	}
	defer closeFiles(files)

	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = files
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", EnvListenFDs, len(files)))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("restart %s: %w", exe, err)
	}
	s.logger.Info("restarted", "pid", cmd.Process.Pid, "listeners", len(files))
	return cmd.Process, nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
