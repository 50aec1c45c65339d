package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/vpsmonitor/vps-agent/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Write records the current process ID in path. It fails with
// ErrAlreadyRunning when path names a live process other than this one; a
// stale or unreadable file is replaced.
func Write(path string) error {
	errFactory := errors.New()
	if path == "" {
		return errFactory.WithData(errors.ErrInvalidArgument, "empty pid file path")
	}

	self := os.Getpid()

	if owner, ok := readPID(path); ok && owner != self && alive(owner) {
		return errFactory.WithData(errors.ErrAlreadyRunning, "pid "+strconv.Itoa(owner))
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(self)+"\n"), defaultFilePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes path if it still belongs to this process.
func Remove(path string) error {
	errFactory := errors.New()
	if path == "" {
		return nil
	}

	owner, ok := readPID(path)
	if !ok || owner != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))

	return err == nil || errors.Is(err, syscall.EPERM)
}
