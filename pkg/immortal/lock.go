package immortal

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// staleLockAge is how old an unclaimed lock file must be before it is
// considered abandoned by a crashed holder.
const staleLockAge = 60 * time.Second

// fileLock is an exclusive, cooperative lock implemented as a sibling
// ".lock" file next to the path it protects. Holding the lock is advisory:
// every process touching the log is expected to acquire it first.
type fileLock struct {
	file *os.File
	path string
}

// acquireLock creates lockPath exclusively, retrying until timeout elapses.
// A lock file left behind by a crashed holder (older than staleLockAge, or
// whose recorded PID is no longer alive) is broken and retried rather than
// failing the caller.
func acquireLock(lockPath string, timeout time.Duration) (*fileLock, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			pid := os.Getpid()
			if _, werr := f.WriteString(strconv.Itoa(pid)); werr != nil {
				f.Close()
				os.Remove(lockPath)
				return nil, graph.NewError(graph.KindStorageError, "write lock pid").WithCause(werr)
			}
			f.Sync()
			return &fileLock{file: f, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, graph.NewError(graph.KindStorageError, "create lock file").WithCause(err)
		}

		if time.Now().After(deadline) {
			if isStaleLock(lockPath) {
				breakStaleLock(lockPath)
				continue
			}
			return nil, graph.NewError(graph.KindLockTimeout, "timed out acquiring lock: "+lockPath)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// isStaleLock reports whether lockPath's holder is presumed dead: the file
// is older than staleLockAge, or the PID it records is no longer running.
func isStaleLock(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > staleLockAge {
		return true
	}

	content, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return false
	}
	return !processAlive(pid)
}

func breakStaleLock(lockPath string) {
	os.Remove(lockPath)
}

// processAlive reports whether pid names a live process, using signal 0 to
// probe without actually delivering a signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

// release closes and removes the lock file. Safe to call once; subsequent
// calls are no-ops.
func (l *fileLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.file.Close()
	err := os.Remove(l.path)
	l.file = nil
	if err != nil && !os.IsNotExist(err) {
		return graph.NewError(graph.KindStorageError, "remove lock file").WithCause(err)
	}
	return nil
}
