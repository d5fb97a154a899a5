// Package lockfile enforces a single running collector per serial
// device via a PID-stamped file under /tmp, with stale-lock detection
// by liveness check on the recorded PID.
package lockfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
	"time"
)

// Lock is a held lock file; callers must call Unlock when the
// collector session ends.
type Lock struct {
	path string
}

var pidLine = regexp.MustCompile(`PID of locking process\s*:\s*(\d+)`)

// Path returns the lock file path for appName (e.g. "pbcollect") and
// device (e.g. "/dev/ttyS0"), matching "/tmp/<app>-<device_tail>.lck".
func Path(appName, device string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.lck", appName, filepath.Base(device)))
}

// Acquire takes the lock at path, stealing it first if the PID
// recorded in an existing lock file is no longer alive. It fails if
// another live process holds the lock.
func Acquire(path, processName string) (*Lock, error) {
	if pid, alive := readOwner(path); pid > 0 {
		if alive {
			return nil, fmt.Errorf("lockfile: %s is held by running process %d", path, pid)
		}
		os.Remove(path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o744)
	if err != nil {
		return nil, fmt.Errorf("lockfile: creating %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Opened by : %s\n", processName)
	fmt.Fprintf(f, "PID of locking process : %d\n", os.Getpid())
	fmt.Fprintf(f, "File created on %s\n", time.Now().Format(time.ANSIC))

	return &Lock{path: path}, nil
}

// Unlock removes the lock file. Safe to call once per successful
// Acquire.
func (l *Lock) Unlock() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: removing %s: %w", l.path, err)
	}
	return nil
}

// readOwner reads an existing lock file's PID and reports whether that
// process is still alive. pid is 0 when no lock file exists.
func readOwner(path string) (pid int, alive bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if m := pidLine.FindStringSubmatch(line); m != nil {
			pid, _ = strconv.Atoi(m[1])
			break
		}
	}
	if pid <= 0 {
		return 0, false
	}
	return pid, processAlive(pid)
}

// processAlive sends the null signal to pid, the standard Unix idiom
// for liveness-checking a process without affecting it.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
