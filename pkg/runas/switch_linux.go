//go:build linux && (amd64 || arm64)

package runas

import (
	"os/user"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

// keep passed to setresuid/setresgid leaves an id unchanged.
const keep = ^uintptr(0)

// platformSwitch changes the effective uid and gid of the current thread only. The raw
// syscalls bypass the runtime, which would apply them to every thread. The process must be
// allowed to change identity (root or CAP_SETUID/CAP_SETGID); the password is not used.
func platformSwitch(runAs dbx.RunAsUserSpecification) (func() error, error) {
	u, err := user.Lookup(runAs.UserName)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup user '%s'", runAs.UserName)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, errors.Wrapf(err, "uid of '%s'", runAs.UserName)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, errors.Wrapf(err, "gid of '%s'", runAs.UserName)
	}

	runtime.LockOSThread()

	origUid, origGid := unix.Geteuid(), unix.Getegid()

	if err := setresgid(gid); err != nil {
		runtime.UnlockOSThread()
		return nil, errors.Wrap(err, "setresgid")
	}

	if err := setresuid(uid); err != nil {
		_ = setresgid(origGid)
		runtime.UnlockOSThread()

		return nil, errors.Wrap(err, "setresuid")
	}

	return func() error {
		// On failure the thread stays locked, the runtime discards it when the goroutine exits.
		if err := setresuid(origUid); err != nil {
			return errors.Wrap(err, "restore uid")
		}

		if err := setresgid(origGid); err != nil {
			return errors.Wrap(err, "restore gid")
		}

		runtime.UnlockOSThread()

		return nil
	}, nil
}

func setresuid(euid int) error {
	if _, _, errno := unix.RawSyscall(unix.SYS_SETRESUID, keep, uintptr(euid), keep); errno != 0 {
		return errno
	}

	return nil
}

func setresgid(egid int) error {
	if _, _, errno := unix.RawSyscall(unix.SYS_SETRESGID, keep, uintptr(egid), keep); errno != 0 {
		return errno
	}

	return nil
}
