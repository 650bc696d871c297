//go:build windows

package runas

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

const (
	logon32LogonNewCredentials = 9
	logon32ProviderWinnt50     = 3
)

var (
	advapi32                    = windows.NewLazySystemDLL("advapi32.dll")
	procLogonUserW              = advapi32.NewProc("LogonUserW")
	procImpersonateLoggedOnUser = advapi32.NewProc("ImpersonateLoggedOnUser")
)

// platformSwitch logs the user on with LOGON32_LOGON_NEW_CREDENTIALS, so the token is used
// for outbound authentication (integrated security) while local access keeps the process
// identity, and impersonates it on the current thread.
func platformSwitch(runAs dbx.RunAsUserSpecification) (func() error, error) {
	domain := runAs.Domain
	if domain == "" {
		domain = "."
	}

	userPtr, err := windows.UTF16PtrFromString(runAs.UserName)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	domainPtr, err := windows.UTF16PtrFromString(domain)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	passwordPtr, err := windows.UTF16PtrFromString(runAs.Password)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var token windows.Token

	r1, _, e1 := procLogonUserW.Call(
		uintptr(unsafe.Pointer(userPtr)),
		uintptr(unsafe.Pointer(domainPtr)),
		uintptr(unsafe.Pointer(passwordPtr)),
		logon32LogonNewCredentials,
		logon32ProviderWinnt50,
		uintptr(unsafe.Pointer(&token)),
	)
	if r1 == 0 {
		return nil, errors.Wrap(e1, "LogonUserW")
	}

	runtime.LockOSThread()

	r1, _, e1 = procImpersonateLoggedOnUser.Call(uintptr(token))
	if r1 == 0 {
		_ = token.Close()
		runtime.UnlockOSThread()

		return nil, errors.Wrap(e1, "ImpersonateLoggedOnUser")
	}

	return func() error {
		defer token.Close()

		if err := windows.RevertToSelf(); err != nil {
			return errors.Wrap(err, "RevertToSelf")
		}

		runtime.UnlockOSThread()

		return nil
	}, nil
}
