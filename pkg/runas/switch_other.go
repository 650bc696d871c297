//go:build !windows && !(linux && (amd64 || arm64))

package runas

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

func platformSwitch(dbx.RunAsUserSpecification) (func() error, error) {
	return nil, errors.Errorf("impersonation is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}
