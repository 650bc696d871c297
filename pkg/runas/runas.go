// Package runas runs work under another OS identity.
//
// The identity switch is per OS thread: the calling goroutine is locked to its thread while
// fn runs, so goroutines started by fn do not inherit the identity. Database connections
// opened inside fn are authenticated with it when the driver uses integrated security.
package runas

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// Switcher switches the current thread to user and returns the function restoring the
// previous identity.
type Switcher interface {
	Switch(user dbx.RunAsUserSpecification) (revert func() error, err error)
}

// SwitcherFunc adapts a function to Switcher.
type SwitcherFunc func(user dbx.RunAsUserSpecification) (func() error, error)

func (f SwitcherFunc) Switch(user dbx.RunAsUserSpecification) (func() error, error) {
	return f(user)
}

// Executor implements dbx.ImpersonationExecutor.
//
// When the switch fails and RequireImpersonation is set, Execute returns an
// *errorx.ImpersonationError without running fn. Otherwise the failure is logged and fn runs
// under the process identity.
type Executor struct {
	requireImpersonation bool
	logger               logx.Logger
	switcher             Switcher
}

var _ dbx.ImpersonationExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithRequireImpersonation makes a failed switch a hard error.
func WithRequireImpersonation(required bool) Option {
	return func(e *Executor) {
		e.requireImpersonation = required
	}
}

// WithSwitcher replaces the platform identity switch.
func WithSwitcher(s Switcher) Option {
	return func(e *Executor) {
		e.switcher = s
	}
}

// New returns an Executor using the platform identity switch.
func New(logger logx.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger:   logx.OrNop(logger),
		switcher: SwitcherFunc(platformSwitch),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RequireImpersonation reports whether a failed switch is a hard error.
func (e *Executor) RequireImpersonation() bool {
	return e.requireImpersonation
}

// Execute runs fn as user.
func (e *Executor) Execute(ctx context.Context, user dbx.RunAsUserSpecification, fn func(ctx context.Context) error) error {
	account := qualifiedName(user)

	revert, err := e.switcher.Switch(user)
	if err != nil {
		if e.requireImpersonation {
			return errorx.NewImpersonationError(account, err)
		}

		e.logger.LogWarning(ctx, fmt.Sprintf("impersonation of '%s' failed, running as the process identity", account), err)

		return fn(ctx)
	}

	e.logger.LogDebug(ctx, fmt.Sprintf("running as '%s'", account))

	defer func() {
		if err := revert(); err != nil {
			e.logger.LogError(ctx, fmt.Sprintf("error restoring identity after running as '%s'", account), err)
		}
	}()

	return fn(ctx)
}

func qualifiedName(user dbx.RunAsUserSpecification) string {
	if user.Domain == "" {
		return user.UserName
	}

	return user.Domain + `\` + user.UserName
}
