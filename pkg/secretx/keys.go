package secretx

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// KeyringService is the service name used for keyring references without one.
const KeyringService = "go-dal-core"

// KeyResolver turns a key reference from a specification into the passphrase.
type KeyResolver interface {
	Resolve(ref string) (string, error)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(ref string) (string, error)

func (f KeyResolverFunc) Resolve(ref string) (string, error) {
	return f(ref)
}

// DefaultKeyResolver understands three reference forms:
//
//	keyring:<service>/<user>  the OS keyring entry (keyring:<user> uses KeyringService)
//	env:<NAME>                the environment variable NAME
//	anything else             the reference itself is the passphrase
func DefaultKeyResolver() KeyResolver {
	return KeyResolverFunc(resolve)
}

func resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "keyring:"):
		service, user := splitKeyringRef(strings.TrimPrefix(ref, "keyring:"))

		secret, err := keyring.Get(service, user)
		if err != nil {
			return "", errorx.NewConfigurationErrorWrapper(err, "error reading key '%s/%s' from the keyring", service, user)
		}

		return secret, nil
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")

		secret, ok := os.LookupEnv(name)
		if !ok || secret == "" {
			return "", errorx.NewConfigurationError("encryption key variable '%s' is not set", name)
		}

		return secret, nil
	case ref == "":
		return "", errorx.NewConfigurationError("empty encryption key")
	}

	return ref, nil
}

// StoreKey saves secret in the OS keyring and returns the reference to put in a specification.
func StoreKey(service string, user string, secret string) (string, error) {
	if service == "" {
		service = KeyringService
	}

	if err := keyring.Set(service, user, secret); err != nil {
		return "", errors.Wrapf(err, "error storing key '%s/%s' in the keyring", service, user)
	}

	return "keyring:" + service + "/" + user, nil
}

func splitKeyringRef(ref string) (service string, user string) {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[:i], ref[i+1:]
	}

	return KeyringService, ref
}
