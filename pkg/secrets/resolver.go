// Package secrets resolves the connection strings a control store or wake
// notifier needs (a SQLite DSN, NATS credentials) from a vendor-agnostic
// secret URL, using Go Cloud Development Kit's secrets package so the same
// code works against AWS Secrets Manager, GCP Secret Manager, Azure Key
// Vault, HashiCorp Vault, or a local file during development.
package secrets

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"
	// Cloud provider drivers are opt-in; import the one you need in your
	// application's main package, e.g.:
	//   _ "gocloud.dev/secrets/awskms"
	//   _ "gocloud.dev/secrets/localsecrets"
)

// Resolver resolves a secret URL to its decrypted plaintext value.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, error)
	Close() error
}

// KeeperResolver resolves secrets through a gocloud.dev/secrets.Keeper.
type KeeperResolver struct {
	keepers map[string]*secrets.Keeper
}

// NewKeeperResolver returns a Resolver backed by Go Cloud secret keepers,
// opening and caching one keeper per distinct URL it is asked to resolve.
func NewKeeperResolver() *KeeperResolver {
	return &KeeperResolver{keepers: make(map[string]*secrets.Keeper)}
}

// Resolve opens (or reuses) the keeper for url and decrypts the secret it
// names, returning the plaintext as a string.
func (r *KeeperResolver) Resolve(ctx context.Context, url string) (string, error) {
	keeper, ok := r.keepers[url]
	if !ok {
		var err error
		keeper, err = secrets.OpenKeeper(ctx, url)
		if err != nil {
			return "", fmt.Errorf("opening secret keeper %q: %w", url, err)
		}
		r.keepers[url] = keeper
	}

	plaintext, err := keeper.Decrypt(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting secret %q: %w", url, err)
	}
	return string(plaintext), nil
}

// Close releases every keeper this resolver has opened.
func (r *KeeperResolver) Close() error {
	var firstErr error
	for url, keeper := range r.keepers {
		if err := keeper.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing keeper %q: %w", url, err)
		}
	}
	return firstErr
}
