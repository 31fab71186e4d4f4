package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvProxyUsername = "ALKOSCRAPER_PROXY_USERNAME"
	EnvProxyPassword = "ALKOSCRAPER_PROXY_PASSWORD"
)

// EnvironmentStore exposes proxy credentials from the environment as a
// read-only account. Every name resolves to the same credentials.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	username := os.Getenv(EnvProxyUsername)
	password := os.Getenv(EnvProxyPassword)
	if username == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "env"
	}
	return &Account{
		Name:         name,
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}
