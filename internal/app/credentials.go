package app

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring coordinates for the stored API key.
const (
	keyringService = "cachegate"
	keyringUser    = "api-key"
)

// StoredAPIKey reads the API key saved by `cachegate auth login`. A missing
// entry is not an error; it returns "".
func StoredAPIKey() (string, error) {
	key, err := keyring.Get(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read API key from keyring: %w", err)
	}
	return key, nil
}

// StoreAPIKey saves the API key to the OS keyring.
func StoreAPIKey(key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("write API key to keyring: %w", err)
	}
	return nil
}

// ClearAPIKey removes the stored API key. Clearing an absent entry succeeds.
func ClearAPIKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete API key from keyring: %w", err)
	}
	return nil
}
