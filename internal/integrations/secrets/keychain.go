package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// keychainStore keeps secrets in the OS keychain through zalando/go-keyring.
// On macOS this is Keychain, on Linux the Secret Service (D-Bus).
type keychainStore struct {
	service string
}

func newKeychainStore(service string) *keychainStore {
	return &keychainStore{service: service}
}

func (k *keychainStore) Get(key string) (string, error) {
	val, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return val, err
}

func (k *keychainStore) Set(key, value string) error {
	return keyring.Set(k.service, key, value)
}

func (k *keychainStore) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// available probes the keychain with a set+delete round trip.
func (k *keychainStore) available() bool {
	const probeKey = "__datalink_probe__"
	if err := k.Set(probeKey, "ok"); err != nil {
		return false
	}
	_ = k.Delete(probeKey)
	return true
}
