// Package secrets stores provider credentials outside the connections file.
// It uses the OS keychain (macOS Keychain, Linux Secret Service) when available,
// with a file-based fallback for environments without a keychain (CI, containers).
package secrets

import (
	"errors"
	"sync"
)

// serviceName is the keychain service identifier for all datalink secrets.
const serviceName = "datalink"

// SecretStore provides secure credential storage.
type SecretStore interface {
	// Get retrieves a secret by key. Returns ErrNotFound if not present.
	Get(key string) (string, error)
	// Set stores a secret under the given key, replacing any existing value.
	Set(key, value string) error
	// Delete removes a secret. No error if the key doesn't exist.
	Delete(key string) error
}

// ErrNotFound is returned when a secret key does not exist.
var ErrNotFound = errors.New("secret not found")

// SecretKey builds a canonical key for provider secrets.
// Format: "provider/account/field" (e.g. "notion/acme:u1/credentials").
func SecretKey(provider, account, field string) string {
	return provider + "/" + account + "/" + field
}

// New returns the best available SecretStore: the OS keychain, or a file under dir.
func New(dir string) SecretStore {
	if ks := newKeychainStore(serviceName); ks.available() {
		return ks
	}
	return newFileStore(dir)
}

// Memory is an in-process SecretStore. Nothing survives the process.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
