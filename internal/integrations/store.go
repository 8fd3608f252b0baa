package integrations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/moasq/datalink/internal/integrations/secrets"
)

// storeFile is the filename for persisted connections.
const storeFile = "connections.json"

// secretRefPrefix marks a credentials field as a reference to a secret store key.
const secretRefPrefix = "secret:"

// Connection is the persisted form of one provider's Params for one account.
type Connection struct {
	Provider    ProviderID `json:"provider"`
	Type        string     `json:"type,omitempty"`
	Credentials string     `json:"credentials,omitempty"` // "secret:<key>" on disk
	Items       []Item     `json:"items"`                 // null until loaded
	ConnectedAt string     `json:"connected_at,omitempty"`
}

// Params converts the connection back into shared widget state.
func (c *Connection) Params() Params {
	if c == nil {
		return Params{}
	}
	p := Params{Type: c.Type, Items: c.Items}
	if c.Credentials != "" {
		p.Credentials = Credentials(c.Credentials)
	}
	return p
}

// storeData is the on-disk structure.
// Providers maps ProviderID → account key → connection.
type storeData struct {
	Providers map[ProviderID]map[string]*Connection `json:"providers"`
}

// ConnectionStore persists connections to ~/.datalink/connections.json.
// Credentials are kept in the OS keychain (or file fallback) and replaced with
// "secret:<key>" references in the JSON file.
type ConnectionStore struct {
	mu      sync.Mutex
	dir     string
	data    *storeData
	secrets secrets.SecretStore
	now     func() time.Time
}

// NewConnectionStoreWithSecrets creates a store rooted at dir keeping credentials in ss.
func NewConnectionStoreWithSecrets(dir string, ss secrets.SecretStore) *ConnectionStore {
	return &ConnectionStore{
		dir: dir,
		data: &storeData{
			Providers: make(map[ProviderID]map[string]*Connection),
		},
		secrets: ss,
		now:     time.Now,
	}
}

// Load reads the store from disk. Missing file is not an error.
// Raw credentials found in the file are moved into the secret store.
func (s *ConnectionStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, storeFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read connections store: %w", err)
	}

	var sd storeData
	if err := json.Unmarshal(data, &sd); err != nil {
		return fmt.Errorf("parse connections store: %w", err)
	}
	if sd.Providers == nil {
		sd.Providers = make(map[ProviderID]map[string]*Connection)
	}
	s.data = &sd
	s.migrateCredentialsToSecretStore()
	return nil
}

// migrateCredentialsToSecretStore moves raw credentials out of the JSON file.
func (s *ConnectionStore) migrateCredentialsToSecretStore() {
	needsSave := false
	for id, accounts := range s.data.Providers {
		for account, conn := range accounts {
			if conn.Credentials == "" || strings.HasPrefix(conn.Credentials, secretRefPrefix) {
				continue
			}
			key := secrets.SecretKey(string(id), account, "credentials")
			if err := s.secrets.Set(key, conn.Credentials); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to move %s/%s credentials to secure storage: %v\n", id, account, err)
				continue
			}
			conn.Credentials = secretRefPrefix + key
			needsSave = true
		}
	}
	if needsSave {
		_ = s.saveLocked()
	}
}

// saveLocked writes the current state to disk. Caller must already hold mu.
func (s *ConnectionStore) saveLocked() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, storeFile), data, 0o600)
}

// Get returns the connection for a provider and account, or nil if none exists.
// Secret references are resolved transparently; a missing secret yields no credentials.
func (s *ConnectionStore) Get(id ProviderID, account string) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.data.Providers[id][account]
	if !ok {
		return nil, nil
	}
	cp := *conn
	if strings.HasPrefix(cp.Credentials, secretRefPrefix) {
		val, err := s.secrets.Get(strings.TrimPrefix(cp.Credentials, secretRefPrefix))
		if err != nil {
			cp.Credentials = ""
		} else {
			cp.Credentials = val
		}
	}
	return &cp, nil
}

// Save stores p for a provider and account. Absent credentials remove the record.
func (s *ConnectionStore) Save(id ProviderID, account string, p Params) error {
	if !p.Connected() {
		return s.Remove(id, account)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := secrets.SecretKey(string(id), account, "credentials")
	prevCreds, prevErr := s.secrets.Get(key)
	if err := s.secrets.Set(key, string(p.Credentials)); err != nil {
		return fmt.Errorf("failed to store credentials securely: %w", err)
	}

	conn := &Connection{
		Provider:    id,
		Type:        p.Type,
		Credentials: secretRefPrefix + key,
		Items:       p.Items,
	}
	// A reconnect with new credentials starts a new connection.
	if prev, ok := s.data.Providers[id][account]; ok && prev.ConnectedAt != "" && prevErr == nil && prevCreds == string(p.Credentials) {
		conn.ConnectedAt = prev.ConnectedAt
	} else {
		conn.ConnectedAt = s.now().UTC().Format(time.RFC3339)
	}

	if s.data.Providers[id] == nil {
		s.data.Providers[id] = make(map[string]*Connection)
	}
	s.data.Providers[id][account] = conn
	return s.saveLocked()
}

// Remove deletes the connection for a provider and account, including its secret.
func (s *ConnectionStore) Remove(id ProviderID, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, ok := s.data.Providers[id]
	if !ok {
		return nil
	}
	if conn, ok := accounts[account]; ok && strings.HasPrefix(conn.Credentials, secretRefPrefix) {
		_ = s.secrets.Delete(strings.TrimPrefix(conn.Credentials, secretRefPrefix))
	}
	delete(accounts, account)
	if len(accounts) == 0 {
		delete(s.data.Providers, id)
	}
	return s.saveLocked()
}

// Persist returns a Store subscriber that saves every update for id and account.
// Deliveries older than the last saved revision are dropped, so the file always
// ends at the store's latest value.
func (s *ConnectionStore) Persist(id ProviderID, account string, onErr func(error)) func(Params, uint64) {
	var mu sync.Mutex
	var last uint64
	return func(p Params, rev uint64) {
		mu.Lock()
		defer mu.Unlock()
		if rev < last {
			return
		}
		last = rev
		if err := s.Save(id, account, p); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// Statuses returns the local status of every provider for account, in the given order.
func (s *ConnectionStore) Statuses(providers []Provider, account string) []ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]ConnectionStatus, 0, len(providers))
	for _, p := range providers {
		st := ConnectionStatus{Provider: p.ID, Name: p.Name, Account: account}
		if conn, ok := s.data.Providers[p.ID][account]; ok && conn.Credentials != "" {
			st.Connected = true
			st.ItemsLoaded = conn.Items != nil
			st.ItemCount = len(conn.Items)
			st.ConnectedAt = conn.ConnectedAt
		}
		statuses = append(statuses, st)
	}
	return statuses
}
