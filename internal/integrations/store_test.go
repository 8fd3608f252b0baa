package integrations

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moasq/datalink/internal/integrations/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnectionStore(t *testing.T) (*ConnectionStore, *secrets.Memory, string) {
	t.Helper()
	dir := t.TempDir()
	mem := secrets.NewMemory()
	s := NewConnectionStoreWithSecrets(dir, mem)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mem, dir
}

func TestConnectionStore_SaveKeepsCredentialsOutOfFile(t *testing.T) {
	s, mem, dir := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")

	err := s.Save(ProviderNotion, account, Params{
		Credentials: Credentials(`{"access_token":"tok"}`),
		Type:        "Notion",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, storeFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access_token")
	assert.Contains(t, string(raw), secretRefPrefix)

	val, err := mem.Get(secrets.SecretKey("notion", account, "credentials"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"tok"}`, val)

	conn, err := s.Get(ProviderNotion, account)
	require.NoError(t, err)
	require.NotNil(t, conn)
	p := conn.Params()
	assert.True(t, p.Connected())
	assert.Nil(t, p.Items, "items stay absent until loaded")
	assert.Equal(t, "2026-01-02T03:04:05Z", conn.ConnectedAt)
}

func TestConnectionStore_PersistsAcrossInstances(t *testing.T) {
	s, mem, dir := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	require.NoError(t, s.Save(ProviderHubSpot, account, Params{
		Credentials: Credentials(`{"access_token":"hs"}`),
		Type:        "HubSpot",
		Items:       []Item{},
	}))

	reloaded := NewConnectionStoreWithSecrets(dir, mem)
	require.NoError(t, reloaded.Load())

	conn, err := reloaded.Get(ProviderHubSpot, account)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.NotNil(t, conn.Items, "an empty loaded list is not the same as not loaded")
	assert.Empty(t, conn.Items)
}

func TestConnectionStore_SaveWithoutCredentialsRemoves(t *testing.T) {
	s, mem, _ := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	require.NoError(t, s.Save(ProviderAirtable, account, Params{Credentials: Credentials(`"tok"`)}))

	require.NoError(t, s.Save(ProviderAirtable, account, Params{}))

	conn, err := s.Get(ProviderAirtable, account)
	require.NoError(t, err)
	assert.Nil(t, conn)
	_, err = mem.Get(secrets.SecretKey("airtable", account, "credentials"))
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestConnectionStore_LoadMigratesRawCredentials(t *testing.T) {
	dir := t.TempDir()
	legacy := map[string]any{
		"providers": map[string]any{
			"notion": map[string]any{
				"acme:u1": map[string]any{
					"provider":    "notion",
					"type":        "Notion",
					"credentials": `{"access_token":"raw"}`,
					"items":       nil,
				},
			},
		},
	}
	raw, _ := json.Marshal(legacy)
	require.NoError(t, os.WriteFile(filepath.Join(dir, storeFile), raw, 0o600))

	mem := secrets.NewMemory()
	s := NewConnectionStoreWithSecrets(dir, mem)
	require.NoError(t, s.Load())

	onDisk, _ := os.ReadFile(filepath.Join(dir, storeFile))
	assert.False(t, strings.Contains(string(onDisk), "raw"), "raw credentials must leave the file")

	conn, err := s.Get(ProviderNotion, "acme:u1")
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"raw"}`, conn.Credentials)
}

func TestConnectionStore_PersistSubscriber(t *testing.T) {
	s, _, _ := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	store := NewStore(Params{})
	store.Subscribe(s.Persist(ProviderNotion, account, func(err error) { t.Errorf("persist: %v", err) }))

	store.Update(func(p Params) Params {
		p.Credentials = Credentials(`{"token":"abc"}`)
		p.Type = "Notion"
		return p
	})
	store.Update(func(p Params) Params {
		p.Items = []Item{{ID: "1", Name: "Doc", Type: "page"}}
		return p
	})

	statuses := s.Statuses(BuiltinProviders(), account)
	require.Len(t, statuses, 3)
	assert.Equal(t, ProviderNotion, statuses[0].Provider)
	assert.True(t, statuses[0].Connected)
	assert.True(t, statuses[0].ItemsLoaded)
	assert.Equal(t, 1, statuses[0].ItemCount)
	assert.False(t, statuses[1].Connected)
	assert.False(t, statuses[2].Connected)
}

func TestConnectionStore_MissingSecretYieldsNoCredentials(t *testing.T) {
	s, mem, _ := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	require.NoError(t, s.Save(ProviderNotion, account, Params{Credentials: Credentials(`"tok"`)}))
	require.NoError(t, mem.Delete(secrets.SecretKey("notion", account, "credentials")))

	conn, err := s.Get(ProviderNotion, account)
	require.NoError(t, err)
	assert.False(t, conn.Params().Connected())
}

func TestConnectionStore_ReconnectResetsConnectedAt(t *testing.T) {
	s, _, _ := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	first := Params{Credentials: Credentials(`"tok"`), Type: "Notion"}
	require.NoError(t, s.Save(ProviderNotion, account, first))

	s.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	first.Items = []Item{{ID: "1", Name: "Doc"}}
	require.NoError(t, s.Save(ProviderNotion, account, first))
	conn, err := s.Get(ProviderNotion, account)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", conn.ConnectedAt, "same credentials keep the original time")

	require.NoError(t, s.Save(ProviderNotion, account, Params{Credentials: Credentials(`"tok2"`), Type: "Notion"}))
	conn, err = s.Get(ProviderNotion, account)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T00:00:00Z", conn.ConnectedAt)
}

func TestConnectionStore_PersistDropsStaleDeliveries(t *testing.T) {
	s, _, _ := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	persist := s.Persist(ProviderNotion, account, func(err error) { t.Errorf("persist: %v", err) })

	persist(Params{}, 2)
	persist(Params{Credentials: Credentials(`"tok"`)}, 1)

	conn, err := s.Get(ProviderNotion, account)
	require.NoError(t, err)
	assert.Nil(t, conn, "an older revision must not resurrect a removed connection")
}

func TestConnectionStore_PersistMatchesStoreUnderConcurrentUpdates(t *testing.T) {
	s, _, _ := newTestConnectionStore(t)
	account := AccountKey("u1", "acme")
	store := NewStore(Params{})
	store.Subscribe(s.Persist(ProviderNotion, account, func(err error) { t.Errorf("persist: %v", err) }))

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				store.Reset()
				return
			}
			store.Update(func(p Params) Params {
				p.Credentials = Credentials(`"tok"`)
				p.Items = []Item{{ID: ItemID(string(rune('a' + i%26))), Name: "Doc"}}
				return p
			})
		}()
	}
	wg.Wait()

	final, _ := store.Snapshot()
	conn, err := s.Get(ProviderNotion, account)
	require.NoError(t, err)
	if !final.Connected() {
		assert.Nil(t, conn)
		return
	}
	require.NotNil(t, conn)
	assert.Equal(t, `"tok"`, conn.Credentials)
	assert.Equal(t, final.Items, conn.Items)
}
