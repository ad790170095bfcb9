package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokenkit/internal/credential"
	"github.com/giantswarm/tokenkit/internal/expiry"
	"github.com/giantswarm/tokenkit/internal/fingerprint"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Dir: filepath.Join(t.TempDir(), "tokens"), Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return s
}

func testRecord(resource string) *Record {
	rec := &Record{
		Version:  1,
		Host:     "https://login.microsoftonline.com/",
		Tenant:   "contoso",
		AuthType: "client_credentials",
		Client:   fingerprint.ClientIdentity{ClientID: "11111111-1111-1111-1111-111111111111", CredentialKind: "secret"},
		Resource: resource,
		Credential: &credential.Set{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			Expiry:       fixedNow.Add(time.Hour),
			ExpirySource: expiry.SourceRelative,
			Extra:        map[string]string{"ext_expires_in": "3599"},
		},
	}
	rec.Hash = fingerprint.Hash(rec.Inputs())
	return rec
}

func TestNew_CreatesPrivateDirectory(t *testing.T) {
	s := newStore(t)
	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestResolveDir(t *testing.T) {
	dir, err := ResolveDir("/explicit")
	require.NoError(t, err)
	assert.Equal(t, "/explicit", dir)

	t.Setenv(EnvCacheDir, "/from-env")
	dir, err = ResolveDir("")
	require.NoError(t, err)
	assert.Equal(t, "/from-env", dir)

	t.Setenv(EnvCacheDir, "")
	t.Setenv("HOME", "/home/tester")
	dir, err = ResolveDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", DefaultDir), dir)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newStore(t)
	rec := testRecord("https://management.example.com/")
	before := rec.Credential.Clone()

	require.NoError(t, s.Save(rec))

	info, err := os.Stat(filepath.Join(s.Dir(), rec.Hash))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, ok := s.Load(rec.Hash)
	require.True(t, ok)
	assert.Equal(t, before, loaded.Credential)
	assert.Equal(t, rec.Inputs(), loaded.Inputs())
	assert.Equal(t, fixedNow, loaded.CreatedAt)
	assert.Equal(t, rec.Hash, fingerprint.Hash(loaded.Inputs()))
}

func TestSave_ReplacesWholeFile(t *testing.T) {
	s := newStore(t)
	rec := testRecord("https://management.example.com/")
	require.NoError(t, s.Save(rec))

	rec.Credential.AccessToken = "rotated"
	rec.Credential.Extra = nil
	require.NoError(t, s.Save(rec))

	loaded, ok := s.Load(rec.Hash)
	require.True(t, ok)
	assert.Equal(t, "rotated", loaded.Credential.AccessToken)
	assert.Nil(t, loaded.Credential.Extra)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSave_Rejects(t *testing.T) {
	s := newStore(t)

	rec := testRecord("r")
	rec.Hash = "../../escape"
	assert.Error(t, s.Save(rec))

	rec = testRecord("r")
	rec.Credential = nil
	assert.Error(t, s.Save(rec))
}

func TestLoad_Missing(t *testing.T) {
	s := newStore(t)
	_, ok := s.Load(testRecord("r").Hash)
	assert.False(t, ok)

	_, ok = s.Load("not-a-hash")
	assert.False(t, ok)
}

func TestLoad_CorruptRecordIsDeleted(t *testing.T) {
	tests := map[string]string{
		"not json":        "{{{",
		"wrong hash":      `{"hash":"00000000000000000000000000000000","credential":{"access_token":"a"}}`,
		"no credential":   `{"hash":"%s"}`,
		"no access token": `{"hash":"%s","credential":{"refresh_token":"r"}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			hash := testRecord(name).Hash
			path := filepath.Join(s.Dir(), hash)
			require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(content, "%s", hash)), 0o600))

			_, ok := s.Load(hash)
			assert.False(t, ok)
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	rec := testRecord("r")
	require.NoError(t, s.Save(rec))

	require.NoError(t, s.Delete(rec.Hash))
	_, ok := s.Load(rec.Hash)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(rec.Hash), "deleting twice is fine")
	assert.Error(t, s.Delete("bad"))
}

func TestListAndClean(t *testing.T) {
	s := newStore(t)
	a := testRecord("https://a.example.com/")
	b := testRecord("https://b.example.com/")
	require.NoError(t, s.Save(a))
	require.NoError(t, s.Save(b))

	corrupt := testRecord("https://c.example.com/").Hash
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), corrupt), []byte("nope"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "README"), []byte("keep"), 0o600))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	hashes := []string{records[0].Hash, records[1].Hash}
	assert.ElementsMatch(t, []string{a.Hash, b.Hash}, hashes)

	_, err = os.Stat(filepath.Join(s.Dir(), corrupt))
	assert.True(t, os.IsNotExist(err), "corrupt record is discarded while listing")

	removed, err := s.Clean()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	records, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = os.Stat(filepath.Join(s.Dir(), "README"))
	assert.NoError(t, err, "unrelated files are left alone")
}
