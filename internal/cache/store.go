// Package cache persists token snapshots on disk, one file per fingerprint.
//
// SECURITY: records hold bearer and refresh tokens. The following measures
// apply:
//   - Files are created with 0600 permissions (owner read/write only)
//   - The directory is created with 0700 permissions (owner only)
//   - Token values are NEVER logged, only fingerprints and identity fields
//   - Client secrets and passwords are never part of a record
//
// Writes replace the whole file through a temp file and a rename, so
// concurrent readers never observe a partial record. There is no locking:
// the last writer wins.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/internal/credential"
	"github.com/giantswarm/tokenkit/internal/fingerprint"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// EnvCacheDir overrides the cache directory.
const EnvCacheDir = "TOKENKIT_CACHE_DIR"

// DefaultDir is the cache directory relative to the home directory.
const DefaultDir = ".config/tokenkit/tokens"

// Record is the persisted snapshot of a token: its identity fields and a
// detached copy of its credential set.
type Record struct {
	Hash          string                     `json:"hash"`
	Version       int                        `json:"version"`
	Host          string                     `json:"host"`
	Tenant        string                     `json:"tenant"`
	AuthType      string                     `json:"auth_type"`
	Client        fingerprint.ClientIdentity `json:"client"`
	Resource      string                     `json:"resource,omitempty"`
	Scopes        []string                   `json:"scopes,omitempty"`
	AuthorizeArgs map[string]string          `json:"authorize_args,omitempty"`
	TokenArgs     map[string]string          `json:"token_args,omitempty"`
	Credential    *credential.Set            `json:"credential"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// Inputs returns the fingerprint inputs the record was stored under.
func (r *Record) Inputs() fingerprint.Inputs {
	return fingerprint.Inputs{
		Version:       r.Version,
		Host:          r.Host,
		Tenant:        r.Tenant,
		AuthType:      r.AuthType,
		Client:        r.Client,
		Resource:      r.Resource,
		Scopes:        r.Scopes,
		AuthorizeArgs: r.AuthorizeArgs,
		TokenArgs:     r.TokenArgs,
	}
}

// Store is a directory of records.
type Store struct {
	dir string
	now func() time.Time
}

// Config configures a Store.
type Config struct {
	// Dir is the cache directory. Empty means $TOKENKIT_CACHE_DIR, then
	// ~/.config/tokenkit/tokens.
	Dir string
	Now func() time.Time
}

// ResolveDir applies the directory precedence of Config.Dir.
func ResolveDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	if env := os.Getenv(EnvCacheDir); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultDir), nil
}

// New opens the store, creating its directory if needed.
func New(cfg Config) (*Store, error) {
	dir, err := ResolveDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token cache directory: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{dir: dir, now: now}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(hash string) string {
	return filepath.Join(s.dir, hash)
}

// Save writes rec under rec.Hash, replacing any previous record.
func (s *Store) Save(rec *Record) error {
	if !fingerprint.IsHash(rec.Hash) {
		return fmt.Errorf("invalid record fingerprint %q", rec.Hash)
	}
	if rec.Credential == nil {
		return fmt.Errorf("record %s has no credential set", rec.Hash)
	}

	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := s.writeFile(rec.Hash, data); err != nil {
		logging.Audit("token_store_failed",
			slog.String("hash", rec.Hash),
			slog.String("auth_type", rec.AuthType),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to persist token: %w", err)
	}

	logging.Audit("token_stored",
		slog.String("hash", rec.Hash),
		slog.String("auth_type", rec.AuthType),
		slog.String("tenant", rec.Tenant),
		slog.String("expiry", rec.Credential.Expiry.Format(time.RFC3339)),
		slog.Bool("has_refresh_token", rec.Credential.RefreshToken != ""),
	)
	return nil
}

func (s *Store) writeFile(hash string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+hash+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path(hash)); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Load returns the record stored under hash. A missing record is a miss; a
// corrupt one is deleted and reported as a miss.
func (s *Store) Load(hash string) (*Record, bool) {
	if !fingerprint.IsHash(hash) {
		return nil, false
	}

	// #nosec G304 -- the path is built from a validated fingerprint
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.discard(hash, err)
		}
		return nil, false
	}

	rec, err := decode(hash, data)
	if err != nil {
		s.discard(hash, err)
		return nil, false
	}
	return rec, true
}

func decode(hash string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.Hash != hash {
		return nil, fmt.Errorf("record fingerprint %q does not match file name", rec.Hash)
	}
	if rec.Credential == nil || rec.Credential.AccessToken == "" {
		return nil, errors.New("record has no access token")
	}
	return &rec, nil
}

// discard removes an unreadable record. The failure is logged, never returned.
func (s *Store) discard(hash string, cause error) {
	logging.Warn("Cache", "Discarding token record %s: %v", hash, fmt.Errorf("%w: %v", autherr.ErrCacheCorrupt, cause))
	if err := os.Remove(s.path(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Error("Cache", err, "Failed to remove corrupt record %s", hash)
	}
}

// Delete removes the record stored under hash. Deleting a missing record is
// not an error.
func (s *Store) Delete(hash string) error {
	if !fingerprint.IsHash(hash) {
		return fmt.Errorf("invalid record fingerprint %q", hash)
	}
	if err := os.Remove(s.path(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Audit("token_delete_failed",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	logging.Audit("token_deleted", slog.String("hash", hash))
	return nil
}

// List returns every readable record, oldest first. Corrupt records are
// discarded on the way.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || !fingerprint.IsHash(entry.Name()) {
			continue
		}
		if rec, ok := s.Load(entry.Name()); ok {
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Hash < records[j].Hash
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Clean removes every record and returns how many were removed.
func (s *Store) Clean() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read token cache directory: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !fingerprint.IsHash(entry.Name()) {
			continue
		}
		if err := os.Remove(s.path(entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	logging.Audit("tokens_cleared", slog.Int("count", removed))
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to remove %d token records: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}
