package token

import (
	"time"

	"github.com/giantswarm/tokenkit/internal/cache"
)

// Info describes a cached token without exposing its secrets.
type Info struct {
	Hash      string
	AuthType  string
	Tenant    string
	Resource  string
	Scopes    []string
	ClientID  string
	Username  string
	Expiry    time.Time
	Refresh   bool
	Valid     bool
	CreatedAt time.Time
}

// List describes every record in store, oldest first.
func List(store *Store) ([]*Info, error) {
	records, err := store.List()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	infos := make([]*Info, 0, len(records))
	for _, rec := range records {
		infos = append(infos, infoFor(rec, now))
	}
	return infos, nil
}

func infoFor(rec *cache.Record, now time.Time) *Info {
	return &Info{
		Hash:      rec.Hash,
		AuthType:  rec.AuthType,
		Tenant:    rec.Tenant,
		Resource:  rec.Resource,
		Scopes:    rec.Scopes,
		ClientID:  rec.Client.ClientID,
		Username:  rec.Client.Username,
		Expiry:    rec.Credential.Expiry,
		Refresh:   rec.Credential.RefreshToken != "",
		Valid:     rec.Credential.Valid(now),
		CreatedAt: rec.CreatedAt,
	}
}

// Delete removes the record stored under hash.
func Delete(store *Store, hash string) error {
	return store.Delete(hash)
}

// Clean removes every record from store and returns how many were removed.
func Clean(store *Store) (int, error) {
	return store.Clean()
}
