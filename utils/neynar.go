package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danz-app/danz/config"
)

var (
	// ErrNeynarNotConfigured is returned when NEYNAR_API_KEY is empty.
	ErrNeynarNotConfigured = errors.New("neynar is not configured")
	// ErrFarcasterUserNotFound is returned when Neynar knows no user for the fid.
	ErrFarcasterUserNotFound = errors.New("farcaster user not found")
)

var neynarHTTPClient = &http.Client{Timeout: 5 * time.Second}

// FarcasterUser is the subset of the Neynar user object DANZ uses.
type FarcasterUser struct {
	FID               int64    `json:"fid"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"display_name"`
	PfpURL            string   `json:"pfp_url"`
	VerifiedAddresses []string `json:"verified_addresses,omitempty"`
}

type neynarBulkResp struct {
	Users []struct {
		FID               int64  `json:"fid"`
		Username          string `json:"username"`
		DisplayName       string `json:"display_name"`
		PfpURL            string `json:"pfp_url"`
		VerifiedAddresses struct {
			EthAddresses []string `json:"eth_addresses"`
		} `json:"verified_addresses"`
	} `json:"users"`
}

// in-memory TTL cache in front of Redis
type farcasterEntry struct {
	user      FarcasterUser
	expiresAt time.Time
}

var (
	farcasterMu    sync.RWMutex
	farcasterCache = make(map[int64]farcasterEntry)
	farcasterTTL   = 10 * time.Minute
)

// NeynarConfigured reports whether profile lookups are possible.
func NeynarConfigured() bool {
	return config.Get().NeynarAPIKey != ""
}

// FetchFarcasterUser returns the Farcaster profile for fid (memory, then Redis, then Neynar).
func FetchFarcasterUser(ctx context.Context, fid int64) (*FarcasterUser, error) {
	cfg := config.Get()
	if cfg.NeynarAPIKey == "" {
		return nil, ErrNeynarNotConfigured
	}
	if fid <= 0 {
		return nil, ErrFarcasterUserNotFound
	}
	if u, ok := farcasterCacheGet(fid); ok {
		return &u, nil
	}
	var cached FarcasterUser
	if CacheGetJSON(farcasterKey(fid), &cached) && cached.FID == fid {
		farcasterCacheSet(cached)
		return &cached, nil
	}

	url := fmt.Sprintf("%s/v2/farcaster/user/bulk?fids=%d", cfg.NeynarBaseURL, fid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", cfg.NeynarAPIKey)
	resp, err := neynarHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neynar request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrFarcasterUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("neynar status %d", resp.StatusCode)
	}
	var body neynarBulkResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("neynar decode: %w", err)
	}
	if len(body.Users) == 0 {
		return nil, ErrFarcasterUserNotFound
	}
	raw := body.Users[0]
	u := FarcasterUser{
		FID:               raw.FID,
		Username:          raw.Username,
		DisplayName:       raw.DisplayName,
		PfpURL:            raw.PfpURL,
		VerifiedAddresses: raw.VerifiedAddresses.EthAddresses,
	}
	farcasterCacheSet(u)
	CacheSetJSON(farcasterKey(fid), u, farcasterTTL)
	return &u, nil
}

func farcasterKey(fid int64) string {
	return CacheKeyFarcasterUser + strconv.FormatInt(fid, 10)
}

func farcasterCacheGet(fid int64) (FarcasterUser, bool) {
	farcasterMu.RLock()
	e, ok := farcasterCache[fid]
	farcasterMu.RUnlock()
	if !ok {
		return FarcasterUser{}, false
	}
	if time.Now().After(e.expiresAt) {
		farcasterMu.Lock()
		delete(farcasterCache, fid)
		farcasterMu.Unlock()
		return FarcasterUser{}, false
	}
	return e.user, true
}

func farcasterCacheSet(u FarcasterUser) {
	farcasterMu.Lock()
	farcasterCache[u.FID] = farcasterEntry{user: u, expiresAt: time.Now().Add(farcasterTTL)}
	farcasterMu.Unlock()
}
