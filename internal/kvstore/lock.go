package kvstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/config"
)

// lease is the value stored under a lock key.
type lease struct {
	Holder    string `json:"holder"`
	ExpiresAt int64  `json:"expires_at"` // unix nanos
}

func (l *lease) expired(now time.Time) bool {
	return now.UnixNano() >= l.ExpiresAt
}

// AcquireLock attempts to take the named lock for holder, valid for ttl.
// A lock held by a holder whose lease has expired is treated as free and
// can be stolen (§4.7: "a crashed holder eventually loses the lock").
// Reacquiring the same lock under the same holder extends the lease.
func (s *Store) AcquireLock(key, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	want := lease{Holder: holder, ExpiresAt: now.Add(ttl).UnixNano()}
	wantBytes, err := json.Marshal(want)
	if err != nil {
		return false, fmt.Errorf("failed to encode lease: %w", err)
	}

	for {
		cur, found, err := s.Get(key)
		if err != nil {
			return false, fmt.Errorf("failed to read lock %q: %w", key, err)
		}

		if !found {
			ok, err := s.CompareAndSwap(key, nil, wantBytes)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			continue
		}

		var held lease
		if err := json.Unmarshal(cur, &held); err != nil {
			return false, fmt.Errorf("failed to decode lease for %q: %w", key, err)
		}

		if held.Holder == holder {
			ok, err := s.CompareAndSwap(key, cur, wantBytes)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			continue
		}

		if held.expired(now) {
			ok, err := s.CompareAndSwap(key, cur, wantBytes)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			continue
		}

		return false, fmt.Errorf("%w: %q held by %q", config.ErrLockHeld, key, held.Holder)
	}
}

// ReleaseLock drops the named lock if it is currently held by holder. It is
// not an error to release a lock that has already expired or been taken
// over by another holder; the call simply becomes a no-op in that case.
func (s *Store) ReleaseLock(key, holder string) error {
	cur, found, err := s.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read lock %q: %w", key, err)
	}
	if !found {
		return nil
	}

	var held lease
	if err := json.Unmarshal(cur, &held); err != nil {
		return fmt.Errorf("failed to decode lease for %q: %w", key, err)
	}
	if held.Holder != holder {
		return nil
	}

	return s.Delete(key)
}
