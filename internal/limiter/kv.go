package limiter

import (
	"context"
	"encoding/hex"
	"time"
)

// Backend is the subset of the key-value store used by KV.
type Backend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// KV is a fixed-window limiter with lockout stored in an expiring key-value store.
// The failure counter lives for one window from the first failure; reaching
// maxFails sets a block key that expires after blockFor.
type KV struct {
	b        Backend
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewKV constructs a key-value backed limiter.
func NewKV(b Backend, window time.Duration, maxFails int, blockFor time.Duration) *KV {
	return &KV{b: b, window: window, maxFails: maxFails, blockFor: blockFor}
}

func keys(username string, ipHash []byte) (fails, block string) {
	id := username + ":" + hex.EncodeToString(ipHash)
	return "limiter:fails:" + id, "limiter:block:" + id
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *KV) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	_, blockKey := keys(username, ipHash)
	blocked, err := l.b.Has(ctx, blockKey)
	if err != nil {
		return false, 0, err
	}
	if !blocked {
		return true, 0, nil
	}
	left, err := l.b.TTL(ctx, blockKey)
	if err != nil {
		return false, 0, err
	}
	return false, left, nil
}

// Success resets counters for (username, ip).
func (l *KV) Success(ctx context.Context, username string, ipHash []byte) error {
	failKey, blockKey := keys(username, ipHash)
	if err := l.b.Delete(ctx, failKey); err != nil {
		return err
	}
	return l.b.Delete(ctx, blockKey)
}

// Failure records a failed attempt; may set a block for blockFor.
func (l *KV) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	failKey, blockKey := keys(username, ipHash)
	fails, err := l.b.Incr(ctx, failKey, l.window)
	if err != nil {
		return false, 0, err
	}
	if fails < int64(l.maxFails) {
		return false, 0, nil
	}
	if err := l.b.Set(ctx, blockKey, []byte{1}, l.blockFor); err != nil {
		return false, 0, err
	}
	if err := l.b.Delete(ctx, failKey); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
