package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ResetTokenGuard remembers consumed password-reset tokens so a link
// pulled from an inbox or a log cannot be replayed within its validity
// window.
type ResetTokenGuard interface {
	// MarkUsed records the token and reports whether this was its first use.
	MarkUsed(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

// MemoryResetTokenGuard is the single-process implementation. Entries
// expire with the token itself, so the map stays small.
type MemoryResetTokenGuard struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func NewMemoryResetTokenGuard() *MemoryResetTokenGuard {
	return &MemoryResetTokenGuard{used: make(map[string]time.Time)}
}

func (g *MemoryResetTokenGuard) MarkUsed(_ context.Context, token string, ttl time.Duration) (bool, error) {
	key := hashResetToken(token)
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	for k, expiresAt := range g.used {
		if now.After(expiresAt) {
			delete(g.used, k)
		}
	}
	if expiresAt, ok := g.used[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	g.used[key] = now.Add(ttl)
	return true, nil
}

// hashResetToken keys the guard on a digest so raw tokens never sit in
// memory or Redis.
func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
