// Package session provides the anonymous per-installation session token.
// The token is a soft analytics key for visit tracking, never a credential.
package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// StorageKey is the local storage key holding the token.
const StorageKey = "cve_session_id"

const (
	tokenPrefix    = "user_"
	suffixLength   = 9
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Storage is the durable key/value store the token lives in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
	Delete(ctx context.Context, key string) error
}

type Provider struct {
	storage Storage
	now     func() time.Time
}

func NewProvider(storage Storage) *Provider {
	return &Provider{storage: storage, now: time.Now}
}

// GetOrCreateSessionID returns the stored token, generating and persisting
// one on first use. Storage is written at most once per token.
func (p *Provider) GetOrCreateSessionID(ctx context.Context) (string, error) {
	token, ok, err := p.storage.Get(ctx, StorageKey)
	if err != nil {
		return "", fmt.Errorf("read session id: %w", err)
	}
	if ok && token != "" {
		return token, nil
	}

	token, err = p.storage.SetIfAbsent(ctx, StorageKey, NewToken(p.now()))
	if err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	return token, nil
}

// Reset forgets the stored token so the next call generates a new one.
func (p *Provider) Reset(ctx context.Context) error {
	if err := p.storage.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("reset session id: %w", err)
	}
	return nil
}

// NewToken builds "user_<unix millis>_<9 base-36 chars>". The suffix keeps
// tokens minted in the same millisecond apart; it is not cryptographic.
func NewToken(now time.Time) string {
	var b strings.Builder
	b.WriteString(tokenPrefix)
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for range suffixLength {
		b.WriteByte(suffixAlphabet[rand.IntN(len(suffixAlphabet))])
	}
	return b.String()
}
