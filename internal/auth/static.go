package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrNoCredential means no access token has been installed yet.
var ErrNoCredential = errors.New("no access token available")

// StaticProvider holds the bearer credential for the current login. The
// marketplace auth flow lives outside this client; the webview hands the
// token over after login and refreshes it in place.
type StaticProvider struct {
	mu    sync.RWMutex
	token string
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// SetToken replaces the credential, e.g. after a refresh.
func (p *StaticProvider) SetToken(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

func (p *StaticProvider) AccessToken(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" {
		return "", ErrNoCredential
	}
	return p.token, nil
}
