package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// Provider returns a valid bearer token or fails. How tokens are kept
// fresh is up to the implementation.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f ProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always returns the same token.
type Static string

// Token returns s, or an error when s is empty.
func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("empty access token")
	}
	return string(s), nil
}

// KeyringProvider reads an access token from the system keyring on first
// use and caches it.
type KeyringProvider struct {
	key    string
	lookup func(string) (string, error)

	mu    sync.Mutex
	token string
}

// NewKeyringProvider returns a Provider backed by the keyring entry key.
func NewKeyringProvider(key string) *KeyringProvider {
	return NewLookupProvider(key, Get)
}

// NewLookupProvider is NewKeyringProvider with a custom secret lookup.
func NewLookupProvider(key string, lookup func(string) (string, error)) *KeyringProvider {
	return &KeyringProvider{key: key, lookup: lookup}
}

// Token returns the cached token, loading it from the keyring if needed.
func (p *KeyringProvider) Token(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}
	token, err := p.lookup(p.key)
	if err != nil {
		return "", err
	}
	p.token = strings.TrimSpace(token)
	return p.token, nil
}

// OAuthConfig configures an OAuth refresh-token flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RefreshToken string
	Scopes       []string
}

// OAuthProvider exchanges a long-lived refresh token for short-lived
// access tokens through oauth2.TokenSource, which refreshes on expiry.
type OAuthProvider struct {
	source oauth2.TokenSource
}

// NewOAuthProvider builds an OAuthProvider. ctx is retained by the token
// source for refresh requests (it may carry an *http.Client under
// oauth2.HTTPClient).
func NewOAuthProvider(ctx context.Context, cfg OAuthConfig) (*OAuthProvider, error) {
	if cfg.RefreshToken == "" {
		return nil, errors.New("refresh token is required")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("token url is required")
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       cfg.Scopes,
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return &OAuthProvider{source: oauth2.ReuseTokenSource(nil, ts)}, nil
}

// NewOAuthProviderFromKeyring loads the refresh token from key and the
// client secret from key + "-client-secret" through lookup. A nil lookup
// reads the system keyring.
func NewOAuthProviderFromKeyring(
	ctx context.Context,
	lookup func(string) (string, error),
	key, clientID, tokenURL string,
) (*OAuthProvider, error) {
	if lookup == nil {
		lookup = Get
	}
	refresh, err := lookup(key)
	if err != nil {
		return nil, err
	}
	secret, err := lookup(key + "-client-secret")
	if err != nil {
		return nil, err
	}
	return NewOAuthProvider(ctx, OAuthConfig{
		ClientID:     clientID,
		ClientSecret: strings.TrimSpace(secret),
		TokenURL:     tokenURL,
		RefreshToken: strings.TrimSpace(refresh),
	})
}

// Token returns a valid access token, refreshing it when expired.
func (p *OAuthProvider) Token(context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("refreshing access token: %w", err)
	}
	return tok.AccessToken, nil
}
