package quickbooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// settingsDoc is the id of the token document in the settings collection
const settingsDoc = "quickbooks"

// RefreshWindow is how close to expiry a token is refreshed
const RefreshWindow = 5 * time.Minute

const (
	authURL         = "https://appcenter.intuit.com/connect/oauth2"
	accountingScope = "com.intuit.quickbooks.accounting"
)

// Token is the stored OAuth state for one connected company
type Token struct {
	AccessToken  string
	RefreshToken string
	RealmID      string
	ExpiresAt    time.Time
}

// NeedsRefresh reports whether the token expires within RefreshWindow of now
func (t Token) NeedsRefresh(now time.Time) bool {
	return t.ExpiresAt.Before(now.Add(RefreshWindow))
}

// expiresAt is stored as epoch milliseconds
func tokenFromFields(f domain.Fields) Token {
	return Token{
		AccessToken:  domain.StringField(f, "accessToken"),
		RefreshToken: domain.StringField(f, "refreshToken"),
		RealmID:      domain.StringField(f, "realmId"),
		ExpiresAt:    time.UnixMilli(domain.IntField(f, "expiresAt")),
	}
}

// OAuthConfig holds the app credentials registered with Intuit
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
}

// TokenStore keeps the QuickBooks token in settings/quickbooks and refreshes
// it on demand.
type TokenStore struct {
	store store.Store
	oauth *oauth2.Config
	http  *http.Client
	now   func() time.Time
}

// NewTokenStore creates a token store. A nil httpClient uses http.DefaultClient.
func NewTokenStore(s store.Store, cfg OAuthConfig, httpClient *http.Client) *TokenStore {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenStore{
		store: s,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{accountingScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http: httpClient,
		now:  time.Now,
	}
}

func (ts *TokenStore) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, ts.http)
}

// AuthCodeURL returns the consent page URL that starts a connection
func (ts *TokenStore) AuthCodeURL(state string) string {
	return ts.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and stores them,
// replacing any previous connection.
func (ts *TokenStore) Exchange(ctx context.Context, code, realmID string) error {
	if code == "" || realmID == "" {
		return fmt.Errorf("authorization code and realm id are required")
	}
	tok, err := ts.oauth.Exchange(ts.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	now := ts.now()
	return ts.store.Upsert(ctx, domain.CollectionSettings, settingsDoc, domain.Fields{
		"accessToken":  tok.AccessToken,
		"refreshToken": tok.RefreshToken,
		"expiresAt":    ts.expiry(tok, now).UnixMilli(),
		"realmId":      realmID,
		"connectedAt":  now,
		"lastSync":     nil,
	})
}

// Valid returns a token good for at least RefreshWindow, refreshing and
// persisting a new one when needed. A missing connection or a rejected
// refresh wraps domain.ErrReconnectRequired.
func (ts *TokenStore) Valid(ctx context.Context) (Token, error) {
	doc, err := ts.store.Get(ctx, domain.CollectionSettings, settingsDoc)
	if errors.Is(err, domain.ErrNotFound) {
		return Token{}, fmt.Errorf("quickbooks not connected: %w", domain.ErrReconnectRequired)
	}
	if err != nil {
		return Token{}, fmt.Errorf("load quickbooks token: %w", err)
	}

	tok := tokenFromFields(doc.Data)
	now := ts.now()
	if !tok.NeedsRefresh(now) {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return Token{}, fmt.Errorf("quickbooks token expired without refresh token: %w", domain.ErrReconnectRequired)
	}

	// An empty access token forces the source to refresh
	src := ts.oauth.TokenSource(ts.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return Token{}, fmt.Errorf("%w: refresh quickbooks token: %w", domain.ErrReconnectRequired, err)
	}

	tok.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		tok.RefreshToken = fresh.RefreshToken
	}
	tok.ExpiresAt = ts.expiry(fresh, now)

	err = ts.store.Upsert(ctx, domain.CollectionSettings, settingsDoc, domain.Fields{
		"accessToken":  tok.AccessToken,
		"refreshToken": tok.RefreshToken,
		"expiresAt":    tok.ExpiresAt.UnixMilli(),
	}, "accessToken", "refreshToken", "expiresAt")
	if err != nil {
		return Token{}, fmt.Errorf("save refreshed quickbooks token: %w", err)
	}
	return tok, nil
}

// expiry prefers the server's expires_in; Intuit access tokens last an hour
func (ts *TokenStore) expiry(tok *oauth2.Token, now time.Time) time.Time {
	if secs, ok := tok.Extra("expires_in").(float64); ok && secs > 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return now.Add(time.Hour)
}
