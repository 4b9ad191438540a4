package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"portal/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var ErrNonceMismatch = errors.New("id token nonce mismatch")

// LoginResult is the outcome of a successful code exchange
type LoginResult struct {
	Identity   models.Identity
	RawIDToken string
}

// Authenticator is the identity provider as seen by the login handlers
type Authenticator interface {
	// AuthCodeURL builds the authorization redirect for a transaction
	AuthCodeURL(tx *Transaction) string
	// Exchange trades an authorization code for a verified identity
	Exchange(ctx context.Context, code string, tx *Transaction) (*LoginResult, error)
	// LogoutURL returns where to send the browser to end the provider
	// session, or "" when the provider has no logout endpoint.
	LogoutURL(idTokenHint, returnTo string) string
}

// OIDCConfig describes the client registration at the provider
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Auth0Logout uses Auth0's /v2/logout instead of end_session_endpoint
	Auth0Logout bool
}

// OIDCAuthenticator implements Authenticator with OpenID Connect discovery
type OIDCAuthenticator struct {
	config             OIDCConfig
	provider           *oidc.Provider
	verifier           *oidc.IDTokenVerifier
	oauth2Config       *oauth2.Config
	endSessionEndpoint string
}

// NewOIDCAuthenticator discovers the provider at IssuerURL
func NewOIDCAuthenticator(ctx context.Context, config OIDCConfig) (*OIDCAuthenticator, error) {
	if config.IssuerURL == "" || config.ClientID == "" || config.RedirectURL == "" {
		return nil, errors.New("issuer URL, client ID and redirect URL are required")
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	var metadata struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}

	return &OIDCAuthenticator{
		config:   config,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
		},
		endSessionEndpoint: metadata.EndSessionEndpoint,
	}, nil
}

func (a *OIDCAuthenticator) AuthCodeURL(tx *Transaction) string {
	return a.oauth2Config.AuthCodeURL(tx.State,
		oidc.Nonce(tx.Nonce),
		oauth2.S256ChallengeOption(tx.CodeVerifier),
	)
}

func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string, tx *Transaction) (*LoginResult, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	token, err := a.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(tx.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("missing id_token in token response")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if idToken.Nonce != tx.Nonce {
		return nil, ErrNonceMismatch
	}

	var identity models.Identity
	if err := idToken.Claims(&identity); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	identity.Subject = idToken.Subject

	// Some providers keep profile claims out of the ID token
	if identity.Email == "" && identity.GivenName == "" {
		if err := a.mergeUserInfo(ctx, token, &identity); err != nil {
			return nil, err
		}
	}

	identity.Normalize()
	return &LoginResult{Identity: identity, RawIDToken: rawIDToken}, nil
}

func (a *OIDCAuthenticator) mergeUserInfo(ctx context.Context, token *oauth2.Token, identity *models.Identity) error {
	info, err := a.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	if info.Subject != identity.Subject {
		return fmt.Errorf("userinfo subject %q does not match id token", info.Subject)
	}

	var extra models.Identity
	if err := info.Claims(&extra); err != nil {
		return fmt.Errorf("failed to parse userinfo claims: %w", err)
	}
	mergeIdentity(identity, extra)
	return nil
}

func (a *OIDCAuthenticator) LogoutURL(idTokenHint, returnTo string) string {
	if a.config.Auth0Logout {
		q := url.Values{}
		q.Set("client_id", a.config.ClientID)
		q.Set("returnTo", returnTo)
		return strings.TrimRight(a.config.IssuerURL, "/") + "/v2/logout?" + q.Encode()
	}
	if a.endSessionEndpoint == "" {
		return ""
	}

	q := url.Values{}
	q.Set("client_id", a.config.ClientID)
	q.Set("post_logout_redirect_uri", returnTo)
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	sep := "?"
	if strings.Contains(a.endSessionEndpoint, "?") {
		sep = "&"
	}
	return a.endSessionEndpoint + sep + q.Encode()
}

// mergeIdentity fills blank fields of dst from src
func mergeIdentity(dst *models.Identity, src models.Identity) {
	if dst.GivenName == "" {
		dst.GivenName = src.GivenName
	}
	if dst.FamilyName == "" {
		dst.FamilyName = src.FamilyName
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Nickname == "" {
		dst.Nickname = src.Nickname
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Picture == nil {
		dst.Picture = src.Picture
	}
}
