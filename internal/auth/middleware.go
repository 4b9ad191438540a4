package auth

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"portal/internal/metrics"
	"portal/internal/models"
	"portal/internal/utils"
	"portal/internal/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Context keys set by Attach
const (
	identityKey = "auth.identity"
	sessionKey  = "auth.session"
)

// Manager owns the login flow and per-request authentication state
type Manager struct {
	authn    Authenticator
	sessions *SessionStore
	sealer   *Sealer
	views    *views.Renderer
	metrics  *metrics.Metrics
	log      *zap.Logger
	baseURL  string
	cookies  cookies
	now      func() time.Time
}

// ManagerConfig collects the Manager's collaborators
type ManagerConfig struct {
	Authenticator Authenticator
	Sessions      *SessionStore
	Sealer        *Sealer
	Views         *views.Renderer
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	BaseURL       string
}

func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		authn:    cfg.Authenticator,
		sessions: cfg.Sessions,
		sealer:   cfg.Sealer,
		views:    cfg.Views,
		metrics:  cfg.Metrics,
		log:      log.Named("auth"),
		baseURL:  cfg.BaseURL,
		cookies:  newCookies(),
		now:      time.Now,
	}
}

// Attach resolves the session cookie and stores the identity in the
// context. Requests without a valid session continue unauthenticated.
func (m *Manager) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookieName)
		if err != nil || sessionID == "" {
			c.Next()
			return
		}

		session, err := m.sessions.Get(c.Request.Context(), sessionID)
		switch {
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
			m.cookies.clear(c, SessionCookieName)
			c.Next()
			return
		case err != nil:
			m.fail(c, http.StatusInternalServerError, "We could not load your session.", err)
			return
		}

		if err := m.sessions.Touch(c.Request.Context(), session); err != nil {
			utils.RequestLog(c, m.log).Warn("failed to extend session", zap.Error(err))
		}

		identity := session.Identity.Data()
		c.Set(sessionKey, session)
		SetIdentity(c, &identity)
		c.Next()
	}
}

// RequireAuth redirects unauthenticated requests to /login and returns
// them to the original URL afterwards.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}
		q := url.Values{}
		q.Set("returnTo", c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, "/login?"+q.Encode())
		c.Abort()
	}
}

// IsAuthenticated reports whether Attach found a live session
func IsAuthenticated(c *gin.Context) bool {
	return CurrentIdentity(c) != nil
}

// SetIdentity marks the request as authenticated as identity
func SetIdentity(c *gin.Context, identity *models.Identity) {
	c.Set(identityKey, identity)
}

// CurrentIdentity returns the request's identity, or nil
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*models.Identity)
	return identity
}

// Login starts the authorization code flow
func (m *Manager) Login(c *gin.Context) {
	tx, err := NewTransaction(c.Query("returnTo"), oauth2.GenerateVerifier())
	if err != nil {
		m.fail(c, http.StatusInternalServerError, "We could not start the login.", err)
		return
	}

	value, err := SealTransaction(m.sealer, tx)
	if err != nil {
		m.fail(c, http.StatusInternalServerError, "We could not start the login.", err)
		return
	}

	m.cookies.set(c, TransactionCookieName, value, TransactionTTL)
	c.Redirect(http.StatusFound, m.authn.AuthCodeURL(tx))
}

// Callback completes the login, creates a session and redirects to the
// page the user originally asked for.
func (m *Manager) Callback(c *gin.Context) {
	value, cookieErr := c.Cookie(TransactionCookieName)
	m.cookies.clear(c, TransactionCookieName)

	if errParam := c.Query("error"); errParam != "" {
		m.metrics.Login(metrics.LoginFailure)
		utils.RequestLog(c, m.log).Warn("identity provider returned an error",
			zap.String("error", errParam),
			zap.String("error_description", c.Query("error_description")))
		m.views.Error(c, http.StatusBadRequest, "The login was not completed: "+errParam)
		return
	}

	if cookieErr != nil {
		m.loginFailed(c, http.StatusBadRequest, "Your login expired, please try again.", ErrInvalidTransaction)
		return
	}
	tx, err := OpenTransaction(m.sealer, value, m.now())
	if err != nil {
		m.loginFailed(c, http.StatusBadRequest, "Your login expired, please try again.", err)
		return
	}
	if c.Query("state") != tx.State {
		m.loginFailed(c, http.StatusBadRequest, "Invalid login state, please try again.", ErrInvalidState)
		return
	}

	result, err := m.authn.Exchange(c.Request.Context(), c.Query("code"), tx)
	if err != nil {
		m.loginFailed(c, http.StatusUnauthorized, "We could not verify your login.", err)
		return
	}

	session, err := m.sessions.Create(c.Request.Context(), result.Identity, result.RawIDToken)
	if err != nil {
		m.loginFailed(c, http.StatusInternalServerError, "We could not create your session.", err)
		return
	}

	m.metrics.Login(metrics.LoginSuccess)
	utils.RequestLog(c, m.log).Info("user logged in", zap.String("sub", result.Identity.Subject))
	m.cookies.set(c, SessionCookieName, session.ID, session.ExpiresAt.Sub(m.now()))
	c.Redirect(http.StatusFound, tx.ReturnTo)
}

// Logout ends the local session and, when configured, the provider session
func (m *Manager) Logout(c *gin.Context) {
	var idTokenHint string
	if v, ok := c.Get(sessionKey); ok {
		session := v.(*models.Session)
		idTokenHint = session.IDToken
		if err := m.sessions.Delete(c.Request.Context(), session.ID); err != nil {
			m.fail(c, http.StatusInternalServerError, "We could not log you out.", err)
			return
		}
	}
	m.cookies.clear(c, SessionCookieName)

	returnTo := m.baseURL
	if returnTo == "" {
		returnTo = "/"
	}
	if logoutURL := m.authn.LogoutURL(idTokenHint, returnTo); logoutURL != "" {
		c.Redirect(http.StatusFound, logoutURL)
		return
	}
	c.Redirect(http.StatusFound, returnTo)
}

func (m *Manager) loginFailed(c *gin.Context, status int, message string, err error) {
	m.metrics.Login(metrics.LoginFailure)
	m.fail(c, status, message, err)
}

func (m *Manager) fail(c *gin.Context, status int, message string, err error) {
	_ = c.Error(err)
	utils.RequestLog(c, m.log).Error(message, zap.Int("status", status), zap.Error(err))
	m.views.Error(c, status, message)
}
