package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"portal/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// SessionCookieName is the name of the cookie that stores the session ID
	SessionCookieName = "portal_session"
	// TransactionCookieName is the name of the cookie that holds the sealed login transaction
	TransactionCookieName = "portal_auth_tx"
	// SessionIDLength is the length of the random session ID in bytes
	SessionIDLength = 32
	// StateLength is the length of the random state and nonce in bytes
	StateLength = 32
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore persists sessions in the database
type SessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// Create stores a new session for the identity
func (s *SessionStore) Create(ctx context.Context, identity models.Identity, rawIDToken string) (*models.Session, error) {
	sessionID, err := GenerateRandomString(SessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &models.Session{
		ID:           sessionID,
		Subject:      identity.Subject,
		Identity:     datatypes.NewJSONType(identity),
		IDToken:      rawIDToken,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(models.SessionDuration),
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

// Get loads a live session. Expired sessions are deleted and reported as
// ErrSessionExpired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve session: %w", err)
	}

	if session.IsExpired(s.now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// Touch extends the idle window when the last write is stale
func (s *SessionStore) Touch(ctx context.Context, session *models.Session) error {
	now := s.now()
	if !session.NeedsTouch(now) {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(session).Update("last_active_at", now).Error; err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete removes a session; deleting a missing session is not an error
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// cookies sets and clears the HttpOnly cookies the adapter uses
type cookies struct {
	secure bool
}

func newCookies() cookies {
	return cookies{secure: gin.Mode() != gin.DebugMode}
}

func (k cookies) set(c *gin.Context, name, value string, maxAge time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(maxAge.Seconds()), "/", "", k.secure, true)
}

func (k cookies) clear(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", k.secure, true)
}
