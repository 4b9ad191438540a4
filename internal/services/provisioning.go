package services

import (
	"context"
	"errors"
	"fmt"

	"portal/internal/metrics"
	"portal/internal/models"

	"go.uber.org/zap"
)

// Profile is the subset of an authenticated identity mirrored locally
type Profile struct {
	Subject    string
	GivenName  string
	FamilyName string
	Email      string
	Picture    *string
}

// Provisioner makes sure every authenticated subject has a local user row
type Provisioner struct {
	users   UserDirectory
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewProvisioner(users UserDirectory, m *metrics.Metrics, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{users: users, metrics: m, log: log}
}

// EnsureUser inserts a user for the profile's subject if none exists yet.
// A nil profile (unauthenticated request) is a no-op. It reports whether
// a row was created.
func (p *Provisioner) EnsureUser(ctx context.Context, profile *Profile) (bool, error) {
	if profile == nil {
		p.log.Debug("request not authenticated, skipping user provisioning")
		return false, nil
	}
	if profile.Subject == "" {
		return false, errors.New("profile has no subject")
	}

	log := p.log.With(zap.String("sub", profile.Subject))

	existing, err := p.users.FindBySubject(ctx, profile.Subject)
	switch {
	case err == nil:
		log.Debug("user already exists in directory", zap.Uint("user_id", existing.ID))
		return false, nil
	case !errors.Is(err, ErrUserNotFound):
		p.metrics.ProvisioningFailed()
		return false, fmt.Errorf("check user %s: %w", profile.Subject, err)
	}

	user := &models.User{
		Auth0ID:    profile.Subject,
		GivenName:  profile.GivenName,
		FamilyName: profile.FamilyName,
		Email:      profile.Email,
		Picture:    optionalString(profile.Picture),
	}
	created, err := p.users.Create(ctx, user)
	if err != nil {
		p.metrics.ProvisioningFailed()
		return false, fmt.Errorf("create user %s: %w", profile.Subject, err)
	}
	if !created {
		log.Info("user inserted concurrently, nothing to do")
		return false, nil
	}

	p.metrics.UserProvisioned()
	log.Info("new user inserted into directory", zap.String("email", profile.Email))
	return true, nil
}

// optionalString maps a missing or blank value to nil so it is stored as NULL
func optionalString(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
