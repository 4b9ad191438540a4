package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"portal/internal/metrics"
	"portal/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func openMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	return db, mock
}

func countUsers(t *testing.T, db *gorm.DB, subject string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.User{}).Where("auth0_id = ?", subject).Count(&n).Error)
	return n
}

func ada() *Profile {
	return &Profile{
		Subject:    "auth0|123",
		GivenName:  "Ada",
		FamilyName: "Lovelace",
		Email:      "ada@example.com",
	}
}

func TestProvisioner_FirstVisitInsertsUser(t *testing.T) {
	db := openSQLite(t)
	p := NewProvisioner(NewUserDirectory(db), nil, nil)

	created, err := p.EnsureUser(context.Background(), ada())
	require.NoError(t, err)
	assert.True(t, created)

	var user models.User
	require.NoError(t, db.Where("auth0_id = ?", "auth0|123").First(&user).Error)
	assert.Equal(t, "Ada", user.GivenName)
	assert.Equal(t, "Lovelace", user.FamilyName)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Nil(t, user.Picture)
}

func TestProvisioner_SecondVisitIsNoop(t *testing.T) {
	db := openSQLite(t)
	m := metrics.New()
	p := NewProvisioner(NewUserDirectory(db), m, nil)

	_, err := p.EnsureUser(context.Background(), ada())
	require.NoError(t, err)

	changed := ada()
	changed.Email = "countess@example.com"
	created, err := p.EnsureUser(context.Background(), changed)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, int64(1), countUsers(t, db, "auth0|123"))

	// Profile changes at the provider are not synced back
	var user models.User
	require.NoError(t, db.Where("auth0_id = ?", "auth0|123").First(&user).Error)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestProvisioner_StoresPicture(t *testing.T) {
	db := openSQLite(t)
	p := NewProvisioner(NewUserDirectory(db), nil, nil)

	profile := ada()
	pic := "https://cdn.example.com/ada.png"
	profile.Picture = &pic

	_, err := p.EnsureUser(context.Background(), profile)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.Where("auth0_id = ?", "auth0|123").First(&user).Error)
	require.NotNil(t, user.Picture)
	assert.Equal(t, pic, *user.Picture)
}

func TestProvisioner_BlankPictureStoredAsNull(t *testing.T) {
	db := openSQLite(t)
	p := NewProvisioner(NewUserDirectory(db), nil, nil)

	profile := ada()
	blank := ""
	profile.Picture = &blank

	_, err := p.EnsureUser(context.Background(), profile)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.Where("auth0_id = ?", "auth0|123").First(&user).Error)
	assert.Nil(t, user.Picture)
}

func TestProvisioner_UnauthenticatedDoesNothing(t *testing.T) {
	users := &fakeDirectory{}
	p := NewProvisioner(users, nil, nil)

	created, err := p.EnsureUser(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, users.finds)
	assert.Zero(t, users.creates)
}

func TestProvisioner_RejectsEmptySubject(t *testing.T) {
	users := &fakeDirectory{}
	p := NewProvisioner(users, nil, nil)

	_, err := p.EnsureUser(context.Background(), &Profile{Email: "x@example.com"})
	require.Error(t, err)
	assert.Zero(t, users.creates)
}

func TestProvisioner_ConcurrentFirstLoginsInsertOnce(t *testing.T) {
	users := &fakeDirectory{rows: map[string]*models.User{}, raceFinds: true}
	p := NewProvisioner(users, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.EnsureUser(context.Background(), ada())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, users.rows, 1)
	assert.Equal(t, 8, users.creates)
}

func TestProvisioner_LookupFailurePropagates(t *testing.T) {
	db, mock := openMock(t)
	m := metrics.New()
	p := NewProvisioner(NewUserDirectory(db), m, nil)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE auth0_id = \$1`).
		WillReturnError(errors.New("connection reset"))

	_, err := p.EnsureUser(context.Background(), ada())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioner_InsertFailurePropagates(t *testing.T) {
	db, mock := openMock(t)
	p := NewProvisioner(NewUserDirectory(db), nil, nil)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE auth0_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "auth0_id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	created, err := p.EnsureUser(context.Background(), ada())
	require.Error(t, err)
	assert.False(t, created)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDirectory_FindBySubjectNotFound(t *testing.T) {
	d := NewUserDirectory(openSQLite(t))

	_, err := d.FindBySubject(context.Background(), "auth0|missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserDirectory_CreateIgnoresDuplicateSubject(t *testing.T) {
	db := openSQLite(t)
	d := NewUserDirectory(db)
	ctx := context.Background()

	created, err := d.Create(ctx, &models.User{Auth0ID: "auth0|123", Email: "first@example.com"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = d.Create(ctx, &models.User{Auth0ID: "auth0|123", Email: "second@example.com"})
	require.NoError(t, err)
	assert.False(t, created)

	user, err := d.FindBySubject(ctx, "auth0|123")
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", user.Email)
	assert.Equal(t, int64(1), countUsers(t, db, "auth0|123"))
}

// fakeDirectory is an in-memory UserDirectory. With raceFinds set every
// lookup misses, simulating concurrent first logins that all pass the check.
type fakeDirectory struct {
	mu        sync.Mutex
	rows      map[string]*models.User
	raceFinds bool
	finds     int
	creates   int
}

func (f *fakeDirectory) FindBySubject(ctx context.Context, subject string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if u, ok := f.rows[subject]; ok && !f.raceFinds {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (f *fakeDirectory) Create(ctx context.Context, user *models.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if _, ok := f.rows[user.Auth0ID]; ok {
		return false, nil
	}
	f.rows[user.Auth0ID] = user
	return true, nil
}
