package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		user_type TEXT NOT NULL DEFAULT 'free',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);`)
	require.NoError(t, err)
	return db
}

func createTestUser(t *testing.T, db *sql.DB, username string) *User {
	t.Helper()
	user := &User{
		Username: username,
		Email:    username + "@example.com",
		Password: "not-a-real-hash",
	}
	require.NoError(t, user.CreateUser(db))
	return user
}

func TestCreateUserDefaults(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "alice")

	loaded, err := GetUserByUsername(db, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loaded.ID)
	assert.Equal(t, UserTypeFree, loaded.UserType)
	assert.Equal(t, "local", loaded.AuthProvider)
	assert.False(t, loaded.IsEmailVerified)

	byEmail, err := GetUserByEmail(db, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestUpdateUserTier(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "bob")

	require.NoError(t, UpdateUserTier(db, int64(user.ID), UserTypeSubscriber))
	loaded, err := GetUserByID(db, int64(user.ID))
	require.NoError(t, err)
	assert.Equal(t, UserTypeSubscriber, loaded.UserType)

	assert.Error(t, UpdateUserTier(db, int64(user.ID), "vip"), "unrecognized tier must be rejected")
	assert.Error(t, UpdateUserTier(db, 9999, UserTypeFree), "unknown user must be an error")
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "carol")

	session := &Session{
		UserID:       user.ID,
		Token:        "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, CreateSession(db, session))

	got, err := GetSessionByToken(db, "access-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	got, err = GetSessionByRefreshToken(db, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.Token)

	require.NoError(t, BlockSessionsForUser(db, int64(user.ID)))
	_, err = GetSessionByToken(db, "access-1")
	assert.Error(t, err, "blocked session must not resolve")
	_, err = GetSessionByRefreshToken(db, "refresh-1")
	assert.Error(t, err, "blocked session must not resolve by refresh token")

	require.NoError(t, DeleteSessionByToken(db, "access-1"))
	require.NoError(t, DeleteSessionByToken(db, "already-gone"))
}

func TestExpiredSessionNotReturned(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "dave")

	session := &Session{
		UserID:       user.ID,
		Token:        "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, CreateSession(db, session))

	_, err := GetSessionByToken(db, "access-2")
	assert.Error(t, err)
}

func TestEmailVerification(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "erin")

	require.NoError(t, SetUserVerificationToken(db, int64(user.ID), "tok-1", time.Now().Add(time.Hour)))

	verified, err := VerifyUserEmailByToken(db, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
	assert.True(t, verified.IsEmailVerified)

	// The token is consumed on use.
	_, err = VerifyUserEmailByToken(db, "tok-1")
	assert.Error(t, err)
}

func TestEmailVerificationExpiredToken(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "frank")

	require.NoError(t, SetUserVerificationToken(db, int64(user.ID), "tok-2", time.Now().Add(-time.Minute)))

	_, err := VerifyUserEmailByToken(db, "tok-2")
	assert.Error(t, err)

	loaded, err := GetUserByID(db, int64(user.ID))
	require.NoError(t, err)
	assert.False(t, loaded.IsEmailVerified)
}

func TestPasswordHashing(t *testing.T) {
	user := &User{}
	require.NoError(t, user.HashPassword("correct horse battery staple"))
	assert.NotEqual(t, "correct horse battery staple", user.Password)
	assert.NoError(t, user.CheckPassword("correct horse battery staple"))
	assert.Error(t, user.CheckPassword("wrong password"))
}
