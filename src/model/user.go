package model

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Recognized user tiers as stored in the users table. "guest" is never
// stored; it is what unauthenticated callers resolve to.
const (
	UserTypeFree       = "free"
	UserTypeSubscriber = "subscriber"
)

// ValidUserType reports whether t may be written to the user_type column.
func ValidUserType(t string) bool {
	return t == UserTypeFree || t == UserTypeSubscriber
}

type User struct {
	ID              int       `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Password        string    `json:"-"` // never serialized
	AuthProvider    string    `json:"auth_provider"`
	UserType        string    `json:"user_type"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Session struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashPassword hashes the user's password using bcrypt.
func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a given password with the user's hashed password.
func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// CreateUser inserts a new user. New accounts start at the free tier unless
// the caller provisioned one explicitly, matching how upgraded tiers are
// assigned out-of-band.
func (u *User) CreateUser(db *sql.DB) error {
	if u.UserType == "" {
		u.UserType = UserTypeFree
	}
	if u.AuthProvider == "" {
		u.AuthProvider = "local"
	}
	query := `
	INSERT INTO users (username, password, email, auth_provider, user_type, is_email_verified)
	VALUES (?, ?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(u.Username, u.Password, u.Email, u.AuthProvider, u.UserType, u.IsEmailVerified)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = int(id)
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Email, &user.AuthProvider, &user.UserType, &user.IsEmailVerified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("user not found")
		}
		return nil, err
	}
	return &user, nil
}

const userColumns = `id, username, password, email, auth_provider, user_type, is_email_verified`

// GetUserByUsername retrieves a user from the database by their username.
func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByEmail retrieves a user from the database by their email.
func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// GetUserByID retrieves a user from the database by ID.
func GetUserByID(db *sql.DB, id int64) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// SetUserVerificationToken stores a fresh email verification token for the
// user, replacing any previous one.
func SetUserVerificationToken(db *sql.DB, userID int64, token string, expiresAt time.Time) error {
	_, err := db.Exec(
		`UPDATE users SET email_verification_token = ?, email_verification_token_expires_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		token, expiresAt, userID,
	)
	return err
}

// VerifyUserEmailByToken marks the matching user's email as verified and
// consumes the token. Expired or unknown tokens return an error.
func VerifyUserEmailByToken(db *sql.DB, token string) (*User, error) {
	row := db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email_verification_token = ? AND email_verification_token_expires_at > ?`,
		token, time.Now(),
	)
	user, err := scanUser(row)
	if err != nil {
		if err.Error() == "user not found" {
			return nil, errors.New("invalid or expired verification token")
		}
		return nil, err
	}

	_, err = db.Exec(
		`UPDATE users SET is_email_verified = TRUE, email_verification_token = NULL, email_verification_token_expires_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		user.ID,
	)
	if err != nil {
		return nil, err
	}
	user.IsEmailVerified = true
	return user, nil
}

// UpdateUserTier changes the stored tier for a user. The caller is expected
// to block the user's live sessions afterwards so the next issued token
// carries the new tier claim.
func UpdateUserTier(db *sql.DB, userID int64, userType string) error {
	if !ValidUserType(userType) {
		return errors.New("invalid user type: " + userType)
	}
	res, err := db.Exec(`UPDATE users SET user_type = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, userType, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("user not found")
	}
	return nil
}

// CreateSession inserts a new session into the database.
func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now()
	_, err = stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

// GetSessionByToken retrieves an active, non-blocked session by its access token.
func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, token, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// GetSessionByRefreshToken retrieves an active, non-blocked session by its refresh token.
func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE refresh_token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, refreshToken, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSessionByToken removes a session from the database based on the access token.
func DeleteSessionByToken(db *sql.DB, token string) error {
	query := `DELETE FROM sessions WHERE token = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(token)
	// A missing session is not an error for logout; it may have already
	// expired or been deleted.
	return err
}

// BlockSessionsForUser invalidates every live session of a user. Used after a
// tier change so stale tokens carrying the old tier claim stop working and the
// next login picks up the new tier.
func BlockSessionsForUser(db *sql.DB, userID int64) error {
	_, err := db.Exec(`UPDATE sessions SET is_blocked = TRUE WHERE user_id = ?`, userID)
	return err
}
