package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"posture-service/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors for account operations. Handlers map these to statuses.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveUser       = errors.New("user account is deactivated")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const resetTokenTTL = 1 * time.Hour

// UserService handles account management: registration, login, profile
// updates and password reset.
type UserService struct {
	db          *sql.DB
	jwtSecret   []byte
	tokenExpiry time.Duration
}

// NewUserService creates a user service instance.
func NewUserService(db *sql.DB, jwtSecret string, tokenExpiry time.Duration) *UserService {
	return &UserService{
		db:          db,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
	}
}

// CreateUser registers a new account. Email and username uniqueness are
// checked before the insert; the schema's unique keys backstop the race
// between check and insert.
func (s *UserService) CreateUser(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", req.Email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", req.Username).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrDuplicateUsername
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
		req.Username, req.Email, string(passwordHash))
	if err != nil {
		if isDuplicateKeyErr(err) {
			if strings.Contains(err.Error(), "unique_username") {
				return nil, ErrDuplicateUsername
			}
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	now := time.Now()
	return &models.User{
		ID:        id,
		Username:  req.Username,
		Email:     req.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetUser retrieves a user by id.
func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, is_active, created_at, updated_at FROM users WHERE id = ?",
		userID).Scan(&user.ID, &user.Username, &user.Email, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// Authenticate verifies email/password credentials and records the login
// time. The same error comes back for unknown email and wrong password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	var passwordHash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, is_active, created_at, updated_at FROM users WHERE email = ?",
		email).Scan(&user.ID, &user.Username, &user.Email, &passwordHash,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?", user.ID); err != nil {
		return nil, fmt.Errorf("failed to record login time: %w", err)
	}

	return &user, nil
}

// UpdateUser applies the set fields of the request, re-checking uniqueness
// for changed username/email.
func (s *UserService) UpdateUser(ctx context.Context, userID int64, req models.UpdateUserRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := []string{}
	args := []interface{}{}

	if req.Username != nil && *req.Username != user.Username {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", *req.Username).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if exists {
			return nil, ErrDuplicateUsername
		}
		updates = append(updates, "username = ?")
		args = append(args, *req.Username)
		user.Username = *req.Username
	}

	if req.Email != nil && *req.Email != user.Email {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", *req.Email).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return nil, ErrDuplicateEmail
		}
		updates = append(updates, "email = ?")
		args = append(args, *req.Email)
		user.Email = *req.Email
	}

	if req.Password != nil {
		passwordHash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updates = append(updates, "password_hash = ?")
		args = append(args, string(passwordHash))
	}

	if len(updates) == 0 {
		return user, nil
	}

	args = append(args, userID)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = ?", strings.Join(updates, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKeyErr(err) {
			if strings.Contains(err.Error(), "unique_username") {
				return nil, ErrDuplicateUsername
			}
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	user.UpdatedAt = time.Now()
	return user, nil
}

// DeleteUser removes the account. Posture records and reset tokens cascade.
func (s *UserService) DeleteUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// GenerateToken issues a signed access token for the user.
func (s *UserService) GenerateToken(userID int64, username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      now.Add(s.tokenExpiry).Unix(),
		"iat":      now.Unix(),
	})

	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifies a JWT access token and returns the user id.
func (s *UserService) ValidateToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, errors.New("invalid user id in token")
	}

	return int64(userID), nil
}

// CreatePasswordReset issues a single-use reset token for the account with
// the given email. The caller is responsible for not disclosing whether the
// email exists.
func (s *UserService) CreatePasswordReset(ctx context.Context, email string) (string, *models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, is_active, created_at, updated_at FROM users WHERE email = ?",
		email).Scan(&user.ID, &user.Username, &user.Email, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil, ErrUserNotFound
		}
		return "", nil, fmt.Errorf("failed to query user: %w", err)
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(resetTokenTTL)

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)",
		user.ID, hashResetToken(token), expiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store reset token: %w", err)
	}

	return token, &user, nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	var tokenID, userID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id FROM password_reset_tokens WHERE token_hash = ? AND used = FALSE AND expires_at > NOW()",
		hashResetToken(token)).Scan(&tokenID, &userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to query reset token: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", string(passwordHash), userID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used = TRUE WHERE id = ?", tokenID); err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func isDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}
