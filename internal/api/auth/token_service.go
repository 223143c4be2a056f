package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/internal/store"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// TokenService validates the bearer tokens issued by the platform's login
// service. Issuance itself lives outside this server; we only verify the
// JWT signature and check the backing auth_tokens row is still active.
type TokenService struct {
	db        *sql.DB
	secretKey []byte
	users     *store.UserStore
}

// JWTClaims represents the claims in platform access tokens.
type JWTClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenHash string `json:"token_hash"`
	jwt.RegisteredClaims
}

// NewTokenService creates a new token service.
func NewTokenService(db *sql.DB, secretKey string, users *store.UserStore) *TokenService {
	return &TokenService{
		db:        db,
		secretKey: []byte(secretKey),
		users:     users,
	}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateAccessToken validates a JWT access token and returns the user.
func (ts *TokenService) ValidateAccessToken(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid token", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid token claims")
	}

	var tokenExists bool
	err = ts.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM auth_tokens
			WHERE user_id = $1
			AND token_hash = $2
			AND token_type = 'session'
			AND is_active = true
			AND expires_at > NOW()
		)
	`, claims.UserID, claims.TokenHash).Scan(&tokenExists)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to check token", err)
	}
	if !tokenExists {
		return nil, apperr.New(apperr.KindUnauthenticated, "token not found or expired")
	}

	user, err := ts.users.Get(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "user not found for token", err)
	}

	return user, nil
}

// SignGrant signs a short-lived realtime channel grant for a user. The
// channel broadcaster refuses subscriptions whose grant does not match the
// requested channel.
func (ts *TokenService) SignGrant(userID, channel string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     userID,
		"channel": channel,
		"iat":     jwt.NewNumericDate(now),
		"exp":     jwt.NewNumericDate(now.Add(ttl)),
		"iss":     "velony-realtime",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to sign grant", err)
	}
	return signed, nil
}
