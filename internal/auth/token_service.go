package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nobilishq/nobilis-server/params"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type TokenClaims struct {
	UserID    uint   `json:"uid"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"admin,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues and verifies the bearer tokens used by the JSON API
// and the realtime channel. Tokens are HMAC signed with the master key.
type TokenService struct {
	masterKey string
}

func NewTokenService(masterKey string) *TokenService {
	return &TokenService{masterKey: masterKey}
}

func (s *TokenService) generate(userID uint, email string, isAdmin bool, tokenType string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:    userID,
		Email:     email,
		IsAdmin:   isAdmin,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.masterKey))
}

// IssueTokenPair returns a fresh access and refresh token for the user.
func (s *TokenService) IssueTokenPair(ctx context.Context, userID uint, email string, isAdmin bool) (*TokenPair, error) {
	accessToken, err := s.generate(userID, email, isAdmin, TokenTypeAccess, params.AccessTokenExpiration)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.generate(userID, email, isAdmin, TokenTypeRefresh, params.RefreshTokenExpiration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *TokenService) verify(tokenStr string, wantType string) (*TokenClaims, error) {
	var claims TokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.masterKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.TokenType != wantType {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// VerifyAccessToken validates a bearer access token and returns its claims.
func (s *TokenService) VerifyAccessToken(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	return s.verify(tokenStr, TokenTypeAccess)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	return s.verify(tokenStr, TokenTypeRefresh)
}
