package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of tokens minted without an explicit TTL.
const DefaultAccessTokenTTL = 15 * time.Minute

var (
	// ErrTokenMissing is returned for an empty token string.
	ErrTokenMissing = errors.New("jwt: token missing")
	// ErrTokenInvalid wraps every parse or claim failure. The underlying jwt
	// error stays reachable through errors.Is.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// JWTConfig configures a JWTService. Issuer, when set, is both stamped on
// minted tokens and required on validated ones.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	// Leeway tolerates clock skew between this service and the token issuer.
	Leeway time.Duration
	Clock  func() time.Time
}

// Claims carries the user identity. Tokens from the account service may only
// set "sub"; ValidateAccessToken copies it into UserID.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput describes a token to mint.
type AccessTokenInput struct {
	UserID   string
	Name     string
	Audience []string
}

// JWTService validates HS256 access tokens for the notification API. Minting
// is used by the operator CLI and tests.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewJWTService builds a JWTService. A secret is required.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if svc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(svc.issuer))
	}
	svc.parser = jwt.NewParser(opts...)
	return svc, nil
}

// GenerateAccessToken signs a token for input.UserID that expires after the
// configured TTL.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}

	issuedAt := s.now()
	claims := Claims{
		UserID: input.UserID,
		Name:   input.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, expiry and issuer and returns the
// claims with UserID populated.
func (s *JWTService) ValidateAccessToken(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	var claims Claims
	if _, err := s.parser.ParseWithClaims(token, &claims, s.key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id claim", ErrTokenInvalid)
	}
	return &claims, nil
}

func (s *JWTService) key(*jwt.Token) (any, error) {
	return s.secret, nil
}
