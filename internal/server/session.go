package server

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AudienceSession marks tokens usable against the invoice endpoints
const AudienceSession = "ksef:session"

const nipContextKey = "nip"

// SessionClaims are the claims of an issued session token
type SessionClaims struct {
	jwt.RegisteredClaims
	IdentifierType string `json:"idt"`
}

type sessionSigner struct {
	secret []byte
	ttl    time.Duration
}

func newSessionSigner(ttl time.Duration) (*sessionSigner, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return &sessionSigner{secret: secret, ttl: ttl}, nil
}

// issue signs a session token for nip
func (s *sessionSigner) issue(nip, idType string, now time.Time) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nip,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		IdentifierType: idType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// verify returns the NIP bound to a session token
func (s *sessionSigner) verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid claims type")
	}
	return claims.Subject, nil
}

// requireSession rejects requests without a valid bearer session
func (s *Server) requireSession(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing session token"})
		return
	}

	nip, err := s.signer.verify(tokenStr)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid session token"})
		return
	}

	c.Set(nipContextKey, nip)
	c.Next()
}
