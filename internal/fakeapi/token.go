package fakeapi

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims ties an access credential to the generation it was issued
// in. Bumping the server generation expires every outstanding credential.
type accessClaims struct {
	Generation int64 `json:"gen"`
	jwt.RegisteredClaims
}

var errStaleGeneration = errors.New("credential from an earlier generation")

// issueAccess signs an access credential. Caller holds s.mu.
func (s *Server) issueAccess(accountID int64) (string, error) {
	now := s.now()
	claims := accessClaims{
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			// Distinguishes credentials issued within the same second.
			ID: randomToken(8),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign access credential: %w", err)
	}
	return signed, nil
}

// issueRenewal mints an opaque renewal credential. Caller holds s.mu.
func (s *Server) issueRenewal(accountID int64) string {
	tok := randomToken(32)
	s.renewals[tok] = accountID
	return tok
}

// verifyAccess is the bearer verifier for authenticated routes.
func (s *Server) verifyAccess(token string) (int64, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("parse access credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return 0, errStaleGeneration
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse subject: %w", err)
	}
	if _, ok := s.accounts[id]; !ok {
		return 0, errors.New("unknown account")
	}
	return id, nil
}

func randomToken(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// AccessTTL reports the lifetime of issued access credentials.
func (s *Server) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

// IssueCredentials signs a fresh pair for accountID without a login call.
func (s *Server) IssueCredentials(accountID int64) (access, renewal string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	access, err = s.issueAccess(accountID)
	if err != nil {
		return "", "", err
	}
	return access, s.issueRenewal(accountID), nil
}
