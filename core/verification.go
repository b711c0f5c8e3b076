package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ChallengeRequest carries what a VerificationMethod needs to issue a challenge.
type ChallengeRequest struct {
	RequestID      string
	PrincipalID    string
	CandidateEmail string
	Now            time.Time
}

// VerificationMethod issues and checks the proof-of-ownership challenge.
// The coordinator handles expiry, attempts and state; methods only deal with secrets.
type VerificationMethod interface {
	Method() Method
	// Issue returns the stored challenge, the payload to deliver and the raw secret.
	Issue(req ChallengeRequest) (Challenge, Payload, string, error)
	// Match reports whether presented proves ownership for rec.
	Match(presented string, rec ChallengeRequest, c Challenge) bool
}

// CodeChallenge delivers a short numeric code by mail.
type CodeChallenge struct {
	Length int
	TTL    time.Duration
	// Generate overrides the random code source. Used by tests.
	Generate func(length int) string
}

func (m CodeChallenge) Method() Method { return MethodCode }

func (m CodeChallenge) Issue(req ChallengeRequest) (Challenge, Payload, string, error) {
	gen := m.Generate
	if gen == nil {
		gen = randNumeric
	}
	code := gen(m.Length)
	if code == "" {
		return Challenge{}, Payload{}, "", fmt.Errorf("generate code: empty")
	}
	exp := req.Now.Add(m.TTL)
	c := Challenge{Method: MethodCode, SecretHash: sha256Hex(code), ExpiresAt: exp}
	return c, Payload{Code: code, ExpiresAt: exp}, code, nil
}

func (m CodeChallenge) Match(presented string, _ ChallengeRequest, c Challenge) bool {
	if presented == "" || c.SecretHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sha256Hex(presented)), []byte(c.SecretHash)) == 1
}

// LinkToken delivers a signed URL. The token is an HS256 JWT whose jti must
// match the latest issued nonce for the principal.
type LinkToken struct {
	Secret  []byte
	Issuer  string
	BaseURL string
	TTL     time.Duration
}

type linkClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (m LinkToken) Method() Method { return MethodLink }

func (m LinkToken) Issue(req ChallengeRequest) (Challenge, Payload, string, error) {
	nonce := uuid.NewString()
	exp := req.Now.Add(m.TTL)
	claims := linkClaims{
		Email: req.CandidateEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   req.PrincipalID,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(req.Now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
	if err != nil {
		return Challenge{}, Payload{}, "", fmt.Errorf("sign verification token: %w", err)
	}
	link, err := m.verificationURL(token)
	if err != nil {
		return Challenge{}, Payload{}, "", err
	}
	c := Challenge{Method: MethodLink, SecretHash: sha256Hex(nonce), ExpiresAt: exp}
	return c, Payload{VerificationURL: link, ExpiresAt: exp}, token, nil
}

func (m LinkToken) verificationURL(token string) (string, error) {
	u, err := url.Parse(m.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse link base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Match verifies signature, issuer, subject, email and nonce. Expiry is
// enforced by the coordinator against its own clock.
func (m LinkToken) Match(presented string, req ChallengeRequest, c Challenge) bool {
	claims, err := m.parse(presented)
	if err != nil {
		return false
	}
	if claims.Subject != req.PrincipalID || claims.Email != req.CandidateEmail {
		return false
	}
	if m.Issuer != "" && claims.Issuer != m.Issuer {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sha256Hex(claims.ID)), []byte(c.SecretHash)) == 1
}

func (m LinkToken) parse(token string) (*linkClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	claims := &linkClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	tok, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return m.Secret, nil })
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("parse verification token: %w", err)
	}
	return claims, nil
}

// randNumeric returns a uniformly random numeric code of length n.
func randNumeric(n int) string {
	b := make([]byte, n)
	ten := big.NewInt(10)
	for i := range b {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return ""
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
