package authhttp

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// SessionVerifier checks the HS256 session tokens issued by the host's login
// flow. The principal id is taken from "sub" and nothing else.
type SessionVerifier struct {
	Secret   []byte
	Issuer   string
	Audience string
	// Skew tolerated on exp/nbf/iat. Defaults to one second.
	Skew time.Duration
}

// SessionConfig is read from EMAILCHANGE_SESSION_* variables.
type SessionConfig struct {
	Secret   string `env:"EMAILCHANGE_SESSION_SECRET"`
	Issuer   string `env:"EMAILCHANGE_SESSION_ISSUER"   envDefault:"emailchange"`
	Audience string `env:"EMAILCHANGE_SESSION_AUDIENCE" envDefault:"emailchange-app"`
}

func NewSessionVerifier(cfg SessionConfig) (SessionVerifier, error) {
	if len(cfg.Secret) < 32 {
		return SessionVerifier{}, errors.New("emailchange: EMAILCHANGE_SESSION_SECRET of at least 32 bytes is required")
	}
	return SessionVerifier{Secret: []byte(cfg.Secret), Issuer: cfg.Issuer, Audience: cfg.Audience}, nil
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	SID   string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// verifyError carries the error code returned to the client.
type verifyError struct {
	code string
	err  error
}

func (e *verifyError) Error() string { return fmt.Sprintf("%s: %v", e.code, e.err) }
func (e *verifyError) Unwrap() error { return e.err }

// ErrorCode returns the client-facing code for an error returned by Verify.
func ErrorCode(err error) string {
	var ve *verifyError
	if errors.As(err, &ve) {
		return ve.code
	}
	return "invalid_token"
}

// Verify parses token and returns the authenticated claims.
func (v SessionVerifier) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, &verifyError{code: "missing_token", err: errors.New("empty token")}
	}
	skew := v.Skew
	if skew == 0 {
		skew = time.Second
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	claims := &sessionClaims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return v.Secret, nil })
	if err != nil || !tok.Valid {
		return Claims{}, &verifyError{code: verifyCode(err), err: err}
	}
	if claims.Subject == "" {
		return Claims{}, &verifyError{code: "invalid_token", err: errors.New("missing sub")}
	}
	return Claims{UserID: claims.Subject, Email: claims.Email, SessionID: claims.SID}, nil
}

func verifyCode(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_exp"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "bad_issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "bad_audience"
	}
	return "invalid_token"
}

// Issue signs a session token. Used by the dev server and tests; production
// hosts issue sessions from their own login flow.
func (v SessionVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.Audience != "" {
		claims.Audience = jwt.ClaimStrings{v.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}

// Required validates the Bearer session token and stores claims in request context.
func Required(v SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cl, err := v.Verify(bearerToken(r.Header.Get("Authorization")))
			if err != nil {
				unauthorized(w, ErrorCode(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(setClaims(r.Context(), cl)))
		})
	}
}
