package authhttp

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testVerifier() SessionVerifier {
	return SessionVerifier{Secret: []byte(testSecret), Issuer: "https://example.com", Audience: "test-app"}
}

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func serveProtected(t *testing.T, v SessionVerifier, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	protected := Required(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cl, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		writeJSON(w, http.StatusOK, map[string]string{"user_id": cl.UserID, "email": cl.Email})
	}))
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	protected.ServeHTTP(w, r)
	return w
}

func TestRequired_AcceptsIssuedSession(t *testing.T) {
	v := testVerifier()
	tok, err := v.Issue("user-1", "old@example.com", time.Hour)
	require.NoError(t, err)

	w := serveProtected(t, v, "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"user-1","email":"old@example.com"}`, w.Body.String())
}

func TestRequired_Rejections(t *testing.T) {
	now := time.Now()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": "https://example.com",
			"sub": "user-1",
			"aud": "test-app",
			"iat": now.Unix(),
			"exp": now.Add(time.Hour).Unix(),
		}
	}
	cases := []struct {
		name   string
		auth   func() string
		expect string
	}{
		{"missing header", func() string { return "" }, "missing_token"},
		{"not bearer", func() string { return "Basic abc" }, "missing_token"},
		{"missing exp", func() string {
			c := base()
			delete(c, "exp")
			return "Bearer " + signClaims(t, testSecret, c)
		}, "missing_exp"},
		{"expired", func() string {
			c := base()
			c["exp"] = now.Add(-time.Hour).Unix()
			c["iat"] = now.Add(-2 * time.Hour).Unix()
			return "Bearer " + signClaims(t, testSecret, c)
		}, "token_expired"},
		{"wrong issuer", func() string {
			c := base()
			c["iss"] = "https://evil.example.com"
			return "Bearer " + signClaims(t, testSecret, c)
		}, "bad_issuer"},
		{"wrong audience", func() string {
			c := base()
			c["aud"] = "other-app"
			return "Bearer " + signClaims(t, testSecret, c)
		}, "bad_audience"},
		{"wrong secret", func() string {
			return "Bearer " + signClaims(t, "ffffffffffffffffffffffffffffffff", base())
		}, "invalid_token"},
		{"missing subject", func() string {
			c := base()
			delete(c, "sub")
			return "Bearer " + signClaims(t, testSecret, c)
		}, "invalid_token"},
		{"alg none", func() string {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, base()).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return "Bearer " + tok
		}, "invalid_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serveProtected(t, testVerifier(), tc.auth())
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.JSONEq(t, `{"error":"`+tc.expect+`"}`, w.Body.String())
		})
	}
}

func TestNewSessionVerifier_RequiresLongSecret(t *testing.T) {
	_, err := NewSessionVerifier(SessionConfig{Secret: "short"})
	require.Error(t, err)

	v, err := NewSessionVerifier(SessionConfig{Secret: testSecret, Issuer: "iss", Audience: "aud"})
	require.NoError(t, err)
	require.Equal(t, "iss", v.Issuer)
	require.Equal(t, "aud", v.Audience)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer  abc "))
	require.Empty(t, bearerToken("Token abc"))
	require.Empty(t, bearerToken(""))
}

func TestDefaultClientIP(t *testing.T) {
	fn := DefaultClientIP()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:4431"
	require.Equal(t, "203.0.113.9", fn(r))

	r.RemoteAddr = "10.0.0.4:4431"
	require.Empty(t, fn(r), "private peers fail open")
}

func TestClientIPFromForwardedHeaders(t *testing.T) {
	fn := ClientIPFromForwardedHeaders([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.4:4431"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.9")
	require.Equal(t, "198.51.100.7", fn(r))

	r.Header.Set("CF-Connecting-IP", "198.51.100.8")
	require.Equal(t, "198.51.100.8", fn(r))

	// Headers from untrusted peers are ignored.
	r.RemoteAddr = "203.0.113.9:4431"
	require.Equal(t, "203.0.113.9", fn(r))
}

func TestMemoryLimiter(t *testing.T) {
	rl := NewMemoryLimiter(map[string]Limit{RLEmailChangeRequest: {Limit: 2, Window: time.Hour}})
	for i := 0; i < 2; i++ {
		ok, err := rl.AllowNamed(RLEmailChangeRequest, "k1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _ := rl.AllowNamed(RLEmailChangeRequest, "k1")
	require.False(t, ok)

	ok, _ = rl.AllowNamed(RLEmailChangeRequest, "k2")
	require.True(t, ok, "keys are independent")

	ok, _ = rl.AllowNamed("unconfigured", "k1")
	require.True(t, ok, "no default bucket means unlimited")
}
