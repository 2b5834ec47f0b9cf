package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-engine/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newManager() *JWTManager {
	return NewJWTManager(config.JWTConfig{Secret: testSecret, Issuer: "storefront-auth", AccessTokenExpiry: time.Hour})
}

func TestIssueAndValidate(t *testing.T) {
	m := newManager()
	userID := uuid.NewString()

	token, err := m.Issue(userID, "a@example.com")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID())
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestIssue_RejectsNonUUID(t *testing.T) {
	_, err := newManager().Issue("42", "")
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	m := newManager()
	userID := uuid.NewString()

	expired := newManager()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue(userID, "")
	require.NoError(t, err)

	otherIssuer := NewJWTManager(config.JWTConfig{Secret: testSecret, Issuer: "elsewhere", AccessTokenExpiry: time.Hour})
	foreignToken, err := otherIssuer.Issue(userID, "")
	require.NoError(t, err)

	otherSecret := NewJWTManager(config.JWTConfig{Secret: "ffffffffffffffffffffffffffffffff", Issuer: "storefront-auth", AccessTokenExpiry: time.Hour})
	forged, err := otherSecret.Issue(userID, "")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID, Issuer: "storefront-auth"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expiredToken},
		{"wrong issuer", foreignToken},
		{"wrong secret", forged},
		{"alg none", none},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromHeader("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromHeader("bearer abc"))
	assert.Equal(t, "", ExtractTokenFromHeader("Basic abc"))
	assert.Equal(t, "", ExtractTokenFromHeader("Bearer "))
}
