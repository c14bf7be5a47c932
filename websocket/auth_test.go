package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rachelchenchi/focuser/config"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	cfg := &config.AuthConfig{
		Enabled:           true,
		JWTSecret:         testSecret,
		TokenQueryParam:   "token",
		RevocationListKey: "jwt:revoked",
	}
	// No Redis client: revocation checks fail open.
	validator := NewJWTValidator(cfg, nil)

	testCases := []struct {
		name     string
		token    string
		wantErr  bool
		wantName string
	}{
		{
			name: "valid token resolves username",
			token: signToken(t, testSecret, CustomClaims{
				Username: "alice",
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "user-1",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}),
			wantName: "alice",
		},
		{
			name: "expired token rejected",
			token: signToken(t, testSecret, CustomClaims{
				Username: "alice",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
			}),
			wantErr: true,
		},
		{
			name: "wrong secret rejected",
			token: signToken(t, "some-other-secret", CustomClaims{
				Username: "alice",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}),
			wantErr: true,
		},
		{
			name:    "garbage rejected",
			token:   "not.a.token",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := validator.ValidateToken(context.Background(), tc.token)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, claims.Username)
		})
	}
}
