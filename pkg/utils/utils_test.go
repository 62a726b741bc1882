package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-team-backend/pkg/models"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret")
	token, exp, err := svc.GenerateAccessToken("u1", "u1@x.com")
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1@x.com", claims.Email)
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewJWTService("secret")
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := issuer.GenerateAccessToken("u1", "u1@x.com")
	require.NoError(t, err)

	_, err = NewJWTService("secret").ValidateToken(expired)
	assert.Error(t, err)

	foreign, _, err := NewJWTService("other").GenerateAccessToken("u1", "u1@x.com")
	require.NoError(t, err)
	_, err = NewJWTService("secret").ValidateToken(foreign)
	assert.Error(t, err)
}

func TestJWTRejectsRefreshTokens(t *testing.T) {
	now := time.Now()
	claims := &models.TokenClaims{UserID: "u1", Type: "refresh", Exp: now.Add(time.Hour).Unix(), Iat: now.Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	svc := NewJWTService("secret")
	_, err = svc.ValidateToken(token)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorContains(t, err, "invalid token type")
}

func TestGenerateURLToken(t *testing.T) {
	a, err := GenerateURLToken(32)
	require.NoError(t, err)
	b, err := GenerateURLToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.False(t, strings.ContainsAny(a, "+/="))
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponseWithCode(rec, http.StatusConflict, "ALREADY_MEMBER", "already a member", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ALREADY_MEMBER", resp.Error.Code)
	assert.Equal(t, "already a member", resp.Error.Message)
}

func TestParseJSONBodyRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Token string `json:"token"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"t","extra":1}`))
	assert.Error(t, ParseJSONBody(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"t"}`))
	require.NoError(t, ParseJSONBody(req, &dst))
	assert.Equal(t, "t", dst.Token)
}
