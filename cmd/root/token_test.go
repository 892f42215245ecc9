package root

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestJWT(claims map[string]any) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, _ := json.Marshal(claims)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	sig := base64.RawURLEncoding.EncodeToString([]byte("fakesig"))
	return fmt.Sprintf("%s.%s.%s", header, payloadB64, sig)
}

func TestParseTokenInfo_ValidToken(t *testing.T) {
	t.Parallel()

	now := time.Now()
	exp := now.Add(time.Hour)
	token := buildTestJWT(map[string]any{
		"sub": "user-123",
		"iss": "deskpilot",
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})

	info, err := parseTokenInfo(token)
	require.NoError(t, err)
	assert.Equal(t, token, info.Token)
	assert.Equal(t, "user-123", info.Subject)
	assert.Equal(t, "deskpilot", info.Issuer)
	assert.False(t, info.Expired)
	assert.WithinDuration(t, now, info.IssuedAt, time.Second)
	assert.WithinDuration(t, exp, info.ExpiresAt, time.Second)
}

func TestParseTokenInfo_ExpiredToken(t *testing.T) {
	t.Parallel()

	token := buildTestJWT(map[string]any{
		"sub": "user-456",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	info, err := parseTokenInfo(token)
	require.NoError(t, err)
	assert.True(t, info.Expired)
	assert.Equal(t, "user-456", info.Subject)
}

func TestParseTokenInfo_InvalidToken(t *testing.T) {
	t.Parallel()

	_, err := parseTokenInfo("not-a-jwt")
	require.Error(t, err)
}

func TestPrintTokenInfo(t *testing.T) {
	t.Parallel()

	invalid := false
	info := &tokenInfo{
		Token:     "eyJhbGciOiJIUzI1NiJ9.xxxxxxxxxxxx.yyyyyyyy1234567890",
		Subject:   "sub-123",
		Issuer:    "deskpilot",
		IssuedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		Verified:  &invalid,
	}

	var buf bytes.Buffer
	printTokenInfo(&buf, info)

	output := buf.String()
	assert.Contains(t, output, "sub-123")
	assert.Contains(t, output, "deskpilot")
	assert.Contains(t, output, "Signature:  invalid")
	assert.Contains(t, output, "Status:     Valid")
}

func TestTokenCommand_RoundTrip(t *testing.T) {
	t.Setenv("DESKPILOT_JWT_SECRET", "cli-secret")

	var out, errOut bytes.Buffer
	code := Execute(t.Context(), &out, &errOut, "token", "--subject", "ci-bot", "--ttl", "1h")
	require.Equal(t, 0, code, errOut.String())
	token := strings.TrimSpace(out.String())
	require.NotEmpty(t, token)

	out.Reset()
	code = Execute(t.Context(), &out, &errOut, "token", "inspect", "--json", token)
	require.Equal(t, 0, code, errOut.String())

	var info tokenInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "ci-bot", info.Subject)
	assert.False(t, info.Expired)
	require.NotNil(t, info.Verified)
	assert.True(t, *info.Verified)
}
