package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "ooak-crm", AccessTokenExpiry: time.Hour})

	token, expires, err := svc.IssueToken("head-1", models.RoleSalesHead, "head@ooak.test")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "head-1", claims.UserID)
	assert.Equal(t, models.RoleSalesHead, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "ooak-crm"})

	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "ooak-crm"})
	forged, _, err := other.IssueToken("rep-1", models.RoleSalesRep, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	wrongIssuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	token, _, err := wrongIssuer.IssueToken("rep-1", models.RoleSalesRep, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	unknownRole, _, err := svc.IssueToken("rep-1", models.UserRole("TEACHER"), "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(unknownRole)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: "rep-1",
		Role:   models.RoleSalesRep,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ooak-crm",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
