package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testUser() *User {
	return &User{
		ID:         primitive.NewObjectID(),
		Name:       "Ada Lovelace",
		Email:      "ada@uni.edu",
		Role:       RoleStudent,
		Department: "CS",
		Semester:   3,
	}
}

func TestJWTRoundTrip(t *testing.T) {
	user := testUser()
	token, err := GenerateJWT(user, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Name, claims.Name)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, RoleStudent, claims.Role)
	assert.Equal(t, "CS", claims.Department)
	assert.Equal(t, 3, claims.Semester)
}

func TestValidateJWTRejectsBadCredentials(t *testing.T) {
	user := testUser()

	t.Run("empty token", func(t *testing.T) {
		_, err := ValidateJWT("")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := ValidateJWT("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("tampered token", func(t *testing.T) {
		token, err := GenerateJWT(user, time.Hour)
		require.NoError(t, err)
		_, err = ValidateJWT(token + "x")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := GenerateJWT(user, -time.Minute)
		require.NoError(t, err)
		_, err = ValidateJWT(token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, CheckPasswordHash("wrong password", hash))
}
