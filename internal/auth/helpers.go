package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var jwtKey = []byte(os.Getenv("JWT_KEY"))

// ErrInvalidCredential is returned when a bearer token is missing, malformed,
// expired, or signed with the wrong key.
var ErrInvalidCredential = errors.New("invalid credential")

// JWTClaims is the verified identity attached to every request and every
// live socket connection. Department and Semester drive group fan-out.
type JWTClaims struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`               // Role is needed for RBAC and all-students fan-out
	Department string `json:"department"`         // Department is needed for department-wide notifications
	Semester   int    `json:"semester,omitempty"` // Semester is needed for semester-wide notifications, students only
	jwt.RegisteredClaims
}

func GenerateJWT(user *User, duration time.Duration) (string, error) {
	claims := &JWTClaims{
		UserID:     user.ID.Hex(),
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
		Semester:   user.Semester,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

// ValidateJWT verifies a bearer token and returns the claims it carries.
// Every failure mode collapses to ErrInvalidCredential; callers must not
// create registry entries or serve requests on error.
func ValidateJWT(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredential
	}
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

func GetJWTKey() []byte {
	return jwtKey
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
