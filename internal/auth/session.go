package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "campus_session"

// SessionClaims is the JWT payload stored in the session cookie. It holds
// the database identity, not the Google identity; handlers re-read the user
// row when they need fresh state.
type SessionClaims struct {
	UserID   int64  `json:"uid"`
	GoogleID string `json:"gid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueSession signs a session token for a logged-in user.
func IssueSession(userID int64, googleID, email, name, role, key string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:   userID,
		GoogleID: googleID,
		Email:    email,
		Name:     name,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "campusattend",
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// ParseSession validates a session token and returns its claims.
func ParseSession(tokenStr, key string) (SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return SessionClaims{}, err
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return SessionClaims{}, errors.New("invalid session token")
	}
	if claims.UserID == 0 || claims.GoogleID == "" || claims.Email == "" {
		return SessionClaims{}, errors.New("incomplete session")
	}
	return *claims, nil
}
