package auth

import (
	"time"

	"chat-core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
// Tokens are issued by the platform's account subsystem; this core only
// verifies them.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256-signed bearer tokens.
type TokenVerifier struct {
	key []byte
}

func NewTokenVerifier(secret string) TokenVerifier {
	return TokenVerifier{key: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT string
// and returns the user id it was issued for.
func (v TokenVerifier) Verify(tokenString string) (domain.UserID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims.UserID, nil
	}
	return "", jwt.ErrSignatureInvalid
}

// GenerateToken creates a signed JWT for a specific user. The serving path
// never issues tokens; this exists for the inspector tool and tests.
func GenerateToken(secret string, userID domain.UserID, roles []string,
	duration time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-core",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
