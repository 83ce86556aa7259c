package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims is the JWT payload issued to gateway callers.
type ServiceClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed service token valid for 24 hours.
func GenerateToken(secret, service string) (string, error) {
	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "mt5-gateway",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(secret, tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware validates the Bearer token on /api routes.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"kind": "UNAUTHORIZED", "message": "missing authorization header"},
			})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := parseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"kind": "UNAUTHORIZED", "message": "invalid token"},
			})
			return
		}

		c.Set("service", claims.Service)
		c.Next()
	}
}
