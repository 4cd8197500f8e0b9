package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextUserID   = "userId"
	ContextUserType = "userType"
)

// Claims are issued by the account service. userType is one of donor, ngo
// or volunteer.
type Claims struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid token")

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a token for userID. The account service owns issuance in
// production; this exists for local tooling and tests.
func IssueToken(userID, userType, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip middleware for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "No authentication token provided")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "Format should be: Bearer <token>")
			return
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid authentication token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserType, claims.UserType)
		c.Next()
	}
}

// RequireUserType rejects callers whose userType is not in allowed.
func RequireUserType(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userType := c.GetString(ContextUserType)
		for _, t := range allowed {
			if t == userType {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "Access denied. Insufficient permissions.")
	}
}

func abort(c *gin.Context, status int, message string) {
	kind := "unauthorized"
	if status == http.StatusForbidden {
		kind = "forbidden"
	} else if status == http.StatusTooManyRequests {
		kind = "too_many_attempts"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"message":   message,
		"errorKind": kind,
	})
}
