package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/uniwave/calling/pkg/internal/services"
)

// authMiddleware verifies the bearer token issued by the platform's auth
// side and loads the account into locals for downstream handlers.
func authMiddleware(c *fiber.Ctx) error {
	var token string
	if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	} else {
		// Browser websocket clients cannot set headers.
		token = c.Query("tk")
	}
	if len(token) == 0 {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(viper.GetString("security.jwt_secret")), nil
	})
	if err != nil || !parsed.Valid {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
	}

	userId, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "token subject must be an account id")
	}

	user, err := services.GetAccount(uint(userId))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "account of token wasn't found")
	}

	c.Locals("user", user)
	return c.Next()
}
