package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleAdmin  = "admin"
	RoleNormal = "normal"
	RoleCity   = "city"
)

const (
	tokenCookie = "token"
	roleKey     = "role"
)

// Auth verifies the HMAC signed token carried in the "token" cookie or a
// bearer header.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// NewToken signs a token for user id with role, valid for ttl.
func (a *Auth) NewToken(id, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":   id,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticated rejects requests without a valid token and stores the role
// for later handlers.
func (a *Auth) Authenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, err := a.roleFromRequest(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid or expired token"})
		}
		c.Locals(roleKey, role)
		return c.Next()
	}
}

func (a *Auth) AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals(roleKey).(string); role != RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": ErrForbidden.Error()})
		}
		return c.Next()
	}
}

func (a *Auth) roleFromRequest(c *fiber.Ctx) (string, error) {
	tokenString := c.Cookies(tokenCookie)
	if tokenString == "" {
		tokenString = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	}
	if tokenString == "" {
		return "", ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	role, _ := claims[roleKey].(string)
	switch role {
	case RoleAdmin, RoleNormal, RoleCity:
		return role, nil
	}
	return "", ErrUnauthorized
}
