package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/response"
	"github.com/fablecast/entitlement/pkg/tool"
)

const keyAdmin = "is_admin"

// Claims carried by bearer tokens. Subject is the numeric user id.
type Claims struct {
	jwt.StandardClaims
	Admin bool `json:"admin,omitempty"`
}

// SignToken issues an HS256 token; used by tooling and tests.
func SignToken(cfg *config.Config, userID uint64, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   tool.FormatID(userID),
			Issuer:    cfg.Auth.Issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Admin: admin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.JWTSecret))
}

func parseToken(cfg *config.Config, raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthorized("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token")
	}
	if !tok.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	if cfg.Auth.Issuer != "" && !claims.VerifyIssuer(cfg.Auth.Issuer, true) {
		return nil, apperr.Unauthorized("unexpected issuer")
	}
	return claims, nil
}

// AuthMiddleware verifies the bearer token and stores the caller's user id in
// gin.Context and the request context.
func AuthMiddleware(cfg *config.Config, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Auth.JWTSecret == "" {
			response.Fail(c, apperr.Unauthorized("authentication is not configured"))
			return
		}
		h := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			response.Fail(c, apperr.Unauthorized("missing bearer token"))
			return
		}
		claims, err := parseToken(cfg, raw)
		if err != nil {
			logctx.FromGin(c, base).Infow("auth_rejected", "error", err)
			response.Fail(c, err)
			return
		}
		userID, ok := tool.ParseID(claims.Subject)
		if !ok {
			response.Fail(c, apperr.Unauthorized("token subject is not a user id"))
			return
		}

		c.Set(logctx.KeyUserID, userID)
		c.Set(keyAdmin, claims.Admin)
		ctx := logctx.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		setLogger(c, logctx.FromGin(c, base).With("user_id", userID))
		c.Next()
	}
}

// RequireAdmin rejects callers whose token lacks the admin claim. It must run
// after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(keyAdmin) {
			response.Fail(c, apperr.Forbidden("admin only"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller, or 0.
func UserID(c *gin.Context) uint64 {
	if v, ok := c.Get(logctx.KeyUserID); ok {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	id, _ := logctx.UserID(requestContext(c))
	return id
}

func requestContext(c *gin.Context) context.Context {
	if c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
