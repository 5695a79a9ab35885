package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/universalnft/marketplace-indexer/internal/logger"
)

// Logger returns a gin middleware for structured request logging using zap
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("API request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery returns a gin middleware for panic recovery with logging
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(fmt.Errorf("panic recovered: %v", err),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// SetupCORS configures CORS middleware with fully open settings
// FIXME: In production, we should restrict this.
func SetupCORS() gin.HandlerFunc {
	config := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           time.Hour,
	}
	return cors.New(config)
}

// VerifySignature returns a gin middleware that authenticates requests by a
// detached ed25519 signature passed in the query string. The caller sends
// `pubkey` (base58), `signature` (base64) and the signed `message`, whose
// `_<RFC3339 timestamp>` suffix must be younger than maxAge. No accounts, no
// sessions; holding the wallet key is the whole credential.
func VerifySignature(maxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		pubkey := c.Query("pubkey")
		signature := c.Query("signature")
		message := c.Query("message")
		if pubkey == "" || signature == "" || message == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "pubkey, signature and message are required",
			})
			return
		}

		idx := strings.LastIndex(message, "_")
		if idx < 0 {
			abortForbidden(c, "Signature verification failed")
			return
		}
		issuedAt, err := time.Parse(time.RFC3339, message[idx+1:])
		if err != nil {
			abortForbidden(c, "Signature verification failed")
			return
		}
		if time.Since(issuedAt) > maxAge {
			abortForbidden(c, "Signature expired")
			return
		}

		pubBytes, err := base58.Decode(pubkey)
		if err != nil || len(pubBytes) != ed25519.PublicKeySize {
			abortForbidden(c, "Signature verification failed")
			return
		}
		sigBytes, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			abortForbidden(c, "Signature verification failed")
			return
		}

		if !ed25519.Verify(ed25519.PublicKey(pubBytes), []byte(message), sigBytes) {
			abortForbidden(c, "Signature verification failed")
			return
		}

		c.Next()
	}
}

func abortForbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
}
