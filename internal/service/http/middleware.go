package httpsvc

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const (
	customerIDKey = "customerID"

	headerCustomerID = "X-Customer-ID"
	headerStaffToken = "X-Staff-Token"
)

var errMissingIdentity = errors.New("customer identity is required")

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}

// customerIdentity кладёт id клиента в контекст: из JWT, если задан секрет, иначе из заголовка шлюза.
func (s *Server) customerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := s.resolveCustomer(c)
		if err != nil {
			s.logger.WithError(err).Debug("identity rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiResponse{Message: err.Error()})
			return
		}

		c.Set(customerIDKey, customerID)
		c.Next()
	}
}

func (s *Server) resolveCustomer(c *gin.Context) (string, error) {
	if len(s.jwtSecret) == 0 {
		customerID := strings.TrimSpace(c.GetHeader(headerCustomerID))
		if customerID == "" {
			return "", errMissingIdentity
		}
		return customerID, nil
	}

	raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if raw == "" {
		return "", errMissingIdentity
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errors.New("invalid or expired token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token subject is required")
	}
	return subject, nil
}

func (s *Server) staffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.staffToken == "" {
			c.Next()
			return
		}

		got := c.GetHeader(headerStaffToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.staffToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiResponse{Message: "staff token is required"})
			return
		}
		c.Next()
	}
}

func customerID(c *gin.Context) string {
	return c.GetString(customerIDKey)
}
