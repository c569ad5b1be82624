package httpsvc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/metrics"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	idempotencyTTL       = 24 * time.Hour
	maxIdempotencyKeyLen = 128
	staffScope           = "staff"
)

var panicResponse = []byte(`{"success":false,"message":"internal error"}`)

// captureWriter дублирует тело ответа, чтобы сохранить его для повторов.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для запроса с уже использованным Idempotency-Key.
// Запросы без заголовка обрабатываются как обычно.
func (s *Server) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if key == "" || s.idem == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, apiResponse{Message: "idempotency key is too long"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, apiResponse{Message: "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		scope := customerID(c)
		if scope == "" {
			scope = staffScope
		}
		storageKey := scope + ":" + key
		logger := s.logger.WithFields(log.Fields{"idempotency_key": key, "scope": scope})

		ctx := c.Request.Context()
		record, err := s.idem.CreateProcessing(ctx, storageKey, requestHash(c.Request.Method, c.Request.URL.Path, body), time.Now().UTC().Add(idempotencyTTL))
		if err != nil {
			s.replayIdempotent(c, logger, record, err)
			return
		}

		// Результат фиксируется и после обрыва соединения клиентом.
		storeCtx := context.WithoutCancel(ctx)
		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		defer func() {
			if r := recover(); r != nil {
				if err := s.idem.MarkFailed(storeCtx, storageKey, panicResponse, http.StatusInternalServerError); err != nil {
					logger.WithError(err).Warn("failed to store idempotent response")
				}
				s.idemMetrics.RecordRequest(metrics.IdempotencyError)
				panic(r)
			}
		}()

		c.Next()

		status := writer.Status()
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			err = s.idem.MarkDone(storeCtx, storageKey, writer.body.Bytes(), status)
		} else {
			err = s.idem.MarkFailed(storeCtx, storageKey, writer.body.Bytes(), status)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
		s.idemMetrics.RecordRequest(metrics.IdempotencyFresh)
	}
}

func (s *Server) replayIdempotent(c *gin.Context, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		s.idemMetrics.RecordRequest(metrics.IdempotencyConflict)
		c.AbortWithStatusJSON(http.StatusConflict, apiResponse{Message: "idempotency key is already used with different request payload"})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				s.idemMetrics.RecordRequest(metrics.IdempotencyError)
				c.AbortWithStatusJSON(http.StatusInternalServerError, apiResponse{Message: "internal error"})
				return
			}
			s.idemMetrics.RecordRequest(metrics.IdempotencyReplayed)
			c.Header(headerReplayed, "true")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
			c.Abort()
		default:
			s.idemMetrics.RecordRequest(metrics.IdempotencyInFlight)
			c.AbortWithStatusJSON(http.StatusConflict, apiResponse{Message: "request with the same idempotency key is already processing"})
		}
	default:
		s.idemMetrics.RecordRequest(metrics.IdempotencyError)
		logger.WithError(createErr).Error("failed to create idempotency record")
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiResponse{Message: "internal error"})
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
