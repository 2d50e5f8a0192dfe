package http

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/application/service"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Request headers understood by the API
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIfMatch        = "If-Match"
	HeaderETag           = "ETag"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "X-Idempotency-Key"
)

const actorKey = "actor"

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,255}$`)

// identityMiddleware reads the acting user from trusted headers
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			abortWithError(c, &service.ValidationError{Fields: map[string]string{HeaderUserID: "required"}})
			return
		}

		role, err := workflow.ParseRole(c.GetHeader(HeaderUserRole))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(actorKey, port.Actor{UserID: userID, Role: role})
		c.Next()
	}
}

// actorFrom returns the actor stored by identityMiddleware
func actorFrom(c *gin.Context) port.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(port.Actor); ok {
			return actor
		}
	}
	return port.Actor{}
}

// bodyRecorder copies the response body while it is written
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// reservationTTL bounds how long a key stays held by a request that never finished
const reservationTTL = time.Minute

// idempotencyMiddleware runs a request at most once per Idempotency-Key. The key is
// reserved before the handler runs; a 2xx response is stored and replayed to later
// requests with the same key, any other outcome frees the key. A request arriving
// while the key is held gets 409 in_progress. Requests without the header pass
// through untouched.
func (s *Server) idempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || s.idempotency == nil {
			c.Next()
			return
		}
		if !idempotencyKeyPattern.MatchString(key) {
			abortWithError(c, &service.ValidationError{Fields: map[string]string{HeaderIdempotencyKey: "format"}})
			return
		}

		actor := actorFrom(c)
		now := s.now()
		pending := entity.IdempotencyRecord{
			Key:       key,
			UserID:    actor.UserID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			CreatedAt: now,
			ExpiresAt: now.Add(reservationTTL),
		}

		reserved, err := s.idempotency.Reserve(c.Request.Context(), &pending)
		if err != nil {
			s.logger.Error("Failed to reserve idempotency key", "key", key, "error", err)
			abortWithError(c, err)
			return
		}
		if !reserved {
			s.replay(c, &pending)
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		// the outcome is recorded even when the client has gone away
		ctx := context.WithoutCancel(c.Request.Context())
		completed := false
		defer func() {
			if completed {
				return
			}
			if err := s.idempotency.Release(ctx, actor.UserID, key); err != nil {
				s.logger.Error("Failed to release idempotency key", "key", key, "error", err)
			}
		}()

		c.Next()

		status := recorder.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		done := pending
		done.StatusCode = status
		done.Body = recorder.body.Bytes()
		done.ExpiresAt = now.Add(s.config.IdempotencyTTL)
		if err := s.idempotency.Complete(ctx, &done); err != nil {
			s.logger.Error("Failed to store idempotency key", "key", key, "error", err)
			return
		}
		completed = true
	}
}

// replay answers a request whose key is already held
func (s *Server) replay(c *gin.Context, want *entity.IdempotencyRecord) {
	rec, err := s.idempotency.Get(c.Request.Context(), want.UserID, want.Key, want.CreatedAt)
	switch {
	case err != nil:
		s.logger.Error("Failed to look up idempotency key", "key", want.Key, "error", err)
		abortWithError(c, err)
	case rec == nil:
		// released by its holder after the reservation failed
		abortWithError(c, port.ErrInProgress)
	case rec.Method != want.Method || rec.Path != want.Path:
		abortWithError(c, &service.ValidationError{Fields: map[string]string{HeaderIdempotencyKey: "reused"}})
	case rec.IsPending():
		abortWithError(c, port.ErrInProgress)
	default:
		c.Header(HeaderReplayed, want.Key)
		c.Data(rec.StatusCode, "application/json; charset=utf-8", rec.Body)
		c.Abort()
	}
}
