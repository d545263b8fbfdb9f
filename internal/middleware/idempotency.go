package middleware

import (
	"bytes"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
	"github.com/wanderdesk/wanderdesk-api/pkg/idempotency"
	"github.com/wanderdesk/wanderdesk-api/pkg/response"
)

// IdempotencyKeyHeader is the client-supplied request header carrying the
// deduplication key for mutating calls.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayHeader marks a response served from the idempotency cache.
const ReplayHeader = "X-Idempotent-Replay"

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency deduplicates mutating requests that carry an Idempotency-Key
// header. Requests without the header pass through untouched. A completed
// entry replays the stored status and body verbatim; a request arriving
// while the first one is still executing gets a 409 rather than blocking on
// it. Only 2xx outcomes are cached; anything else frees the key so the
// client can retry. Keys are scoped to the caller's agency, so two tenants
// can use the same key without collision.
func Idempotency(store idempotency.Store, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || store == nil {
			c.Next()
			return
		}

		claims, exists := c.Get(ContextUserKey)
		if !exists {
			c.Next()
			return
		}
		jwtClaims, ok := claims.(*models.JWTClaims)
		if !ok {
			c.Next()
			return
		}

		scoped := idempotency.Key(jwtClaims.AgencyID, key)
		begin, err := store.Begin(c.Request.Context(), scoped)
		if err != nil {
			// Degrade to pass-through rather than blocking the mutation.
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}

		switch begin.State {
		case idempotency.StateReplay:
			c.Header(ReplayHeader, "true")
			contentType := begin.Response.ContentType
			if contentType == "" {
				contentType = "application/json; charset=utf-8"
			}
			c.Data(begin.Response.Status, contentType, begin.Response.Body)
			c.Abort()
			return
		case idempotency.StateInFlight:
			response.Error(c, appErrors.ErrRequestInFlight)
			c.Abort()
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= 200 && status < 300 {
			resp := idempotency.Response{
				Status:      status,
				ContentType: writer.Header().Get("Content-Type"),
				Body:        writer.body.Bytes(),
			}
			if err := store.Complete(c.Request.Context(), scoped, resp); err != nil {
				logger.Warn("failed to cache idempotent response", zap.Error(err))
			}
			return
		}
		if err := store.Abort(c.Request.Context(), scoped); err != nil {
			logger.Warn("failed to release idempotency key", zap.Error(err))
		}
	}
}
