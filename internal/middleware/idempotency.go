package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go-leave-ledger/internal/shared/contextutil"
	"go-leave-ledger/internal/shared/apperror"
	"go-leave-ledger/internal/shared/response"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

type cachedResponse struct {
	Status      int             `json:"status"`
	Fingerprint string          `json:"fingerprint"`
	Body        json.RawMessage `json:"body"`
}

// bodyFingerprint reads the request body, puts it back for the handler and
// returns its sha256 in hex.
func bodyFingerprint(c *gin.Context) (string, error) {
	var raw []byte
	if c.Request.Body != nil {
		var err error
		if raw, err = io.ReadAll(c.Request.Body); err != nil {
			return "", err
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a POST carrying an
// Idempotency-Key header. A second request arriving while the first is still
// running gets 409 PROCESSING, and a key reused with a different body gets
// 422 IDEMPOTENCY_KEY_REUSED. Server errors are not cached.
func Idempotency(rdb redis.Cmdable, logger ...*zap.Logger) gin.HandlerFunc {
	l := zap.L().Named("middleware.idempotency")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("middleware.idempotency")
	}

	return func(c *gin.Context) {
		idempKey := c.GetHeader(HeaderIdempotencyKey)
		if idempKey == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		log := contextutil.GetLogger(ctx, l)
		fingerprint, err := bodyFingerprint(c)
		if err != nil {
			response.Error(c, http.StatusBadRequest, apperror.CodeValidation, "Unreadable request body", nil)
			c.Abort()
			return
		}
		cacheKey := fmt.Sprintf("idemp:%s:%s:%s", c.FullPath(), c.GetString(ContextRole), idempKey)
		lockKey := cacheKey + ":lock"

		val, err := rdb.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var cached cachedResponse
			if jsonErr := json.Unmarshal(val, &cached); jsonErr == nil {
				if cached.Fingerprint != fingerprint {
					log.Warn("idempotency key reused with a different body", zap.String("key", cacheKey))
					response.Error(c, http.StatusUnprocessableEntity, apperror.CodeIdempotencyKeyReused,
						"Idempotency-Key was already used for a different request", nil)
					c.Abort()
					return
				}
				c.Header("Idempotent-Replay", "true")
				c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
				c.Abort()
				return
			}
			log.Warn("idempotency cache entry unreadable", zap.String("key", cacheKey))
		case !errors.Is(err, redis.Nil):
			// Redis being down must not block the command path.
			log.Warn("idempotency lookup failed", zap.Error(err))
			c.Next()
			return
		}

		isNew, err := rdb.SetNX(ctx, lockKey, "locked", idempotencyLockTTL).Result()
		if err != nil {
			log.Warn("idempotency lock failed", zap.Error(err))
			c.Next()
			return
		}
		if !isNew {
			response.Error(c, http.StatusConflict, apperror.CodeProcessing, "The request is still being processed", nil)
			c.Abort()
			return
		}
		defer rdb.Del(ctx, lockKey)

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError || rec.buf.Len() == 0 {
			return
		}
		payload, err := json.Marshal(cachedResponse{Status: status, Fingerprint: fingerprint, Body: rec.buf.Bytes()})
		if err != nil {
			return
		}
		if err := rdb.Set(ctx, cacheKey, payload, idempotencyTTL).Err(); err != nil {
			log.Warn("idempotency store failed", zap.Error(err))
		}
	}
}
