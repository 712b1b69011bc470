package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/library-backend/api/responses"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/library-backend/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotent-Replayed"
	defaultIdempotencyTTL = 24 * time.Hour
	// A claim left behind by a crashed request frees the key after this long.
	pendingClaimTTL = time.Minute
)

const (
	recordPending  = "pending"
	recordComplete = "complete"
)

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency makes a rent or return safe to retry. The first request with a
// given Idempotency-Key claims it; the stored response is replayed for later
// requests with the same body. A second request while the first is running
// is rejected. 5xx responses release the key so the client can retry.
// Requests without the header, or with no store configured, pass through.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(scopeFor(r), clientKey)

			claimed, err := claim(r, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(w, r, logg, store, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(ctx, key); delErr != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", delErr)
				}
				return
			}
			done, _ := json.Marshal(idempotencyRecord{
				State:       recordComplete,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			})
			if setErr := store.Set(ctx, key, string(done), ttl); setErr != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", setErr)
			}
		})
	}
}

func claim(r *http.Request, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	pending, _ := json.Marshal(idempotencyRecord{State: recordPending, RequestHash: hash})
	return store.SetNX(r.Context(), key, string(pending), pendingClaimTTL)
}

func replayOrReject(w http.ResponseWriter, r *http.Request, logg *logger.Logger, store pkgredis.IdempotencyStore, key, hash string) {
	ctx := r.Context()
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Claim expired between SETNX and GET.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != recordComplete:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
			_, _ = w.Write(decoded)
		}
	}
}

// scopeFor keys records by method and chi route pattern, e.g.
// "POST|/api/v1/rentals/rent".
func scopeFor(r *http.Request) string {
	path := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			path = pattern
		}
	}
	return r.Method + "|" + path
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(payload))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
