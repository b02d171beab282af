package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyLockTTL   = 10 * time.Second
	idempotencyResultTTL = 24 * time.Hour
	processingMarker     = "PROCESSING"
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency запоминает ответ на POST с заголовком Idempotency-Key и отдаёт его
// же на повтор. Повтор во время обработки получает 409. Если Redis недоступен,
// запрос обрабатывается как обычно.
func Idempotency(client redis.UniversalClient, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s:%s", r.URL.Path, key)
			ctx := r.Context()

			val, err := client.Get(ctx, idemKey).Result()
			switch {
			case err == nil:
				replay(w, val)
				return
			case !errors.Is(err, redis.Nil):
				logger.Warn("idempotency lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := client.SetNX(ctx, idemKey, processingMarker, idempotencyLockTTL).Result()
			if err != nil || !acquired {
				writeConflict(w, "concurrent request")
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// 5xx не запоминаем: клиент должен иметь возможность повторить.
			if rec.status >= http.StatusInternalServerError {
				client.Del(ctx, idemKey)
				return
			}
			stored, _ := json.Marshal(storedResponse{Status: rec.status, Body: rawJSON(rec.body.Bytes())})
			if err := client.Set(ctx, idemKey, stored, idempotencyResultTTL).Err(); err != nil {
				logger.Warn("idempotency store failed", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, val string) {
	if val == processingMarker {
		writeConflict(w, "request is being processed")
		return
	}
	var resp storedResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		writeConflict(w, "request already processed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func writeConflict(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func rawJSON(b []byte) json.RawMessage {
	b = bytes.TrimSpace(b)
	if !json.Valid(b) {
		quoted, _ := json.Marshal(string(b))
		return quoted
	}
	return b
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
