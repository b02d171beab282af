package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/reconcile"
)

var (
	ErrMalformedPayload = errors.New("malformed backend payload")
	ErrRejected         = errors.New("backend rejected booking")
)

// StatusError — бэкенд ответил кодом вне 2xx.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Запросов в секунду; <= 0 значит без ограничения.
	RateLimit float64
	RateBurst int
}

// Client — HTTP-адаптер к API бронирований бэкенда.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

var _ reconcile.RemoteSource = (*Client)(nil)

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		base:    base,
		http:    httpClient,
		limiter: limiter,
		log:     logger.With("component", "backend"),
	}, nil
}

// FetchBookings возвращает бронирования области. Все записи помечаются как remote.
func (c *Client) FetchBookings(ctx context.Context, scope reconcile.Scope) ([]model.BookingRecord, error) {
	q := url.Values{}
	if !scope.IsAdmin() {
		q.Set("customer_id", scope.CustomerID)
	}

	body, err := c.do(ctx, http.MethodGet, "/bookings", q, nil, nil)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode bookings: %v: %w", err, ErrMalformedPayload)
	}
	out := make([]model.BookingRecord, 0, len(raw))
	for i, item := range raw {
		var rec model.BookingRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode booking #%d: %v: %w", i, err, ErrMalformedPayload)
		}
		rec.Origin = model.OriginRemote
		rec.LocalID = ""
		out = append(out, rec)
	}
	return out, nil
}

type persistResponse struct {
	OK         bool   `json:"ok"`
	AssignedID string `json:"assignedId"`
	Error      string `json:"error,omitempty"`
}

// PersistBooking создаёт запись на бэкенде. Повторная отправка той же записи
// безопасна: ключ идемпотентности равен id записи в очереди.
func (c *Client) PersistBooking(ctx context.Context, rec model.BookingRecord) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/bookings", rec.QueueID(), rec)
	if err != nil {
		return "", err
	}
	return resp.AssignedID, nil
}

// UpdateBooking записывает изменение уже созданного бронирования.
// Каждая версия записи получает свой ключ идемпотентности, так что повтор
// одного и того же изменения безопасен, а следующее изменение не
// подменяется сохранённым ответом на предыдущее.
func (c *Client) UpdateBooking(ctx context.Context, rec model.BookingRecord) error {
	path := "/bookings/" + url.PathEscape(rec.BookingReference)
	_, err := c.send(ctx, http.MethodPut, path, UpdateKey(rec), rec)
	return err
}

// UpdateKey — ключ идемпотентности одной версии записи.
func UpdateKey(rec model.BookingRecord) string {
	return fmt.Sprintf("%s:%d:%s:%s:%.2f",
		rec.QueueID(), rec.UpdatedAt.UnixNano(), rec.Status, rec.PaymentStatus, rec.PaidAmount)
}

func (c *Client) send(
	ctx context.Context,
	method, path, idempotencyKey string,
	rec model.BookingRecord,
) (persistResponse, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return persistResponse{}, fmt.Errorf("encode booking: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Idempotency-Key", idempotencyKey)

	body, err := c.do(ctx, method, path, nil, payload, headers)
	if err != nil {
		return persistResponse{}, err
	}

	var resp persistResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return persistResponse{}, fmt.Errorf("decode persist response: %v: %w", err, ErrMalformedPayload)
	}
	if !resp.OK {
		return persistResponse{}, fmt.Errorf("%s: %s: %w", rec.BookingReference, resp.Error, ErrRejected)
	}
	return resp, nil
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	payload []byte,
	headers http.Header,
) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.log.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
