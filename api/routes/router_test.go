package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/internal/borrowers"
	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryIdempotency struct {
	data map[string]string
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryIdempotency) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = value.(string)
	return nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryIdempotency) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	handler  http.Handler
	registry *prometheus.Registry
	store    *memoryIdempotency
}

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Env: "test"},
		Rentals: config.RentalsConfig{DefaultLoanDays: 14, MaxLoanDays: 365, IdempotencyTTL: time.Hour},
	}
}

func newTestServer(t *testing.T, redisPinger *stubPinger) *testServer {
	t.Helper()
	client := dbtest.NewSQLite(t)
	logg := logger.New(logger.Options{ServiceName: "router-test"})
	registry := prometheus.NewRegistry()

	bookSvc, err := books.NewService(books.NewRepository(client.DB()))
	if err != nil {
		t.Fatalf("books service: %v", err)
	}
	borrowerSvc, err := borrowers.NewService(borrowers.NewRepository(client.DB()))
	if err != nil {
		t.Fatalf("borrowers service: %v", err)
	}
	rentalSvc, err := rentals.NewService(rentals.ServiceParams{
		Repository: rentals.NewRepository(client.DB()),
		DB:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Metrics:    metrics.NewRentalMetrics(registry),
		Logger:     logg,
	})
	if err != nil {
		t.Fatalf("rentals service: %v", err)
	}

	store := &memoryIdempotency{data: map[string]string{}}
	deps := Dependencies{
		Config:      testConfig(),
		Logger:      logg,
		DBPinger:    client,
		Idempotency: store,
		HTTPMetrics: metrics.NewHTTPMetrics(registry),
		Gatherer:    registry,
		Books:       bookSvc,
		Borrowers:   borrowerSvc,
		Rentals:     rentalSvc,
	}
	if redisPinger != nil {
		deps.RedisPinger = redisPinger
	}
	return &testServer{handler: NewRouter(deps), registry: registry, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)

	var env envelope
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, resp.Body.String(), err)
		}
	}
	return resp.Code, env
}

func (s *testServer) createID(t *testing.T, path, body string) int64 {
	t.Helper()
	status, env := s.do(t, http.MethodPost, path, body, nil)
	if status != http.StatusCreated {
		t.Fatalf("POST %s: expected 201 got %d (%+v)", path, status, env.Error)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode id: %v", err)
	}
	return created.ID
}

func requireError(t *testing.T, status int, env envelope, wantStatus int, wantReason string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("expected status %d got %d (%+v)", wantStatus, status, env.Error)
	}
	if env.Error == nil || env.Error.Reason != wantReason {
		t.Fatalf("expected reason %q got %+v", wantReason, env.Error)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	if status, _ := srv.do(t, http.MethodGet, "/health/live", "", nil); status != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", status)
	}
	if status, _ := srv.do(t, http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", status)
	}

	down := newTestServer(t, &stubPinger{err: errors.New("connection refused")})
	status, env := down.do(t, http.MethodGet, "/health/ready", "", nil)
	if status != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "DEPENDENCY_ERROR" {
		t.Fatalf("expected 503 dependency error, got %d %+v", status, env.Error)
	}
}

func TestRentalWorkflowOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	bookID := srv.createID(t, "/api/v1/books", `{"title":"Dune","author":"Frank Herbert","year":1965,"quantity":1}`)
	first := srv.createID(t, "/api/v1/borrowers", `{"full_name":"Ana Lopez","email":"Ana@Example.com"}`)
	second := srv.createID(t, "/api/v1/borrowers", `{"full_name":"Ben Okafor","email":"ben@example.com"}`)

	status, env := srv.do(t, http.MethodPost, "/api/v1/borrowers", `{"full_name":"Other","email":"ana@example.com"}`, nil)
	requireError(t, status, env, http.StatusBadRequest, "DUPLICATE_EMAIL")

	rentBody := fmt.Sprintf(`{"borrower_id":%d,"book_id":%d}`, first, bookID)
	status, env = srv.do(t, http.MethodPost, "/api/v1/rentals/rent", rentBody, nil)
	if status != http.StatusCreated {
		t.Fatalf("rent: expected 201 got %d (%+v)", status, env.Error)
	}
	var rented rentals.RentalDTO
	if err := json.Unmarshal(env.Data, &rented); err != nil {
		t.Fatalf("decode rental: %v", err)
	}
	if !strings.HasPrefix(rented.Message, "Book 'Dune' rented to Ana Lopez until ") {
		t.Fatalf("unexpected message %q", rented.Message)
	}

	status, env = srv.do(t, http.MethodPost, "/api/v1/rentals/rent", fmt.Sprintf(`{"borrower_id":%d,"book_id":%d}`, second, bookID), nil)
	requireError(t, status, env, http.StatusBadRequest, "BOOK_UNAVAILABLE")

	status, env = srv.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", bookID), "", nil)
	requireError(t, status, env, http.StatusBadRequest, "HAS_ACTIVE_RENTALS")

	status, env = srv.do(t, http.MethodGet, "/api/v1/rentals/active", "", nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"borrower_name":"Ana Lopez"`) {
		t.Fatalf("active rentals: %d %s", status, env.Data)
	}

	status, env = srv.do(t, http.MethodPost, "/api/v1/rentals/return", fmt.Sprintf(`{"book_id":%d}`, bookID), nil)
	if status != http.StatusOK {
		t.Fatalf("return: expected 200 got %d (%+v)", status, env.Error)
	}
	status, env = srv.do(t, http.MethodPost, "/api/v1/rentals/return", fmt.Sprintf(`{"rental_id":%d}`, rented.ID), nil)
	requireError(t, status, env, http.StatusBadRequest, "ALREADY_RETURNED")

	status, env = srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", bookID), "", nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"quantity":1`) {
		t.Fatalf("book after return: %d %s", status, env.Data)
	}

	if status, _ := srv.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", bookID), "", nil); status != http.StatusOK {
		t.Fatalf("delete after return: expected 200 got %d", status)
	}
	status, env = srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", bookID), "", nil)
	requireError(t, status, env, http.StatusNotFound, "BOOK_NOT_FOUND")
}

func TestRentNotFoundAndValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	status, env := srv.do(t, http.MethodPost, "/api/v1/rentals/rent", `{"borrower_id":41,"book_id":42}`, nil)
	requireError(t, status, env, http.StatusNotFound, "BORROWER_NOT_FOUND")

	status, env = srv.do(t, http.MethodPost, "/api/v1/rentals/rent", `{"book_id":42}`, nil)
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %d %+v", status, env.Error)
	}

	status, env = srv.do(t, http.MethodPost, "/api/v1/rentals/return", `{}`, nil)
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %d %+v", status, env.Error)
	}

	status, env = srv.do(t, http.MethodGet, "/api/v1/rentals?status=lost", "", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", status)
	}

	status, _ = srv.do(t, http.MethodGet, "/api/v1/books/abc", "", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", status)
	}
}

func TestRentIdempotencyReplaysResponse(t *testing.T) {
	srv := newTestServer(t, nil)
	bookID := srv.createID(t, "/api/v1/books", `{"title":"Dune","author":"Frank Herbert","year":1965,"quantity":2}`)
	borrowerID := srv.createID(t, "/api/v1/borrowers", `{"full_name":"Ana","email":"ana@example.com"}`)

	body := fmt.Sprintf(`{"borrower_id":%d,"book_id":%d}`, borrowerID, bookID)
	headers := map[string]string{"Idempotency-Key": "rent-1"}

	status, first := srv.do(t, http.MethodPost, "/api/v1/rentals/rent", body, headers)
	if status != http.StatusCreated {
		t.Fatalf("first rent: expected 201 got %d", status)
	}
	status, replay := srv.do(t, http.MethodPost, "/api/v1/rentals/rent", body, headers)
	if status != http.StatusCreated || string(replay.Data) != string(first.Data) {
		t.Fatalf("expected replayed 201, got %d %s", status, replay.Data)
	}

	_, book := srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", bookID), "", nil)
	if !strings.Contains(string(book.Data), `"quantity":1`) {
		t.Fatalf("replay must not rent twice: %s", book.Data)
	}

	status, env := srv.do(t, http.MethodPost, "/api/v1/rentals/rent", fmt.Sprintf(`{"borrower_id":%d,"book_id":%d,"loan_period_days":3}`, borrowerID, bookID), headers)
	if status != http.StatusConflict || env.Error == nil || env.Error.Code != "IDEMPOTENCY_KEY_REUSED" {
		t.Fatalf("expected 409 for reused key, got %d %+v", status, env.Error)
	}
}

func TestStatsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.createID(t, "/api/v1/books", `{"title":"Dune","author":"Frank Herbert","year":1965,"quantity":2}`)
	srv.createID(t, "/api/v1/books", `{"title":"Children of Dune","author":"Frank Herbert","year":1976,"quantity":1}`)

	status, env := srv.do(t, http.MethodGet, "/api/v1/books/stats", "", nil)
	if status != http.StatusOK {
		t.Fatalf("book stats: %d", status)
	}
	var stats books.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalBooks != 2 || stats.TotalCopies != 3 || stats.BooksByDecade[1960] != 1 || stats.BooksByDecade[1970] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	for _, path := range []string{"/api/v1/borrowers/stats", "/api/v1/rentals/stats"} {
		if status, _ := srv.do(t, http.MethodGet, path, "", nil); status != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, status)
		}
	}
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodGet, "/api/v1/books", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	srv.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `library_http_requests_total{method="GET",route="/api/v1/books`) || !strings.Contains(body, `status="200"`) {
		t.Fatalf("expected labelled request counter, got:\n%s", body)
	}
}
