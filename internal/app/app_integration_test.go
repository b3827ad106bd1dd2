//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/food-delivery-orders/internal/domain/address"
	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
	"github.com/xenking/food-delivery-orders/internal/domain/offer"
	"github.com/xenking/food-delivery-orders/internal/domain/product"
	"github.com/xenking/food-delivery-orders/internal/domain/restaurant"
	"github.com/xenking/food-delivery-orders/internal/handler"
	"github.com/xenking/food-delivery-orders/internal/storage/postgres"
	"github.com/xenking/food-delivery-orders/pkg/httpmiddleware"
)

const testSecret = "integration-secret-0123456789"

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Response types are local so the tests only see the wire format.

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type orderResponse struct {
	ID                       string          `json:"id"`
	CustomerID               int64           `json:"customerId"`
	RestaurantID             int64           `json:"restaurantId"`
	Status                   string          `json:"status"`
	Subtotal                 float64         `json:"subtotal"`
	DeliveryFee              float64         `json:"deliveryFee"`
	Total                    float64         `json:"total"`
	AppliedOffers            []int64         `json:"appliedOffers"`
	EstimatedDeliveryMinutes int             `json:"estimatedDeliveryMinutes"`
	Items                    []orderItem     `json:"items"`
	Payment                  paymentResponse `json:"payment"`
}

type orderItem struct {
	ProductID         int64   `json:"productId"`
	Quantity          int     `json:"quantity"`
	OriginalUnitPrice float64 `json:"originalUnitPrice"`
	UnitPrice         float64 `json:"unitPrice"`
	Subtotal          float64 `json:"subtotal"`
}

type paymentResponse struct {
	Method string  `json:"method"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

type historyResponse struct {
	History []struct {
		From      string `json:"from"`
		To        string `json:"to"`
		ActorID   int64  `json:"actorId"`
		ActorRole string `json:"actorRole"`
	} `json:"history"`
}

type quoteResponse struct {
	Subtotal      float64 `json:"subtotal"`
	Total         float64 `json:"total"`
	AppliedOffers []int64 `json:"appliedOffers"`
}

type fixture struct {
	baseURL    string
	restaurant int64
	otherRest  int64
	address    int64
	burger     int64
	fries      int64
	offer      int64
	customer   string
	stranger   string
	staff      string
	otherStaff string
}

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orders",
				"POSTGRES_PASSWORD": "orders",
				"POSTGRES_DB":       "orders",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://orders:orders@%s:%s/orders?sslmode=disable", host, port.Port())
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return pool
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	pool := startPostgres(t)

	restaurants := postgres.NewRestaurantRepository(pool)
	products := postgres.NewProductRepository(pool)
	addresses := postgres.NewAddressRepository(pool)
	offers := postgres.NewOfferRepository(pool)

	barn := &restaurant.Restaurant{
		Name:                     "Burger Barn",
		IsOpen:                   true,
		DeliveryFee:              decimal.RequireFromString("2.50"),
		EstimatedDeliveryMinutes: 30,
		State:                    lifecycle.Active,
	}
	nook := &restaurant.Restaurant{
		Name:                     "Noodle Nook",
		IsOpen:                   true,
		DeliveryFee:              decimal.RequireFromString("1.00"),
		EstimatedDeliveryMinutes: 20,
		State:                    lifecycle.Active,
	}
	burger := &product.Product{Name: "Burger", BasePrice: decimal.RequireFromString("10.00"), Available: true, State: lifecycle.Active}
	fries := &product.Product{Name: "Fries", BasePrice: decimal.RequireFromString("3.50"), Available: true, State: lifecycle.Active}
	home := &address.Address{OwnerUserID: 7, Line1: "1 Main St", City: "Springfield"}

	for _, err := range []error{
		restaurants.Create(ctx, barn),
		restaurants.Create(ctx, nook),
		products.Create(ctx, burger),
		products.Create(ctx, fries),
		addresses.Create(ctx, home),
	} {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	now := time.Now().UTC()
	promo := &offer.Offer{
		RestaurantID:  barn.ID,
		ProductID:     burger.ID,
		DiscountType:  offer.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(24 * time.Hour),
		Status:        offer.StatusActive,
		State:         lifecycle.Active,
	}
	if err := offers.Upsert(ctx, promo); err != nil {
		t.Fatalf("seed offer: %v", err)
	}

	cfg := &Config{JWTSecret: testSecret}
	cfg.Offers.Enabled = true
	cfg.RateLimit.Max = 1000
	cfg.RateLimit.Window = time.Minute

	srv, err := newServer(pool, cfg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(httpmiddleware.Wrap(srv.api,
		httpmiddleware.InjectLogger(zaptest.NewLogger(t)),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
	))
	t.Cleanup(ts.Close)

	authn := handler.NewAuthenticator([]byte(testSecret))
	issue := func(a auth.Actor) string {
		tok, err := authn.Issue(a, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return tok
	}

	return &fixture{
		baseURL:    ts.URL,
		restaurant: barn.ID,
		otherRest:  nook.ID,
		address:    home.ID,
		burger:     burger.ID,
		fries:      fries.ID,
		offer:      promo.ID,
		customer:   issue(auth.Actor{UserID: 7, Role: auth.RoleCustomer}),
		stranger:   issue(auth.Actor{UserID: 8, Role: auth.RoleCustomer}),
		staff:      issue(auth.Actor{UserID: 100, Role: auth.RoleRestaurant, RestaurantID: barn.ID}),
		otherStaff: issue(auth.Actor{UserID: 101, Role: auth.RoleRestaurant, RestaurantID: nook.ID}),
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, f.baseURL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (f *fixture) placeOrder(t *testing.T, items ...map[string]any) orderResponse {
	t.Helper()

	resp := f.do(t, http.MethodPost, "/orders", f.customer, map[string]any{
		"restaurantId":      f.restaurant,
		"deliveryAddressId": f.address,
		"items":             items,
		"paymentMethod":     "card",
		"notes":             "<b>ring</b> the bell",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		e := decodeJSON[errorResponse](t, resp)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, e.Message)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestEndToEnd(t *testing.T) {
	f := setup(t)

	t.Run("no token", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/orders/"+"00000000-0000-0000-0000-000000000000", "", nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("place order applies offer", func(t *testing.T) {
		o := f.placeOrder(t,
			map[string]any{"productId": f.burger, "quantity": 2},
			map[string]any{"productId": f.fries, "quantity": 1},
		)

		if !uuidPattern.MatchString(o.ID) {
			t.Errorf("order id %q is not a UUID", o.ID)
		}
		if o.Status != "pending" {
			t.Errorf("status: got %q, want pending", o.Status)
		}
		// 2 x 8.00 + 3.50 = 19.50, plus 2.50 delivery.
		if o.Subtotal != 19.5 {
			t.Errorf("subtotal: got %v, want 19.5", o.Subtotal)
		}
		if o.Total != 22 {
			t.Errorf("total: got %v, want 22", o.Total)
		}
		if len(o.AppliedOffers) != 1 || o.AppliedOffers[0] != f.offer {
			t.Errorf("applied offers: got %v, want [%d]", o.AppliedOffers, f.offer)
		}
		if o.EstimatedDeliveryMinutes != 30 {
			t.Errorf("estimated minutes: got %d, want 30", o.EstimatedDeliveryMinutes)
		}
		if o.Payment.Status != "completed" || o.Payment.Amount != 22 {
			t.Errorf("payment: got %+v", o.Payment)
		}
		if len(o.Items) != 2 || o.Items[0].OriginalUnitPrice != 10 || o.Items[0].UnitPrice != 8 {
			t.Errorf("items: got %+v", o.Items)
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders", f.customer, map[string]any{
			"restaurantId":      f.restaurant,
			"deliveryAddressId": f.address,
			"items":             []map[string]any{{"productId": 999999, "quantity": 1}},
			"paymentMethod":     "cash",
		})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("another customer's address", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders", f.stranger, map[string]any{
			"restaurantId":      f.restaurant,
			"deliveryAddressId": f.address,
			"items":             []map[string]any{{"productId": f.burger, "quantity": 1}},
			"paymentMethod":     "cash",
		})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("visibility", func(t *testing.T) {
		o := f.placeOrder(t, map[string]any{"productId": f.fries, "quantity": 1})

		for _, tt := range []struct {
			name   string
			token  string
			status int
		}{
			{"owner", f.customer, http.StatusOK},
			{"restaurant staff", f.staff, http.StatusOK},
			{"other customer", f.stranger, http.StatusForbidden},
			{"other restaurant", f.otherStaff, http.StatusForbidden},
		} {
			t.Run(tt.name, func(t *testing.T) {
				resp := f.do(t, http.MethodGet, "/orders/"+o.ID, tt.token, nil)
				defer resp.Body.Close()

				if resp.StatusCode != tt.status {
					t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
				}
			})
		}
	})

	t.Run("status workflow", func(t *testing.T) {
		o := f.placeOrder(t, map[string]any{"productId": f.burger, "quantity": 1})

		resp := f.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", f.staff, map[string]any{"status": "accepted"})
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("accept: expected 200, got %d", resp.StatusCode)
		}
		accepted := decodeJSON[orderResponse](t, resp)
		resp.Body.Close()
		if accepted.Status != "accepted" {
			t.Fatalf("status: got %q, want accepted", accepted.Status)
		}

		// Customers may only cancel pending orders.
		resp = f.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", f.customer, map[string]any{"status": "cancelled"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("cancel: expected 409, got %d", resp.StatusCode)
		}

		resp = f.do(t, http.MethodGet, "/orders/"+o.ID+"/history", f.customer, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("history: expected 200, got %d", resp.StatusCode)
		}
		h := decodeJSON[historyResponse](t, resp)
		if len(h.History) != 2 {
			t.Fatalf("history: got %d entries, want 2", len(h.History))
		}
		if h.History[1].From != "pending" || h.History[1].To != "accepted" || h.History[1].ActorRole != "restaurant" {
			t.Errorf("history entry: got %+v", h.History[1])
		}
	})

	t.Run("quote does not persist", func(t *testing.T) {
		path := fmt.Sprintf("/restaurants/%d/quote", f.restaurant)
		resp := f.do(t, http.MethodPost, path, f.customer, map[string]any{
			"items": []map[string]any{{"productId": f.burger, "quantity": 1}},
		})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		q := decodeJSON[quoteResponse](t, resp)
		if q.Subtotal != 8 || q.Total != 10.5 {
			t.Errorf("quote: got subtotal %v total %v, want 8 and 10.5", q.Subtotal, q.Total)
		}
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, f.baseURL+"/orders/not-a-uuid", nil)
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+f.customer)
		req.Header.Set("X-Request-ID", "custom-request-id-12345")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		defer resp.Body.Close()

		if got := resp.Header.Get("X-Request-ID"); got != "custom-request-id-12345" {
			t.Errorf("X-Request-ID: got %q", got)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
		if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "1000" {
			t.Errorf("X-RateLimit-Limit: got %q", limit)
		}
	})
}
