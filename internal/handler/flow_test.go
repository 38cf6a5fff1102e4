package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atlasgate/atlasgate/internal/handler/dto"
	"github.com/atlasgate/atlasgate/internal/middleware"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/service"
)

const (
	aliceKey = "ak_7a9f3b1c_0123456789abcdef0123456789abcdef"
	bobKey   = "ak_0b0b0b0b_fedcba9876543210fedcba9876543210"
)

// fakeKeyAuth implements middleware.KeyAuthenticator.
type fakeKeyAuth map[string]*model.AuthContext

func (f fakeKeyAuth) Authenticate(_ context.Context, plaintext string) (*model.AuthContext, error) {
	if a, ok := f[plaintext]; ok {
		return a, nil
	}
	return nil, service.ErrInvalidAPIKey
}

func newLookupRouter(usage *fakeUsage) http.Handler {
	logger := discardLogger()
	quota := &fakeQuota{usage: usage}
	countries := &fakeCountries{countries: map[string]*model.Country{
		"france": {Name: "France", Capital: "Paris", Currency: "Euro", Languages: []string{"French"}},
	}}
	keys := fakeKeyAuth{
		aliceKey: {KeyID: 1, KeyPrefix: "ak_7a9f3b1c", UserID: 3, Role: model.RoleUser, Plan: model.PlanFree},
		bobKey:   {KeyID: 2, KeyPrefix: "ak_0b0b0b0b", UserID: 4, Role: model.RoleUser, Plan: model.PlanPaid},
	}

	countryHandler := NewCountryHandler(countries, usage, quota, logger)
	usageHandler := NewUsageHandler(usage, quota, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(middleware.AuthConfig{Logger: logger, Keys: keys}))
		r.Get("/api/usage", usageHandler.Quota)
		r.With(middleware.Quota(middleware.QuotaConfig{Logger: logger, Quota: quota})).
			Get("/api/country", countryHandler.Get)
	})
	return r
}

func lookup(t *testing.T, router http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/country?name=France", nil)
	req.Header.Set(middleware.APIKeyHeader, key)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// A free user gets exactly 100 lookups in the window: the 100th reports
// {100, 100} and the 101st is refused without being counted.
func TestLookupFlow_FreePlanQuota(t *testing.T) {
	usage := newFakeUsage()
	router := newLookupRouter(usage)

	for i := 1; i <= 99; i++ {
		rec := lookup(t, router, aliceKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d status = %d", i, rec.Code)
		}
		resp := decodeBody[dto.CountryLookupResponse](t, rec)
		if resp.Usage != (model.QuotaReport{UsageCount: int64(i), Limit: 100}) {
			t.Fatalf("call %d usage = %+v", i, resp.Usage)
		}
	}

	rec := lookup(t, router, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("100th call status = %d", rec.Code)
	}
	if resp := decodeBody[dto.CountryLookupResponse](t, rec); resp.Usage != (model.QuotaReport{UsageCount: 100, Limit: 100}) {
		t.Fatalf("100th call usage = %+v, want {100 100}", resp.Usage)
	}
	if got := rec.Header().Get("X-Quota-Used"); got != "99" {
		t.Errorf("X-Quota-Used before the 100th call = %q, want 99", got)
	}

	rec = lookup(t, router, aliceKey)
	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != "QUOTA_EXCEEDED" {
		t.Fatalf("101st call = %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Quota-Limit"); got != "100" {
		t.Errorf("X-Quota-Limit = %q, want 100", got)
	}
	if n := usage.count(3); n != 100 {
		t.Errorf("recorded calls = %d, want 100", n)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("Authorization", "Bearer "+aliceKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage status = %d", rec.Code)
	}
	if q := decodeBody[dto.QuotaResponse](t, rec); q.UsageCount != 100 || q.Limit != 100 || q.Remaining != 0 {
		t.Errorf("quota = %+v", q)
	}
}

func TestLookupFlow_PaidPlanUnaffected(t *testing.T) {
	usage := newFakeUsage()
	router := newLookupRouter(usage)

	for i := 0; i < 100; i++ {
		lookup(t, router, aliceKey)
	}

	for i := 1; i <= 101; i++ {
		rec := lookup(t, router, bobKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("bob call %d status = %d", i, rec.Code)
		}
		if i == 101 {
			resp := decodeBody[dto.CountryLookupResponse](t, rec)
			if resp.Usage != (model.QuotaReport{UsageCount: 101, Limit: 1000}) {
				t.Errorf("bob usage = %+v", resp.Usage)
			}
		}
	}
}

func TestLookupFlow_BadKey(t *testing.T) {
	usage := newFakeUsage()
	router := newLookupRouter(usage)

	for _, key := range []string{"", "ak_deadbeef_" + strconv.Itoa(42)} {
		rec := lookup(t, router, key)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q status = %d, want 401", key, rec.Code)
		}
	}
	if len(usage.records) != 0 {
		t.Error("unauthenticated calls must not be recorded")
	}
}
