package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

// withSession attaches verified session claims as the session middleware would.
func withSession(r *http.Request, userID int64, role model.Role) *http.Request {
	claims := &auth.SessionClaims{Username: "user" + strconv.FormatInt(userID, 10), Role: role}
	claims.Subject = strconv.FormatInt(userID, 10)
	return r.WithContext(auth.ContextWithSession(r.Context(), claims))
}

// withAPIKey attaches an API key identity as the key middleware would.
func withAPIKey(r *http.Request, a *model.AuthContext) *http.Request {
	return r.WithContext(auth.ContextWithAuth(r.Context(), a))
}

// fakeAuth implements Authenticator.
type fakeAuth struct {
	user   *model.User
	result *service.LoginResult
	err    error

	gotInput      service.RegisterInput
	gotCode       string
	gotIdentifier string
	adminLogin    bool
}

func (f *fakeAuth) Register(_ context.Context, in service.RegisterInput) (*model.User, error) {
	f.gotInput = in
	return f.user, f.err
}

func (f *fakeAuth) RegisterAdmin(_ context.Context, in service.RegisterInput, code string) (*model.User, error) {
	f.gotInput = in
	f.gotCode = code
	return f.user, f.err
}

func (f *fakeAuth) Authenticate(_ context.Context, identifier, _ string) (*service.LoginResult, error) {
	f.gotIdentifier = identifier
	return f.result, f.err
}

func (f *fakeAuth) AuthenticateAdmin(_ context.Context, identifier, _ string) (*service.LoginResult, error) {
	f.gotIdentifier = identifier
	f.adminLogin = true
	return f.result, f.err
}

// fakeKeys implements KeyManager with the same ownership rules as
// service.APIKeyService.
type fakeKeys struct {
	mu     sync.Mutex
	keys   map[int64]*model.APIKey
	nextID int64
	err    error
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: make(map[int64]*model.APIKey)}
}

func (f *fakeKeys) add(userID int64) *model.APIKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	k := &model.APIKey{
		ID:        f.nextID,
		UserID:    userID,
		KeyPrefix: fmt.Sprintf("ak_%08x", f.nextID),
		CreatedAt: now,
		ExpiresAt: now.AddDate(1, 0, 0),
	}
	f.keys[k.ID] = k
	return k
}

func (f *fakeKeys) Issue(_ context.Context, userID int64) (*service.IssuedKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	k := f.add(userID)
	return &service.IssuedKey{Key: k, Plaintext: k.KeyPrefix + "_" + strings.Repeat("0", 32)}, nil
}

func (f *fakeKeys) List(_ context.Context, userID int64) ([]*model.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.APIKey
	for id := int64(1); id <= f.nextID; id++ {
		if k, ok := f.keys[id]; ok && k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeKeys) RevokeAs(_ context.Context, keyID, actorID int64, admin bool) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyID]
	if !ok || (!admin && k.UserID != actorID) {
		return service.ErrKeyNotFound
	}
	delete(f.keys, keyID)
	return nil
}

func (f *fakeKeys) TotalKeys(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.keys)), nil
}

// fakeUsage implements UsageRecorder in memory.
type fakeUsage struct {
	mu      sync.Mutex
	records []*model.UsageRecord
	err     error
	now     time.Time
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeUsage) Record(_ context.Context, userID int64, keyPrefix, endpoint string) (*model.UsageRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &model.UsageRecord{
		ID:        fmt.Sprintf("rec-%d", len(f.records)+1),
		UserID:    userID,
		KeyPrefix: keyPrefix,
		Endpoint:  endpoint,
		CreatedAt: f.now,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeUsage) UsageByEndpoint(_ context.Context, userID int64) (map[string]model.EndpointUsage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.EndpointUsage)
	for _, rec := range f.records {
		if rec.UserID != userID {
			continue
		}
		u := out[rec.Endpoint]
		u.Endpoint = rec.Endpoint
		u.Count++
		if rec.CreatedAt.After(u.LastUsed) {
			u.LastUsed = rec.CreatedAt
		}
		out[rec.Endpoint] = u
	}
	return out, nil
}

func (f *fakeUsage) Window() time.Duration {
	return service.DefaultUsageWindow
}

func (f *fakeUsage) count(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, rec := range f.records {
		if rec.UserID == userID {
			n++
		}
	}
	return n
}

// fakeQuota implements QuotaReporter and middleware.QuotaEvaluator over
// fakeUsage, using the real plan table.
type fakeQuota struct {
	usage *fakeUsage
	err   error
}

func (f *fakeQuota) EvaluatePlan(_ context.Context, userID int64, plan string) (model.QuotaReport, error) {
	if f.err != nil {
		return model.QuotaReport{}, f.err
	}
	return model.QuotaReport{UsageCount: f.usage.count(userID), Limit: service.LimitFor(plan)}, nil
}

func (f *fakeQuota) Report(ctx context.Context, userID int64, plan string) model.QuotaReport {
	report, err := f.EvaluatePlan(ctx, userID, plan)
	if err != nil {
		return model.QuotaReport{Limit: service.LimitFor(plan)}
	}
	return report
}

// fakeCountries implements CountryResolver.
type fakeCountries struct {
	mu        sync.Mutex
	countries map[string]*model.Country
	err       error
	calls     int
}

func (f *fakeCountries) Resolve(_ context.Context, name string) (*model.Country, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.countries[model.NormalizeCountryName(name)]
	if !ok {
		return nil, service.ErrNotFound
	}
	return c, nil
}

// fakeAdmin implements UserAdmin.
type fakeAdmin struct {
	users   []*model.UserWithUsage
	err     error
	gotPlan string
}

func (f *fakeAdmin) ListUsersWithUsage(context.Context) ([]*model.UserWithUsage, error) {
	return f.users, f.err
}

func (f *fakeAdmin) UpdatePlan(_ context.Context, userID int64, plan string) (*model.User, error) {
	f.gotPlan = plan
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.User.ID == userID {
			u.User.Plan = plan
			cp := u.User
			return &cp, nil
		}
	}
	return nil, service.ErrUnknownUser
}
