package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlasgate/atlasgate/internal/cache"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
	"github.com/atlasgate/atlasgate/internal/upstream"
)

var errStoreDown = errors.New("connection refused")

// memStore is an in-memory stand-in for *repository.Repository.
type memStore struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	keys      map[int64]*model.APIKey
	usage     []*model.UsageRecord
	countries map[string]*model.Country
	nextID    int64

	// failWith, when set, is returned by every call.
	failWith error
	// dupHashes makes the next N CreateAPIKey calls report a hash collision.
	dupHashes int
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[int64]*model.User),
		keys:      make(map[int64]*model.APIKey),
		countries: make(map[string]*model.Country),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return repository.ErrUsernameExists
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrEmailExists
		}
	}
	u.ID = m.id()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if u.Username == identifier || strings.EqualFold(u.Email, identifier) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) UpdateUserPlan(_ context.Context, id int64, plan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Plan = plan
	return nil
}

func (m *memStore) ListUsersWithUsage(_ context.Context) ([]*model.UserWithUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*model.UserWithUsage
	for _, u := range m.users {
		row := &model.UserWithUsage{User: *u}
		for _, r := range m.usage {
			if r.UserID != u.ID {
				continue
			}
			row.UsageCount++
			if row.LastUsed == nil || r.CreatedAt.After(*row.LastUsed) {
				t := r.CreatedAt
				row.LastUsed = &t
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out, nil
}

func (m *memStore) CreateAPIKey(_ context.Context, k *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[k.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	if m.dupHashes > 0 {
		m.dupHashes--
		return repository.ErrAPIKeyExists
	}
	for _, existing := range m.keys {
		if existing.KeyHash == k.KeyHash {
			return repository.ErrAPIKeyExists
		}
	}
	k.ID = m.id()
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *memStore) GetAPIKeyByID(_ context.Context, id int64) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	k, ok := m.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *memStore) GetAPIKeyByHash(_ context.Context, hash string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, k := range m.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, repository.ErrAPIKeyNotFound
}

func (m *memStore) ListAPIKeysByUserID(_ context.Context, userID int64) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) DeleteAPIKey(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.keys[id]; !ok {
		return repository.ErrAPIKeyNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *memStore) CountAPIKeys(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	return int64(len(m.keys)), nil
}

func (m *memStore) HasActiveAPIKey(_ context.Context, userID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	for _, k := range m.keys {
		if k.UserID == userID && k.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertUsage(_ context.Context, r *model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[r.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	cp := *r
	m.usage = append(m.usage, &cp)
	return nil
}

func (m *memStore) CountUsageBetween(_ context.Context, userID int64, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	var n int64
	for _, r := range m.usage {
		if r.UserID == userID && r.CreatedAt.After(from) && !r.CreatedAt.After(to) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) UsageByEndpoint(_ context.Context, userID int64) ([]model.EndpointUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	agg := make(map[string]*model.EndpointUsage)
	for _, r := range m.usage {
		if r.UserID != userID {
			continue
		}
		e, ok := agg[r.Endpoint]
		if !ok {
			e = &model.EndpointUsage{Endpoint: r.Endpoint}
			agg[r.Endpoint] = e
		}
		e.Count++
		if r.CreatedAt.After(e.LastUsed) {
			e.LastUsed = r.CreatedAt
		}
	}
	out := make([]model.EndpointUsage, 0, len(agg))
	for _, e := range agg {
		out = append(out, *e)
	}
	return out, nil
}

func (m *memStore) GetCountryByName(_ context.Context, name string) (*model.Country, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	c, ok := m.countries[model.NormalizeCountryName(name)]
	if !ok {
		return nil, repository.ErrCountryNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) UpsertCountry(_ context.Context, c *model.Country) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.upserts++
	cp := *c
	m.countries[model.NormalizeCountryName(c.Name)] = &cp
	return nil
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

// mapCache is an in-memory CountryCache.
type mapCache struct {
	mu       sync.Mutex
	entries  map[string]*model.Country
	negative map[string]bool
	err      error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*model.Country), negative: make(map[string]bool)}
}

func (c *mapCache) GetCountry(_ context.Context, name string) (*model.Country, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	e, ok := c.entries[model.NormalizeCountryName(name)]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *e
	return &cp, nil
}

func (c *mapCache) SetCountry(ctx context.Context, country *model.Country) error {
	return c.SetCountryAlias(ctx, country.Name, country)
}

func (c *mapCache) SetCountryAlias(_ context.Context, alias string, country *model.Country) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	cp := *country
	key := model.NormalizeCountryName(alias)
	c.entries[key] = &cp
	delete(c.negative, key)
	return nil
}

func (c *mapCache) IsNegativelyCached(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.negative[model.NormalizeCountryName(name)], nil
}

func (c *mapCache) SetNegativeCache(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.negative[model.NormalizeCountryName(name)] = true
	return nil
}

// stubFetcher serves canned upstream responses and counts calls.
type stubFetcher struct {
	mu        sync.Mutex
	countries map[string]*upstream.RawCountry
	err       error
	delay     time.Duration
	calls     int
}

func (f *stubFetcher) FetchCountry(ctx context.Context, name string) (*upstream.RawCountry, error) {
	f.mu.Lock()
	f.calls++
	delay, err := f.delay, f.err
	raw, ok := f.countries[model.NormalizeCountryName(name)]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.Join(upstream.ErrUnavailable, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return raw, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rawCountry(common, capital, currency string, languages map[string]string) *upstream.RawCountry {
	var raw upstream.RawCountry
	raw.Name.Common = common
	if capital != "" {
		raw.Capital = []string{capital}
	}
	if currency != "" {
		raw.Currencies = map[string]struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		}{"XXX": {Name: currency}}
	}
	raw.Languages = languages
	raw.Flags.PNG = "https://flagcdn.com/w320/" + strings.ToLower(common[:2]) + ".png"
	return &raw
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mustAddUser(t *testing.T, m *memStore, username, plan string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "unused",
		Role:         model.RoleUser,
		Plan:         plan,
	}
	if err := m.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("add user %s: %v", username, err)
	}
	return u
}
