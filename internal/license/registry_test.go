package license

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC)

// Fakes

type fakeBoard struct {
	mu      sync.Mutex
	records map[string]*Record // keyed state/number
	err     error
	delay   time.Duration
	calls   int
}

func (b *fakeBoard) LookupLicense(ctx context.Context, number, state string) (*Record, error) {
	b.mu.Lock()
	b.calls++
	err := b.err
	rec := b.records[state+"/"+number]
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrLicenseNotFound
	}
	cp := *rec
	return &cp, nil
}

func (b *fakeBoard) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakeDirectory struct {
	refs []Ref
}

func (d *fakeDirectory) LicenseRefs(_ context.Context, _ uuid.UUID) ([]Ref, error) {
	return append([]Ref(nil), d.refs...), nil
}

type fakeReciprocity struct {
	agreement *Agreement
}

func (r *fakeReciprocity) FindAgreement(_ context.Context, fromState, toState string) (*Agreement, error) {
	if r.agreement != nil && r.agreement.FromState == fromState && r.agreement.ToState == toState {
		cp := *r.agreement
		return &cp, nil
	}
	return nil, nil
}

// Fixture

type registryFixture struct {
	registry   *Registry
	board      *fakeBoard
	providerID uuid.UUID
}

func activeRecord() *Record {
	return &Record{
		Number:             "LIC-001",
		State:              "CA",
		Type:               "cosmetology",
		Status:             StatusActive,
		ExpirationDate:     testNow.AddDate(2, 0, 0),
		AuthorizedServices: []string{"haircut", "color"},
	}
}

func newFixture(t *testing.T, rec *Record, withCache bool) *registryFixture {
	t.Helper()

	providerID := uuid.New()
	board := &fakeBoard{records: map[string]*Record{}}
	dir := &fakeDirectory{}
	if rec != nil {
		board.records[rec.State+"/"+rec.Number] = rec
		dir.refs = []Ref{{ProviderID: providerID, Number: rec.Number, State: rec.State}}
	}

	var cache *redis.Client
	if withCache {
		mr := miniredis.RunT(t)
		cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = cache.Close() })
	}

	registry := NewRegistry(board, dir, &fakeReciprocity{}, cache,
		map[string]ServiceRequirements{
			"haircut":       {LicenseType: "cosmetology"},
			"chemical_peel": {LicenseType: "esthetics", Certifications: []string{"advanced_chemical_peels"}},
		},
		Config{CacheTTL: 10 * time.Minute, LookupTimeout: time.Second, ExpiryWarnWindow: 30 * 24 * time.Hour},
		nil, nil)
	registry.now = func() time.Time { return testNow }

	return &registryFixture{registry: registry, board: board, providerID: providerID}
}

// Tests

func TestVerifyValid(t *testing.T) {
	f := newFixture(t, activeRecord(), false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)

	assert.True(t, ver.Valid)
	assert.Empty(t, ver.FailureCode)
	assert.Equal(t, "LIC-001", ver.LicenseNumber)
	assert.Equal(t, "cosmetology", ver.LicenseType)
	assert.False(t, ver.Cached)
	assert.Empty(t, ver.Warnings)
}

func TestVerifyNoLicense(t *testing.T) {
	f := newFixture(t, nil, false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailNoLicense, ver.FailureCode)
}

func TestVerifyInsufficientLicense(t *testing.T) {
	rec := activeRecord()
	rec.Type = "massage_therapy"
	rec.AuthorizedServices = []string{"massage"}
	f := newFixture(t, rec, false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailInsufficient, ver.FailureCode)
	assert.Equal(t, []string{"massage_therapy"}, ver.Detail["licenses_held"])
	assert.Equal(t, "cosmetology", ver.Detail["required_license_type"])
}

func TestVerifySuspended(t *testing.T) {
	rec := activeRecord()
	rec.Status = StatusSuspended
	rec.SuspensionReason = "disciplinary action"
	suspendedAt := testNow.AddDate(0, -1, 0)
	rec.SuspendedAt = &suspendedAt
	f := newFixture(t, rec, false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailSuspended, ver.FailureCode)
	assert.Equal(t, "disciplinary action", ver.Detail["suspension_reason"])
	assert.NotEmpty(t, ver.Detail["suspended_at"])
}

func TestVerifyExpired(t *testing.T) {
	rec := activeRecord()
	rec.ExpirationDate = testNow.AddDate(0, 0, -1)
	f := newFixture(t, rec, false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailExpired, ver.FailureCode)
}

func TestVerifyWrongState(t *testing.T) {
	f := newFixture(t, activeRecord(), false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "NY")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailWrongState, ver.FailureCode)
	assert.Equal(t, "CA", ver.Detail["license_state"])
	assert.Equal(t, "NY", ver.Detail["service_state"])
}

func TestVerifyReciprocity(t *testing.T) {
	f := newFixture(t, activeRecord(), false)
	f.registry.reciprocity = &fakeReciprocity{agreement: &Agreement{
		ID:            "agr-1",
		FromState:     "CA",
		ToState:       "NV",
		EffectiveFrom: testNow.AddDate(-1, 0, 0),
		ExpiresAt:     testNow.AddDate(1, 0, 0),
	}}

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "NV")
	require.NoError(t, err)
	assert.True(t, ver.Valid)
	assert.True(t, ver.Reciprocity)
	assert.Equal(t, "agr-1", ver.AgreementID)
}

func TestVerifyReciprocityExpiredAgreement(t *testing.T) {
	f := newFixture(t, activeRecord(), false)
	f.registry.reciprocity = &fakeReciprocity{agreement: &Agreement{
		ID:            "agr-2",
		FromState:     "CA",
		ToState:       "NV",
		EffectiveFrom: testNow.AddDate(-2, 0, 0),
		ExpiresAt:     testNow.AddDate(-1, 0, 0),
	}}

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "NV")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailWrongState, ver.FailureCode)
}

func TestVerifyCertificationRequired(t *testing.T) {
	rec := activeRecord()
	rec.Type = "esthetics"
	rec.AuthorizedServices = []string{"chemical_peel"}
	f := newFixture(t, rec, false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "chemical_peel", "CA")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailCertificationRequired, ver.FailureCode)
	assert.Equal(t, []string{"advanced_chemical_peels"}, ver.Detail["missing_certifications"])

	rec.Certifications = []string{"advanced_chemical_peels"}
	ver, err = f.registry.Verify(context.Background(), f.providerID, "chemical_peel", "CA")
	require.NoError(t, err)
	assert.True(t, ver.Valid)
}

func TestVerifyExpiringSoonWarning(t *testing.T) {
	rec := activeRecord()
	rec.ExpirationDate = testNow.AddDate(0, 0, 10)
	f := newFixture(t, rec, false)

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.True(t, ver.Valid)
	require.Len(t, ver.Warnings, 1)
	assert.Equal(t, WarnExpiringSoon, ver.Warnings[0].Code)
	assert.Equal(t, 10, ver.Warnings[0].DaysUntilExpiration)
}

func TestVerifyCaching(t *testing.T) {
	f := newFixture(t, activeRecord(), true)

	first, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, second.Valid)

	assert.Equal(t, 1, f.board.callCount(), "cache hit must not reach the board")

	// A different service key is its own entry.
	_, err = f.registry.Verify(context.Background(), f.providerID, "chemical_peel", "CA")
	require.NoError(t, err)
	assert.Equal(t, 2, f.board.callCount())
}

// tickingClock advances a fixed step on every reading, so latency
// comparisons reduce to counting clock reads instead of real sleeps.
func tickingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestVerifyCachedLookupIsFaster(t *testing.T) {
	f := newFixture(t, activeRecord(), true)
	f.registry.now = tickingClock(testNow, 5*time.Millisecond)

	first, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.True(t, second.Cached)

	// The miss paid for the board round trip; the hit reports only the
	// cache read.
	assert.Positive(t, second.LookupLatency)
	assert.Less(t, second.LookupLatency, first.LookupLatency)
}

func TestVerifyTimeoutNotCached(t *testing.T) {
	f := newFixture(t, activeRecord(), true)
	f.board.err = context.DeadlineExceeded

	ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.False(t, ver.Valid)
	assert.Equal(t, FailLookupTimeout, ver.FailureCode)

	// The board recovers; a fresh verification must reach it again.
	f.board.mu.Lock()
	f.board.err = nil
	f.board.mu.Unlock()

	ver, err = f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
	require.NoError(t, err)
	assert.True(t, ver.Valid)
	assert.False(t, ver.Cached)
	assert.Equal(t, 2, f.board.callCount())
}

func TestVerifyConcurrentLookupsCollapse(t *testing.T) {
	f := newFixture(t, activeRecord(), false)
	f.board.delay = 50 * time.Millisecond

	const callers = 5
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]*Verification, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ver, err := f.registry.Verify(context.Background(), f.providerID, "haircut", "CA")
			assert.NoError(t, err)
			results[i] = ver
		}(i)
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, f.board.callCount(), "concurrent misses should share one lookup")
	for _, ver := range results {
		require.NotNil(t, ver)
		assert.True(t, ver.Valid)
	}
}

func TestCacheTTLCappedAtMidnight(t *testing.T) {
	f := newFixture(t, activeRecord(), false)

	// 23:55 UTC: only five minutes left in the day.
	f.registry.now = func() time.Time {
		return time.Date(2026, time.September, 7, 23, 55, 0, 0, time.UTC)
	}
	assert.Equal(t, 5*time.Minute, f.registry.cacheTTL())

	// Mid-day: the configured TTL wins.
	f.registry.now = func() time.Time { return testNow }
	assert.Equal(t, 10*time.Minute, f.registry.cacheTTL())
}
