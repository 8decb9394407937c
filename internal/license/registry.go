package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/glowgrid/spa-booking-engine/internal/observability/metrics"
	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

// StateBoard is the external licensing-board collaborator.
type StateBoard interface {
	LookupLicense(ctx context.Context, number, state string) (*Record, error)
}

// ProviderDirectory lists the license references a provider holds.
type ProviderDirectory interface {
	LicenseRefs(ctx context.Context, providerID uuid.UUID) ([]Ref, error)
}

// ReciprocitySource finds an agreement honoring fromState licenses in
// toState. A nil agreement with nil error means none exists.
type ReciprocitySource interface {
	FindAgreement(ctx context.Context, fromState, toState string) (*Agreement, error)
}

// ServiceRequirements names what a service type demands of a license.
type ServiceRequirements struct {
	LicenseType    string
	Certifications []string
}

type Config struct {
	CacheTTL         time.Duration // cap on cached verifications
	LookupTimeout    time.Duration // budget for board lookups
	ExpiryWarnWindow time.Duration // warning lead time before expiration
}

// Registry verifies provider credentials against a service type and
// location. Results are cached in redis for the remainder of the calendar
// day (bounded by CacheTTL); concurrent misses for one key collapse to a
// single board lookup.
type Registry struct {
	board        StateBoard
	directory    ProviderDirectory
	reciprocity  ReciprocitySource
	cache        *redis.Client
	requirements map[string]ServiceRequirements
	cfg          Config
	group        singleflight.Group
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
	now          func() time.Time
}

func NewRegistry(board StateBoard, directory ProviderDirectory, reciprocity ReciprocitySource,
	cache *redis.Client, requirements map[string]ServiceRequirements, cfg Config,
	m *metrics.BookingMetrics, logger *logging.Logger) *Registry {

	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 2 * time.Second
	}
	if cfg.ExpiryWarnWindow <= 0 {
		cfg.ExpiryWarnWindow = 30 * 24 * time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Registry{
		board:        board,
		directory:    directory,
		reciprocity:  reciprocity,
		cache:        cache,
		requirements: requirements,
		cfg:          cfg,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Verify runs the full compliance gate for (provider, service, state).
func (r *Registry) Verify(ctx context.Context, providerID uuid.UUID, serviceType, stateCode string) (*Verification, error) {
	key := fmt.Sprintf("license:verify:%s:%s:%s", providerID, serviceType, stateCode)
	started := r.now()

	if cached := r.fromCache(ctx, key); cached != nil {
		cached.Cached = true
		cached.LookupLatency = r.now().Sub(started)
		r.observe(cached)
		return cached, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		ver, err := r.verifyUncached(ctx, providerID, serviceType, stateCode)
		if err != nil {
			return nil, err
		}
		// Timeouts are transient and must not poison the cache.
		if ver.FailureCode != FailLookupTimeout {
			r.toCache(ctx, key, ver)
		}
		return ver, nil
	})
	if err != nil {
		return nil, err
	}

	ver := *(v.(*Verification)) // copy: the singleflight result is shared
	ver.LookupLatency = r.now().Sub(started)
	r.observe(&ver)
	return &ver, nil
}

func (r *Registry) verifyUncached(ctx context.Context, providerID uuid.UUID, serviceType, stateCode string) (*Verification, error) {
	now := r.now()
	ver := &Verification{CheckedAt: now}

	lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	refs, err := r.directory.LicenseRefs(lookupCtx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list license refs: %w", err)
	}
	if len(refs) == 0 {
		ver.FailureCode = FailNoLicense
		ver.Message = "provider holds no license"
		return ver, nil
	}

	records := make([]*Record, 0, len(refs))
	for _, ref := range refs {
		rec, err := r.board.LookupLicense(lookupCtx, ref.Number, ref.State)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
				ver.FailureCode = FailLookupTimeout
				ver.Message = "state board lookup timed out"
				return ver, nil
			}
			if errors.Is(err, ErrLicenseNotFound) {
				continue
			}
			return nil, fmt.Errorf("board lookup %s/%s: %w", ref.State, ref.Number, err)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		ver.FailureCode = FailNoLicense
		ver.Message = "provider holds no license"
		return ver, nil
	}

	req := r.requirements[serviceType]

	match := findAuthorized(records, serviceType)
	if match == nil {
		held := make([]string, 0, len(records))
		for _, rec := range records {
			held = append(held, rec.Type)
		}
		ver.FailureCode = FailInsufficient
		ver.Message = "no held license authorizes the requested service"
		ver.Detail = map[string]any{
			"licenses_held":         held,
			"required_license_type": req.LicenseType,
			"service_type":          serviceType,
		}
		return ver, nil
	}

	ver.LicenseNumber = match.Number
	ver.LicenseState = match.State
	ver.LicenseType = match.Type
	ver.ExpirationDate = match.ExpirationDate

	if match.Status == StatusSuspended {
		ver.FailureCode = FailSuspended
		ver.Message = "license is suspended"
		ver.Detail = map[string]any{"suspension_reason": match.SuspensionReason}
		if match.SuspendedAt != nil {
			ver.Detail["suspended_at"] = match.SuspendedAt.Format(time.RFC3339)
		}
		return ver, nil
	}

	if match.ExpirationDate.Before(now) {
		ver.FailureCode = FailExpired
		ver.Message = "license has expired"
		return ver, nil
	}

	if match.State != stateCode {
		agreement, err := r.reciprocity.FindAgreement(lookupCtx, match.State, stateCode)
		if err != nil {
			return nil, fmt.Errorf("find reciprocity agreement: %w", err)
		}
		if agreement == nil || !agreement.ValidAt(now) {
			ver.FailureCode = FailWrongState
			ver.Message = "license state does not match service location"
			ver.Detail = map[string]any{
				"license_state": match.State,
				"service_state": stateCode,
			}
			return ver, nil
		}
		ver.Reciprocity = true
		ver.AgreementID = agreement.ID
	}

	if missing := missingCertifications(req.Certifications, match.Certifications); len(missing) > 0 {
		ver.FailureCode = FailCertificationRequired
		ver.Message = "provider lacks required certifications"
		ver.Detail = map[string]any{"missing_certifications": missing}
		return ver, nil
	}

	if until := match.ExpirationDate.Sub(now); until < r.cfg.ExpiryWarnWindow {
		ver.Warnings = append(ver.Warnings, Warning{
			Code:                WarnExpiringSoon,
			Message:             "license expires soon",
			DaysUntilExpiration: int(until.Hours() / 24),
		})
	}

	ver.Valid = true
	return ver, nil
}

func findAuthorized(records []*Record, serviceType string) *Record {
	for _, rec := range records {
		for _, svc := range rec.AuthorizedServices {
			if svc == serviceType {
				return rec
			}
		}
	}
	return nil
}

func missingCertifications(required, held []string) []string {
	var missing []string
	for _, want := range required {
		found := false
		for _, have := range held {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, want)
		}
	}
	return missing
}

func (r *Registry) fromCache(ctx context.Context, key string) *Verification {
	if r.cache == nil {
		return nil
	}
	data, err := r.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("license cache read failed", "key", key, "error", err)
		}
		return nil
	}
	var ver Verification
	if err := json.Unmarshal(data, &ver); err != nil {
		r.logger.Warn("license cache entry corrupt", "key", key, "error", err)
		return nil
	}
	return &ver
}

func (r *Registry) toCache(ctx context.Context, key string, ver *Verification) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(ver)
	if err != nil {
		r.logger.Warn("license cache marshal failed", "key", key, "error", err)
		return
	}
	if err := r.cache.Set(ctx, key, data, r.cacheTTL()).Err(); err != nil {
		r.logger.Warn("license cache write failed", "key", key, "error", err)
	}
}

// cacheTTL bounds entries to the configured TTL, never crossing into the
// next UTC day: a verification is good for the calendar day at most.
func (r *Registry) cacheTTL() time.Duration {
	now := r.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	untilMidnight := midnight.Sub(now)
	if untilMidnight < r.cfg.CacheTTL {
		return untilMidnight
	}
	return r.cfg.CacheTTL
}

func (r *Registry) observe(ver *Verification) {
	result := "valid"
	if !ver.Valid {
		result = ver.FailureCode
	}
	r.metrics.ObserveLicenseVerification(result, ver.Cached)
}
