// Package shorten creates short links: it validates the request, applies the
// monthly quota and premium rules, then inserts the link under a custom or
// generated code.
package shorten

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/codegen"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/quota"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// MaxGenerateAttempts bounds how many generated codes are tried before
// giving up.
const MaxGenerateAttempts = 5

// Owner identifies the authenticated caller.
type Owner struct {
	ID string
}

// Request is a shortening request. Owner is nil for anonymous callers.
type Request struct {
	URL        string
	CustomCode string
	Owner      *Owner
}

// Result is a created short link.
type Result struct {
	ShortCode string `json:"shortCode"`
	ShortURL  string `json:"shortUrl"`
}

// Service creates links.
type Service struct {
	store      store.LinkStore
	enforcer   *quota.Enforcer
	baseURL    string
	codeLength int
	reporter   report.Reporter
	generate   func(int) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithBaseURL sets the prefix of returned short URLs.
func WithBaseURL(base string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithCodeLength sets the generated code length.
func WithCodeLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeLength = n
		}
	}
}

// WithReporter sets where unexpected store errors are reported.
func WithReporter(r report.Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// NewService creates a shortening service over st.
func NewService(st store.LinkStore, enforcer *quota.Enforcer, opts ...Option) *Service {
	s := &Service{
		store:      st,
		enforcer:   enforcer,
		codeLength: codegen.DefaultLength,
		reporter:   report.Discard,
		generate:   codegen.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns the configured short URL prefix, possibly empty.
func (s *Service) BaseURL() string { return s.baseURL }

// Shorten creates one link for req. On success exactly one row was
// inserted; on failure none was.
func (s *Service) Shorten(ctx context.Context, req Request) (*Result, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	if req.CustomCode != "" {
		if err := codegen.ValidateCustom(req.CustomCode); err != nil {
			return nil, err
		}
	}

	tier := models.TierFree
	if req.Owner != nil {
		var err error
		tier, err = s.store.GetSubscriptionTier(ctx, req.Owner.ID)
		if err != nil {
			return nil, s.storeError(ctx, err, "get subscription tier", "owner", req.Owner.ID)
		}
		decision, err := s.enforcer.CheckAndReserve(ctx, req.Owner.ID, tier)
		if err != nil {
			return nil, s.storeError(ctx, err, "check quota", "owner", req.Owner.ID)
		}
		if !decision.Allowed {
			return nil, &QuotaExceededError{Current: decision.Current, Limit: decision.Limit}
		}
	}

	link := &models.Link{OriginalURL: req.URL}
	if req.Owner != nil {
		id := req.Owner.ID
		link.OwnerID = &id
	}

	if req.CustomCode != "" {
		if req.Owner == nil || !tier.Premium() {
			return nil, ErrCustomCodeRequiresPremium
		}
		link.ShortCode = req.CustomCode
		if err := s.store.InsertLinkUnique(ctx, link); err != nil {
			if store.IsUniqueViolation(err) {
				return nil, ErrCodeTaken
			}
			return nil, s.storeError(ctx, err, "insert link", "code", req.CustomCode)
		}
		return s.result(link.ShortCode), nil
	}

	for attempt := 1; attempt <= MaxGenerateAttempts; attempt++ {
		code, err := s.generate(s.codeLength)
		if err != nil {
			return nil, fmt.Errorf("generate short code: %w", err)
		}
		link.ID = 0
		link.ShortCode = code
		err = s.store.InsertLinkUnique(ctx, link)
		if err == nil {
			return s.result(code), nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, s.storeError(ctx, err, "insert link", "code", code, "attempt", attempt)
		}
	}
	s.reporter.Report(ErrGenerationExhausted, "generate short code",
		report.Fields(ctx, "attempts", MaxGenerateAttempts, "length", s.codeLength)...)
	return nil, ErrGenerationExhausted
}

func (s *Service) result(code string) *Result {
	return &Result{ShortCode: code, ShortURL: s.baseURL + "/" + code}
}

// storeError reports err and maps deadlines to ErrStoreTimeout.
func (s *Service) storeError(ctx context.Context, err error, op string, fields ...any) error {
	s.reporter.Report(err, op, report.Fields(ctx, fields...)...)
	if store.IsTimeout(err) {
		return ErrStoreTimeout
	}
	return fmt.Errorf("%s: %w", op, err)
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
