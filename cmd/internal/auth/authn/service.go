package authn

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credd/cmd/identity"
	"credd/cmd/internal/auth/session"
	"credd/cmd/internal/auth/throttle"
	"credd/cmd/internal/autherr"
	"credd/cmd/security/password"
)

var tracer = otel.Tracer("credd/authn")

// Result is the outcome of a successful register, login or secret change.
type Result struct {
	Subject   string
	Token     string
	ExpiresAt time.Time
}

// Config tunes the service.
type Config struct {
	// StorageTimeout bounds each storage call. Hitting it fails the
	// operation with ErrTimeout, never ErrInvalidCredentials.
	StorageTimeout time.Duration `koanf:"storage_timeout"`
}

// DefaultConfig returns the baseline service settings.
func DefaultConfig() Config {
	return Config{StorageTimeout: 3 * time.Second}
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Store   identity.Store
	Hasher  password.Hasher
	Hashing password.Config
	Tokens  session.Issuer
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter throttles register and login attempts.
func WithLimiter(l throttle.Limiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithMetrics records operation counters and latencies.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(c session.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// Service implements the authentication flows.
type Service struct {
	creds   *identity.Credentials
	store   identity.Store
	hasher  password.Hasher
	hashing password.Config
	tokens  session.Issuer
	limiter throttle.Limiter
	metrics *Metrics
	log     *slog.Logger
	clock   session.Clock

	// dummyDigest is verified against when the identity is unknown so both
	// login failure paths cost one derivation at the current parameters.
	dummyDigest string
}

// New builds a Service.
func New(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	if deps.Store == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("authn: store, hasher and token issuer are required")
	}

	s := &Service{
		store:   identity.WithTimeout(deps.Store, cfg.StorageTimeout),
		hasher:  deps.Hasher,
		hashing: deps.Hashing,
		tokens:  deps.Tokens,
		limiter: throttle.Noop{},
		log:     slog.Default(),
		clock:   session.SystemClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.creds = identity.NewCredentials(s.store, s.hasher, s.hashing, s.clock.Now)

	dummy, err := newDummyDigest(deps.Hashing)
	if err != nil {
		return nil, fmt.Errorf("authn: dummy digest: %w", err)
	}
	s.dummyDigest = dummy
	return s, nil
}

func newDummyDigest(cfg password.Config) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return cfg.Hash(base64.RawStdEncoding.EncodeToString(b))
}

// Register creates a credential and logs the caller in.
func (s *Service) Register(ctx context.Context, ident, plaintext string) (res Result, err error) {
	ctx, end := s.begin(ctx, opRegister)
	defer func() { end(err) }()

	if err := s.allow(ctx, "authn.Register"); err != nil {
		return Result{}, err
	}

	rec, err := s.creds.Register(ctx, ident, plaintext)
	if err != nil {
		return Result{}, err
	}
	s.log.InfoContext(ctx, "credential registered", "record", rec)

	return s.issue(ctx, rec.Identity)
}

// Login checks plaintext against the record for ident and issues a token.
func (s *Service) Login(ctx context.Context, ident, plaintext string) (res Result, err error) {
	ctx, end := s.begin(ctx, opLogin)
	defer func() { end(err) }()

	norm, nerr := identity.NormalizeIdentity(ident)
	if nerr != nil {
		// No record can have this identity; treat it like an unknown one.
		// Only the client address is throttled so arbitrary input never
		// becomes a limiter key.
		if err := s.allow(ctx, "authn.Login"); err != nil {
			return Result{}, err
		}
		s.burnVerify(ctx, plaintext)
		return Result{}, errInvalidCredentials()
	}
	if err := s.allow(ctx, "authn.Login", "login:"+norm); err != nil {
		return Result{}, err
	}

	rec, err := s.store.GetByIdentity(ctx, norm)
	switch {
	case err == nil:
	case errors.Is(err, autherr.ErrNotFound):
		s.burnVerify(ctx, plaintext)
		return Result{}, errInvalidCredentials()
	default:
		return Result{}, err
	}

	ok, err := s.hasher.Verify(ctx, plaintext, rec.SecretHash)
	if err != nil {
		if errors.Is(err, autherr.ErrMalformedDigest) {
			autherr.Log(s.log, "stored digest is unreadable", err)
			return Result{}, errInvalidCredentials()
		}
		return Result{}, err
	}
	if !ok {
		return Result{}, errInvalidCredentials()
	}

	if s.hashing.NeedsRehash(rec.SecretHash) {
		s.upgradeDigest(ctx, rec, plaintext)
	}

	return s.issue(ctx, rec.Identity)
}

// ChangeSecret re-authenticates subject with oldPlaintext, stores the new
// secret and issues a fresh token.
func (s *Service) ChangeSecret(ctx context.Context, subject, oldPlaintext, newPlaintext string) (res Result, err error) {
	ctx, end := s.begin(ctx, opChangeSecret)
	defer func() { end(err) }()

	if err := s.allow(ctx, "authn.ChangeSecret", "secret:"+subject); err != nil {
		return Result{}, err
	}

	rec, err := s.subjectRecord(ctx, "authn.ChangeSecret", subject)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.creds.ChangeSecret(ctx, rec, oldPlaintext, newPlaintext); err != nil {
		return Result{}, err
	}
	s.log.InfoContext(ctx, "secret changed", "record", rec)

	return s.issue(ctx, rec.Identity)
}

// UpdateProfile applies non-secret changes for subject.
func (s *Service) UpdateProfile(ctx context.Context, subject string, upd identity.ProfileUpdate) (rec identity.Record, err error) {
	ctx, end := s.begin(ctx, opProfile)
	defer func() { end(err) }()

	cur, err := s.subjectRecord(ctx, "authn.UpdateProfile", subject)
	if err != nil {
		return identity.Record{}, err
	}
	return s.creds.UpdateProfile(ctx, cur, upd)
}

// Me returns the record for subject.
func (s *Service) Me(ctx context.Context, subject string) (rec identity.Record, err error) {
	ctx, end := s.begin(ctx, opMe)
	defer func() { end(err) }()

	return s.subjectRecord(ctx, "authn.Me", subject)
}

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) issue(ctx context.Context, subject string) (Result, error) {
	iss, err := s.tokens.Issue(ctx, subject)
	if err != nil {
		return Result{}, err
	}
	return Result{Subject: subject, Token: iss.Token, ExpiresAt: iss.ExpiresAt}, nil
}

// subjectRecord loads the record a verified token names. A record that no
// longer exists leaves the token without a principal.
func (s *Service) subjectRecord(ctx context.Context, op, subject string) (identity.Record, error) {
	rec, err := s.store.GetByIdentity(ctx, subject)
	if errors.Is(err, autherr.ErrNotFound) {
		return identity.Record{}, autherr.E(op, autherr.ErrUnauthenticated, "token subject no longer exists")
	}
	return rec, err
}

// allow consults the limiter for the client address, if known, and then
// each key. The address goes first so one client cannot fill the limiter
// with keys once it is itself throttled. Limiter outages fail open.
func (s *Service) allow(ctx context.Context, op string, keys ...string) error {
	if ip := ClientIP(ctx); ip != "" {
		keys = append([]string{op + "|ip:" + ip}, keys...)
	}
	for _, key := range keys {
		ok, retry, err := s.limiter.Allow(ctx, key)
		if err != nil {
			s.log.WarnContext(ctx, "throttle unavailable, allowing attempt", "op", op, "err", err)
			return nil
		}
		if !ok {
			return autherr.RateLimited(op, retry)
		}
	}
	return nil
}

// burnVerify spends one verification on the dummy digest.
func (s *Service) burnVerify(ctx context.Context, plaintext string) {
	_, _ = s.hasher.Verify(ctx, plaintext, s.dummyDigest)
}

// upgradeDigest re-hashes a verified secret under the current parameters.
// Failure is logged and does not fail the login.
func (s *Service) upgradeDigest(ctx context.Context, rec identity.Record, plaintext string) {
	if _, err := s.creds.Rehash(ctx, rec, plaintext); err != nil {
		autherr.Log(s.log, "digest upgrade failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.Rehashes.Inc()
	}
}

func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "authn."+op,
		trace.WithAttributes(attribute.String("auth.op", op)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("auth.outcome", autherr.Code(err)))
			span.SetStatus(codes.Error, autherr.Code(err))
		}
		span.End()
		s.metrics.observe(op, start, err)
	}
}

// errInvalidCredentials is the single failure returned for every login
// mismatch, whatever the cause.
func errInvalidCredentials() error {
	return autherr.E("authn.Login", autherr.ErrInvalidCredentials, "identity or secret is incorrect")
}
