package session

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"credd/cmd/identity/ids"
	"credd/cmd/internal/autherr"
	"credd/cmd/security/token"
)

// Issued is a freshly minted access token.
type Issued struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ID        string    `json:"-"`
	KeyID     string    `json:"-"`
}

// Claims are the verified contents of an access token.
type Claims struct {
	Subject   string
	ID        string
	Issuer    string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints access tokens for an authenticated subject.
type Issuer interface {
	Issue(ctx context.Context, subject string) (Issued, error)
}

// Verifier checks an access token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Claims, error)
}

// Manager implements Issuer and Verifier over a KeyRing.
type Manager struct {
	cfg    Config
	keys   *token.KeyRing
	clock  Clock
	parser *jwt.Parser
}

var (
	_ Issuer   = (*Manager)(nil)
	_ Verifier = (*Manager)(nil)
)

// NewManager builds a Manager. A nil clock means SystemClock.
func NewManager(cfg Config, keys *token.KeyRing, clock Clock) (*Manager, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, token.ErrKeyMissing
	}
	if clock == nil {
		clock = SystemClock
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		// jwt treats now == exp as expired; the extra nanosecond makes the
		// expiry instant itself still valid.
		jwt.WithLeeway(cfg.ClockSkew+time.Nanosecond),
		jwt.WithTimeFunc(clock.Now),
	)

	return &Manager{cfg: cfg, keys: keys, clock: clock, parser: parser}, nil
}

// Issue signs a token for subject with the current ring key.
func (m *Manager) Issue(_ context.Context, subject string) (Issued, error) {
	const op = "session.Issue"

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Issued{}, autherr.E(op, autherr.ErrInvalidInput, "subject is required")
	}

	// JWT timestamps are whole seconds. iat rounds down and exp rounds up,
	// so the token never covers less than the TTL and the returned expiry
	// equals the encoded one.
	at := m.clock.Now().UTC()
	now := at.Truncate(time.Second)
	exp := ceilSecond(at.Add(m.cfg.AccessTokenTTL))

	jti, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, autherr.Wrap(op, autherr.ErrUnavailable, err)
	}

	key := m.keys.Current()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.cfg.Issuer,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	t.Header["kid"] = key.ID

	signed, err := t.SignedString(key.Secret)
	if err != nil {
		return Issued{}, autherr.Wrap(op, autherr.ErrUnavailable, err)
	}

	return Issued{Token: signed, ExpiresAt: exp, ID: jti, KeyID: key.ID}, nil
}

// Verify parses raw, checks its signature against the ring and validates
// the time and issuer claims.
func (m *Manager) Verify(_ context.Context, raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, autherr.E("session.Verify", autherr.ErrMalformedToken, "empty token")
	}

	var rc jwt.RegisteredClaims
	t, err := m.parser.ParseWithClaims(raw, &rc, m.keyFunc)
	if err != nil {
		return Claims{}, classify(err)
	}
	if strings.TrimSpace(rc.Subject) == "" || rc.ExpiresAt == nil || rc.IssuedAt == nil {
		return Claims{}, autherr.E("session.Verify", autherr.ErrMalformedToken, "missing subject")
	}

	kid, _ := t.Header["kid"].(string)
	return Claims{
		Subject:   rc.Subject,
		ID:        rc.ID,
		Issuer:    rc.Issuer,
		KeyID:     kid,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

func ceilSecond(t time.Time) time.Time {
	if down := t.Truncate(time.Second); !down.Equal(t) {
		return down.Add(time.Second)
	}
	return t
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errUnknownKey
	}
	secret, ok := m.keys.Lookup(kid)
	if !ok {
		return nil, errUnknownKey
	}
	return secret, nil
}
