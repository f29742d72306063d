// Package security decides whether a control-plane request may proceed.
//
// A Gatekeeper owns the credential registry, the per-IP rate limiter and
// the in-memory audit trail. Every public method takes a single mutex, so
// a decision and the state it writes (rate counter, audit entry, user
// table) are one atomic step. Nothing under that lock performs I/O:
// forwarding audit entries to durable sinks, metrics and logging all
// happen after it is released.
package security

import (
	"context"
	"crypto/tls"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/cryptox"
	"github.com/pgElephant/ramd/internal/logging"
	"github.com/pgElephant/ramd/internal/server/auth"
	"github.com/pgElephant/ramd/internal/server/config"
	"github.com/pgElephant/ramd/internal/server/models"
)

// Decision reasons reported to observers.
const (
	ReasonAuthorized         = "authorized"
	ReasonAuthDisabled       = "auth_disabled"
	ReasonRateLimited        = "rate_limited"
	ReasonInvalidToken       = "invalid_token"
	ReasonForbidden          = "forbidden"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonInvalidInput       = "invalid_input"
	ReasonClosed             = "closed"
)

// sessionKeySize is the HS256 signing key width.
const sessionKeySize = 32

// verifyPassword is a seam for tests that observe hashing concurrency.
var verifyPassword = cryptox.VerifyPassword

// AuditPublisher receives every entry recorded in the trail. Publish is
// called without the gatekeeper lock held and must not block.
type AuditPublisher interface {
	Publish(models.AuditEntry)
}

// DecisionObserver is told the outcome of every gate decision.
type DecisionObserver interface {
	ObserveDecision(action string, allowed bool, reason string)
}

type Option func(*Gatekeeper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gatekeeper) { g.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gatekeeper) { g.logger = l }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(g *Gatekeeper) { g.publisher = p }
}

func WithObserver(o DecisionObserver) Option {
	return func(g *Gatekeeper) { g.observer = o }
}

// WithHashConcurrency bounds how many password hashes run at once.
// Each argon2id hash holds its full memory cost while it runs. The
// default is runtime.GOMAXPROCS(0).
func WithHashConcurrency(n int) Option {
	return func(g *Gatekeeper) { g.hashConcurrency = n }
}

// Gatekeeper is the security context of one ramd process.
type Gatekeeper struct {
	mu sync.Mutex

	authEnabled            bool
	sslEnabled             bool
	rateLimitingEnabled    bool
	auditEnabled           bool
	inputValidationEnabled bool
	sessionsEnabled        bool
	sessionTimeout         time.Duration
	maxConnections         int

	registry    *Registry
	limiter     *RateLimiter
	trail       *AuditTrail
	sessionKey  []byte
	tlsConfig   *tls.Config
	activeConns int
	closed      bool

	adminTokenGenerated bool

	hashConcurrency int
	hashSlots       *semaphore.Weighted

	now       func() time.Time
	logger    logging.Logger
	publisher AuditPublisher
	observer  DecisionObserver
}

// New validates cfg and builds a ready Gatekeeper. It fails with
// common.ErrConfiguration when the configuration is invalid, TLS material
// cannot be loaded or no randomness is available for generated secrets.
func New(cfg *config.Config, opts ...Option) (*Gatekeeper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", common.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gatekeeper{
		authEnabled:            cfg.EnableAuth,
		sslEnabled:             cfg.EnableSSL,
		rateLimitingEnabled:    cfg.EnableRateLimiting,
		auditEnabled:           cfg.EnableAudit,
		inputValidationEnabled: cfg.EnableInputValidation,
		sessionsEnabled:        cfg.EnableSessionManagement,
		sessionTimeout:         cfg.SessionTimeout,
		maxConnections:         cfg.MaxConnections,
		now:                    time.Now,
		logger:                 logging.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("module", "gatekeeper")

	if g.hashConcurrency <= 0 {
		g.hashConcurrency = runtime.GOMAXPROCS(0)
	}
	g.hashSlots = semaphore.NewWeighted(int64(g.hashConcurrency))

	adminToken := cfg.AdminToken
	if adminToken == "" {
		t, err := newToken()
		if err != nil {
			return nil, fmt.Errorf("%w: generate admin token: %v", common.ErrConfiguration, err)
		}
		adminToken = t
		g.adminTokenGenerated = true
	}

	if cfg.EnableSSL {
		tlsCfg, err := LoadTLSConfig(cfg.SSLCertFile, cfg.SSLKeyFile, cfg.SSLCAFile)
		if err != nil {
			return nil, err
		}
		g.tlsConfig = tlsCfg
	}

	if cfg.EnableSessionManagement {
		key, err := common.RandomBytes(sessionKeySize)
		if err != nil {
			return nil, fmt.Errorf("%w: session key: %v", common.ErrConfiguration, err)
		}
		g.sessionKey = key
	}

	g.registry = NewRegistry([]byte(adminToken), MaxUsers)
	g.limiter = NewRateLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow, cfg.RateLimitBlockDuration, MaxRateLimitEntries)
	g.trail = NewAuditTrail(AuditCapacity)

	return g, nil
}

type decision struct {
	allowed bool
	actor   string
	reason  string
	details string
}

func (d decision) err() error {
	switch {
	case d.allowed:
		return nil
	case d.reason == ReasonRateLimited:
		return common.ErrRateLimited
	case d.reason == ReasonForbidden:
		return common.ErrForbidden
	default:
		return common.ErrUnauthorized
	}
}

// Authenticate runs the gate for one request: rate check, then the
// authentication bypass, then token validation, then the role check of
// the token's owner. Exactly one audit entry is recorded per call.
func (g *Gatekeeper) Authenticate(ctx context.Context, clientIP, token, action, resource string) bool {
	return g.Check(ctx, clientIP, token, action, resource) == nil
}

// Check is Authenticate reporting why a request was denied:
// common.ErrRateLimited, common.ErrUnauthorized, common.ErrForbidden or
// common.ErrClosed.
func (g *Gatekeeper) Check(ctx context.Context, clientIP, token, action, resource string) error {
	id := uuid.NewString()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.observe(action, false, ReasonClosed)
		return common.ErrClosed
	}
	now := g.now()
	d := g.decideLocked(now, clientIP, token, action)
	entry, recorded := g.recordLocked(id, now, clientIP, d.actor, action, resource, d.allowed, d.details)
	g.mu.Unlock()

	g.report(ctx, entry, recorded, action, d)
	return d.err()
}

// Reject records a request refused before it reached the gate, such as
// one whose fields fail input validation. The request still counts
// against the client's rate budget and is audited as a failure under the
// token owner, or anonymously. It returns common.ErrValidation, or
// common.ErrRateLimited when the client is over its budget.
func (g *Gatekeeper) Reject(ctx context.Context, clientIP, token, action, resource string) error {
	id := uuid.NewString()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.observe(action, false, ReasonClosed)
		return common.ErrClosed
	}
	now := g.now()
	d := decision{actor: models.AnonymousActor, reason: ReasonInvalidInput, details: "invalid input"}
	if g.rateLimitingEnabled && !g.limiter.Allow(clientIP, now) {
		d = decision{actor: models.AnonymousActor, reason: ReasonRateLimited, details: "rate limit exceeded"}
	} else if who, ok := g.resolveLocked(token); ok {
		d.actor = who.Username
	}
	entry, recorded := g.recordLocked(id, now, clientIP, d.actor, action, resource, false, d.details)
	g.mu.Unlock()

	g.report(ctx, entry, recorded, action, d)
	if d.reason == ReasonRateLimited {
		return common.ErrRateLimited
	}
	return common.ErrValidation
}

func (g *Gatekeeper) decideLocked(now time.Time, clientIP, token, action string) decision {
	if g.rateLimitingEnabled && !g.limiter.Allow(clientIP, now) {
		return decision{actor: models.AnonymousActor, reason: ReasonRateLimited, details: "rate limit exceeded"}
	}

	if !g.authEnabled {
		return decision{allowed: true, actor: models.AnonymousActor, reason: ReasonAuthDisabled, details: "authentication disabled"}
	}

	who, ok := g.resolveLocked(token)
	if !ok {
		return decision{actor: models.AnonymousActor, reason: ReasonInvalidToken, details: "invalid token"}
	}

	if !Permits(who.Role, action) {
		return decision{
			actor:   who.Username,
			reason:  ReasonForbidden,
			details: fmt.Sprintf("role %s may not %s", who.Role, action),
		}
	}

	return decision{allowed: true, actor: who.Username, reason: ReasonAuthorized, details: "authorized"}
}

// resolveLocked accepts the admin token, an active user's static token
// or, with session management on, an unexpired session token of an
// active user. The role is always read from the registry so role and
// activity changes apply to outstanding sessions immediately.
func (g *Gatekeeper) resolveLocked(token string) (Identity, bool) {
	if who, ok := g.registry.Resolve(token); ok {
		return who, true
	}
	if !g.sessionsEnabled || token == "" {
		return Identity{}, false
	}
	username, err := auth.GetUsernameFromToken(token, g.sessionKey, g.now)
	if err != nil {
		return Identity{}, false
	}
	return g.registry.lookup(username)
}

func (g *Gatekeeper) recordLocked(id string, now time.Time, clientIP, actor, action, resource string, allowed bool, details string) (models.AuditEntry, bool) {
	if !g.auditEnabled {
		return models.AuditEntry{}, false
	}
	result := models.ResultFailure
	if allowed {
		result = models.ResultSuccess
	}
	entry := models.AuditEntry{
		ID:        id,
		Timestamp: now,
		ClientIP:  clientIP,
		Username:  actor,
		Action:    action,
		Resource:  resource,
		Result:    result,
		Details:   details,
	}
	g.trail.Record(entry)
	return entry, true
}

func (g *Gatekeeper) report(ctx context.Context, entry models.AuditEntry, recorded bool, action string, d decision) {
	if recorded && g.publisher != nil {
		g.publisher.Publish(entry)
	}
	g.observe(action, d.allowed, d.reason)

	switch d.reason {
	case ReasonRateLimited:
		g.logger.Debug(ctx, "request rate limited", "action", action)
	case ReasonInvalidToken, ReasonInvalidCredentials:
		g.logger.Info(ctx, "authentication failed", "action", action, "reason", d.reason)
	case ReasonForbidden:
		g.logger.Warn(ctx, "request forbidden", "action", action, "user", d.actor)
	}
}

func (g *Gatekeeper) observe(action string, allowed bool, reason string) {
	if g.observer != nil {
		g.observer.ObserveDecision(action, allowed, reason)
	}
}

// ValidateToken reports whether token would pass the token step of
// Authenticate.
func (g *Gatekeeper) ValidateToken(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	_, ok := g.resolveLocked(token)
	return ok
}

// AddUser registers a user and returns its static token. Hashing happens
// before the lock is taken, in one of the bounded hash slots; the
// duplicate and capacity checks and the insert happen under the lock.
func (g *Gatekeeper) AddUser(ctx context.Context, username, password string, role models.Role) (string, error) {
	if err := g.hashSlots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	u, token, err := newUser(username, password, role, g.now())
	g.hashSlots.Release(1)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		wipeUser(u)
		return "", common.ErrClosed
	}
	err = g.registry.insert(u)
	g.mu.Unlock()

	if err != nil {
		wipeUser(u)
		return "", err
	}
	g.logger.Info(ctx, "user added", "user", username, "role", role.String())
	return token, nil
}

// Login verifies a username and password and returns a token for the
// user: a session token when session management is on, otherwise the
// user's static token. The attempt passes through the rate limiter and is
// audited like any other request.
func (g *Gatekeeper) Login(ctx context.Context, clientIP, username, password string) (string, error) {
	id := uuid.NewString()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", common.ErrClosed
	}
	now := g.now()
	if g.rateLimitingEnabled && !g.limiter.Allow(clientIP, now) {
		d := decision{actor: models.AnonymousActor, reason: ReasonRateLimited, details: "rate limit exceeded"}
		entry, recorded := g.recordLocked(id, now, clientIP, d.actor, ActionLogin, username, false, d.details)
		g.mu.Unlock()
		g.report(ctx, entry, recorded, ActionLogin, d)
		return "", common.ErrRateLimited
	}
	salt, stored, known := g.registry.credentials(username)
	g.mu.Unlock()

	if err := g.hashSlots.Acquire(ctx, 1); err != nil {
		common.WipeByteArray(salt)
		common.WipeByteArray(stored)
		return "", err
	}
	// Unknown users still pay for a hash so timing does not reveal them.
	ok := verifyPassword([]byte(password), salt, stored)
	g.hashSlots.Release(1)
	common.WipeByteArray(salt)
	common.WipeByteArray(stored)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", common.ErrClosed
	}
	now = g.now()
	var (
		d      decision
		static string
	)
	if ok && known {
		static, ok = g.registry.markLogin(username, now)
	}
	if ok && known {
		d = decision{allowed: true, actor: username, reason: ReasonAuthorized, details: "login"}
	} else {
		d = decision{actor: models.AnonymousActor, reason: ReasonInvalidCredentials, details: "invalid credentials"}
	}
	entry, recorded := g.recordLocked(id, now, clientIP, d.actor, ActionLogin, username, d.allowed, d.details)
	sessionKey := g.sessionKey
	g.mu.Unlock()

	g.report(ctx, entry, recorded, ActionLogin, d)
	if !d.allowed {
		return "", common.ErrUnauthorized
	}
	if !g.sessionsEnabled {
		return static, nil
	}

	token, err := auth.GenerateToken(username, sessionKey, g.sessionTimeout, now)
	if err != nil {
		return "", fmt.Errorf("%w: issue session: %v", common.ErrInternal, err)
	}
	return token, nil
}

// SetRole changes a user's role.
func (g *Gatekeeper) SetRole(ctx context.Context, username string, role models.Role) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return common.ErrClosed
	}
	err := g.registry.SetRole(username, role)
	g.mu.Unlock()

	if err != nil {
		return err
	}
	g.logger.Info(ctx, "role changed", "user", username, "role", role.String())
	return nil
}

// SetUserActive enables or disables a user. A disabled user's tokens,
// static and session, stop validating immediately.
func (g *Gatekeeper) SetUserActive(ctx context.Context, username string, active bool) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return common.ErrClosed
	}
	err := g.registry.SetActive(username, active)
	g.mu.Unlock()

	if err != nil {
		return err
	}
	g.logger.Info(ctx, "user activity changed", "user", username, "active", active)
	return nil
}

// Users lists registered users without their secrets.
func (g *Gatekeeper) Users() []models.UserInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	return g.registry.Users()
}

// ValidateAndSanitize validates input and returns its sanitized form.
// With input validation disabled every input is valid and returned as is.
func (g *Gatekeeper) ValidateAndSanitize(input string, maxLength int) (bool, string) {
	if !g.inputValidationEnabled {
		return true, input
	}
	return Validate(input, maxLength), Sanitize(input, maxLength)
}

// GetAuditLog returns up to maxEntries audit entries, most recent first,
// and how many were returned.
func (g *Gatekeeper) GetAuditLog(maxEntries int) ([]models.AuditEntry, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, 0
	}
	entries := g.trail.Read(maxEntries)
	return entries, len(entries)
}

// GetStatus returns a snapshot of the gatekeeper's configuration and
// counters.
func (g *Gatekeeper) GetStatus() models.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := models.Status{
		AuthEnabled:              g.authEnabled,
		SSLEnabled:               g.sslEnabled,
		RateLimitingEnabled:      g.rateLimitingEnabled,
		AuditEnabled:             g.auditEnabled,
		InputValidationEnabled:   g.inputValidationEnabled,
		SessionManagementEnabled: g.sessionsEnabled,
		ActiveConnections:        g.activeConns,
	}
	if g.closed {
		return st
	}
	st.UserCount = g.registry.Len()
	st.BlockedIPCount = g.limiter.BlockedCount(g.now())
	st.TrackedIPCount = g.limiter.Len()
	st.AuditEntries = g.trail.Len()
	return st
}

// OpenConnection reserves one of max_connections slots. The returned
// release func frees it and is safe to call more than once.
func (g *Gatekeeper) OpenConnection() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, common.ErrClosed
	}
	if g.activeConns >= g.maxConnections {
		return nil, common.ErrTooManyConnections
	}
	g.activeConns++

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.activeConns--
			g.mu.Unlock()
		})
	}, nil
}

// Sweep drops idle rate-limit entries and returns how many were removed.
func (g *Gatekeeper) Sweep(ctx context.Context) int {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0
	}
	n := g.limiter.Sweep(g.now())
	g.mu.Unlock()

	if n > 0 {
		g.logger.Debug(ctx, "rate limit entries swept", "removed", n)
	}
	return n
}

// TLSConfig returns the server TLS configuration, or nil when SSL is off.
func (g *Gatekeeper) TLSConfig() *tls.Config {
	return g.tlsConfig
}

// AdminToken returns the admin token and whether it was generated at
// startup rather than configured.
func (g *Gatekeeper) AdminToken() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return "", false
	}
	return string(g.registry.adminToken), g.adminTokenGenerated
}

// Cleanup zeroes every secret and releases all state. Callers must stop
// serving requests first; afterwards every method fails closed.
func (g *Gatekeeper) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.registry.Wipe()
	common.WipeByteArray(g.sessionKey)
	g.sessionKey = nil
	g.limiter.Reset()
	g.trail.Reset()
	g.closed = true
}
