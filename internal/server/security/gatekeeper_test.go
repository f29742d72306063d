package security

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/server/config"
	"github.com/pgElephant/ramd/internal/server/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (p *recordingPublisher) Publish(e models.AuditEntry) {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
}

type observed struct {
	action  string
	allowed bool
	reason  string
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *recordingObserver) ObserveDecision(action string, allowed bool, reason string) {
	o.mu.Lock()
	o.seen = append(o.seen, observed{action, allowed, reason})
	o.mu.Unlock()
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.AdminToken = testAdminToken
	return c
}

func newTestGatekeeper(t *testing.T, cfg *config.Config, opts ...Option) (*Gatekeeper, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	g, err := New(cfg, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(g.Cleanup)
	return g, clock
}

var ctx = context.Background()

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, common.ErrConfiguration))

	cfg := testConfig()
	cfg.RateLimitMaxRequests = 0
	_, err = New(cfg)
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestNew_TLSMaterial(t *testing.T) {
	dir := t.TempDir()

	cfg := testConfig()
	cfg.EnableSSL = true
	cfg.SSLCertFile = filepath.Join(dir, "missing.crt")
	cfg.SSLKeyFile = filepath.Join(dir, "missing.key")
	_, err := New(cfg)
	assert.True(t, errors.Is(err, common.ErrConfiguration), "got %v", err)

	cfg.SSLCertFile, cfg.SSLKeyFile = writeSelfSigned(t, dir)
	g, _ := newTestGatekeeper(t, cfg)
	assert.NotNil(t, g.TLSConfig())
	assert.True(t, g.GetStatus().SSLEnabled)
}

func TestNew_GeneratesAdminToken(t *testing.T) {
	cfg := testConfig()
	cfg.AdminToken = ""
	g, _ := newTestGatekeeper(t, cfg)

	tok, generated := g.AdminToken()
	assert.True(t, generated)
	assert.Len(t, tok, 2*common.TokenBytes)
	assert.True(t, g.ValidateToken(tok))

	g2, _ := newTestGatekeeper(t, testConfig())
	tok, generated = g2.AdminToken()
	assert.False(t, generated)
	assert.Equal(t, testAdminToken, tok)
}

func TestNew_EntropyFailure(t *testing.T) {
	orig := newToken
	newToken = func() (string, error) { return "", errors.New("no entropy") }
	t.Cleanup(func() { newToken = orig })

	cfg := testConfig()
	cfg.AdminToken = ""
	_, err := New(cfg)
	assert.True(t, errors.Is(err, common.ErrConfiguration), "got %v", err)
}

func TestAuthenticate_Pipeline(t *testing.T) {
	g, _ := newTestGatekeeper(t, testConfig())

	viewer, err := g.AddUser(ctx, "vera", "pw", models.RoleViewer)
	require.NoError(t, err)
	operator, err := g.AddUser(ctx, "otto", "pw", models.RoleOperator)
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		action     string
		want       bool
		wantActor  string
		wantDetail string
	}{
		{"admin may manage users", testAdminToken, ActionAddUser, true, AdminUsername, "authorized"},
		{"operator may switchover", operator, ActionSwitchover, true, "otto", "authorized"},
		{"operator may not manage users", operator, ActionAddUser, false, "otto", "role OPERATOR may not add_user"},
		{"viewer may view", viewer, ActionView, true, "vera", "authorized"},
		{"viewer may not failover", viewer, ActionFailover, false, "vera", "role VIEWER may not failover"},
		{"empty token", "", ActionView, false, models.AnonymousActor, "invalid token"},
		{"truncated token", viewer[:10], ActionView, false, models.AnonymousActor, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.GetStatus().AuditEntries

			got := g.Authenticate(ctx, "10.0.0.1", tt.token, tt.action, "cluster")
			assert.Equal(t, tt.want, got)

			entries, n := g.GetAuditLog(1)
			require.Equal(t, 1, n)
			e := entries[0]
			assert.Equal(t, before+1, g.GetStatus().AuditEntries)
			assert.Equal(t, tt.wantActor, e.Username)
			assert.Equal(t, tt.action, e.Action)
			assert.Equal(t, "cluster", e.Resource)
			assert.Equal(t, "10.0.0.1", e.ClientIP)
			assert.Equal(t, tt.wantDetail, e.Details)
			assert.NotEmpty(t, e.ID)
			if tt.want {
				assert.Equal(t, models.ResultSuccess, e.Result)
			} else {
				assert.Equal(t, models.ResultFailure, e.Result)
			}
		})
	}
}

func TestAuthenticate_AuthDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableAuth = false
	g, _ := newTestGatekeeper(t, cfg)

	for _, tok := range []string{"", "garbage", testAdminToken} {
		assert.True(t, g.Authenticate(ctx, "10.0.0.2", tok, ActionFailover, "cluster"))
		entries, n := g.GetAuditLog(1)
		require.Equal(t, 1, n)
		assert.Equal(t, models.AnonymousActor, entries[0].Username)
		assert.Equal(t, models.ResultSuccess, entries[0].Result)
	}
}

func TestAuthenticate_RateLimitScenario(t *testing.T) {
	cfg := testConfig()
	cfg.EnableAuth = false
	g, clock := newTestGatekeeper(t, cfg)
	ip := "10.0.0.5"

	for i := 1; i <= 100; i++ {
		clock.Advance(100 * time.Millisecond)
		require.Truef(t, g.Authenticate(ctx, ip, "", ActionView, "cluster"), "request %d", i)
	}
	assert.False(t, g.Authenticate(ctx, ip, "", ActionView, "cluster"))

	entries, _ := g.GetAuditLog(1)
	assert.Equal(t, models.ResultFailure, entries[0].Result)
	assert.Equal(t, models.AnonymousActor, entries[0].Username)
	assert.Equal(t, "rate limit exceeded", entries[0].Details)
	assert.Equal(t, 1, g.GetStatus().BlockedIPCount)

	clock.Advance(300 * time.Second)
	assert.True(t, g.Authenticate(ctx, ip, "", ActionView, "cluster"))
	assert.Equal(t, 0, g.GetStatus().BlockedIPCount)
}

func TestAuthenticate_RateLimitBeforeToken(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 2
	obs := &recordingObserver{}
	g, _ := newTestGatekeeper(t, cfg, WithObserver(obs))

	g.Authenticate(ctx, "10.9.9.9", "bad", ActionView, "cluster")
	g.Authenticate(ctx, "10.9.9.9", "bad", ActionView, "cluster")
	assert.False(t, g.Authenticate(ctx, "10.9.9.9", testAdminToken, ActionView, "cluster"))

	require.Len(t, obs.seen, 3)
	assert.Equal(t, observed{ActionView, false, ReasonInvalidToken}, obs.seen[0])
	assert.Equal(t, observed{ActionView, false, ReasonRateLimited}, obs.seen[2])
}

func TestAuthenticate_RateLimitingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRateLimiting = false
	cfg.RateLimitMaxRequests = 1
	g, _ := newTestGatekeeper(t, cfg)

	for i := 0; i < 10; i++ {
		assert.True(t, g.Authenticate(ctx, "10.0.0.7", testAdminToken, ActionView, "cluster"))
	}
	assert.Equal(t, 0, g.GetStatus().TrackedIPCount)
}

func TestAuthenticate_AuditDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableAudit = false
	pub := &recordingPublisher{}
	g, _ := newTestGatekeeper(t, cfg, WithAuditPublisher(pub))

	assert.True(t, g.Authenticate(ctx, "10.0.0.8", testAdminToken, ActionView, "cluster"))
	_, n := g.GetAuditLog(10)
	assert.Equal(t, 0, n)
	assert.Empty(t, pub.entries)
}

func TestAuthenticate_PublishesEntries(t *testing.T) {
	pub := &recordingPublisher{}
	g, _ := newTestGatekeeper(t, testConfig(), WithAuditPublisher(pub))

	g.Authenticate(ctx, "10.0.0.3", testAdminToken, ActionBackup, "cluster")
	g.Authenticate(ctx, "10.0.0.3", "nope", ActionBackup, "cluster")

	require.Len(t, pub.entries, 2)
	trail, _ := g.GetAuditLog(2)
	assert.Equal(t, trail[1], pub.entries[0])
	assert.Equal(t, trail[0], pub.entries[1])
}

func TestAddUser_Gatekeeper(t *testing.T) {
	g, _ := newTestGatekeeper(t, testConfig())

	tok, err := g.AddUser(ctx, "alice", "pw1", models.RoleViewer)
	require.NoError(t, err)
	assert.True(t, g.ValidateToken(tok))

	_, err = g.AddUser(ctx, "alice", "pw2", models.RoleAdmin)
	assert.True(t, errors.Is(err, common.ErrUserExists))
	assert.Equal(t, 1, g.GetStatus().UserCount)

	_, err = g.AddUser(ctx, "bad\x00name", "pw", models.RoleViewer)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestLogin(t *testing.T) {
	g, clock := newTestGatekeeper(t, testConfig())
	static, err := g.AddUser(ctx, "alice", "pw1", models.RoleOperator)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	tok, err := g.Login(ctx, "10.0.1.1", "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, static, tok)

	entries, _ := g.GetAuditLog(1)
	assert.Equal(t, ActionLogin, entries[0].Action)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, models.ResultSuccess, entries[0].Result)

	users := g.Users()
	require.Len(t, users, 1)
	assert.Equal(t, t0.Add(time.Minute), users[0].LastLogin)

	_, err = g.Login(ctx, "10.0.1.1", "alice", "wrong")
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
	_, err = g.Login(ctx, "10.0.1.1", "ghost", "pw1")
	assert.True(t, errors.Is(err, common.ErrUnauthorized))

	entries, _ = g.GetAuditLog(1)
	assert.Equal(t, models.AnonymousActor, entries[0].Username)
	assert.Equal(t, "ghost", entries[0].Resource)
	assert.Equal(t, models.ResultFailure, entries[0].Result)

	require.NoError(t, g.SetUserActive(ctx, "alice", false))
	_, err = g.Login(ctx, "10.0.1.1", "alice", "pw1")
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 1
	g, _ := newTestGatekeeper(t, cfg)
	_, err := g.AddUser(ctx, "alice", "pw1", models.RoleViewer)
	require.NoError(t, err)

	_, err = g.Login(ctx, "10.0.1.2", "alice", "wrong")
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
	_, err = g.Login(ctx, "10.0.1.2", "alice", "pw1")
	assert.True(t, errors.Is(err, common.ErrRateLimited))
}

func TestSessions(t *testing.T) {
	cfg := testConfig()
	cfg.EnableSessionManagement = true
	cfg.SessionTimeout = 10 * time.Minute
	g, clock := newTestGatekeeper(t, cfg)

	static, err := g.AddUser(ctx, "alice", "pw1", models.RoleViewer)
	require.NoError(t, err)

	session, err := g.Login(ctx, "10.0.2.1", "alice", "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, static, session)
	assert.Equal(t, 2, strings.Count(session, "."))

	assert.True(t, g.ValidateToken(session))
	assert.True(t, g.Authenticate(ctx, "10.0.2.1", session, ActionView, "cluster"))
	assert.False(t, g.Authenticate(ctx, "10.0.2.1", session, ActionSwitchover, "cluster"))

	// Role changes apply to outstanding sessions.
	require.NoError(t, g.SetRole(ctx, "alice", models.RoleOperator))
	assert.True(t, g.Authenticate(ctx, "10.0.2.1", session, ActionSwitchover, "cluster"))

	require.NoError(t, g.SetUserActive(ctx, "alice", false))
	assert.False(t, g.ValidateToken(session))
	require.NoError(t, g.SetUserActive(ctx, "alice", true))

	clock.Advance(11 * time.Minute)
	assert.False(t, g.ValidateToken(session))
	assert.True(t, g.ValidateToken(static))
	assert.True(t, g.GetStatus().SessionManagementEnabled)
}

func TestSessions_DisabledRejectsJWT(t *testing.T) {
	cfg := testConfig()
	cfg.EnableSessionManagement = true
	g1, _ := newTestGatekeeper(t, cfg)
	_, err := g1.AddUser(ctx, "alice", "pw1", models.RoleViewer)
	require.NoError(t, err)
	session, err := g1.Login(ctx, "10.0.2.2", "alice", "pw1")
	require.NoError(t, err)

	// Another process has a different signing key.
	g2, _ := newTestGatekeeper(t, cfg)
	_, err = g2.AddUser(ctx, "alice", "pw1", models.RoleViewer)
	require.NoError(t, err)
	assert.False(t, g2.ValidateToken(session))

	g3, _ := newTestGatekeeper(t, testConfig())
	assert.False(t, g3.ValidateToken(session))
}

func TestSetRoleAndActive_NotFound(t *testing.T) {
	g, _ := newTestGatekeeper(t, testConfig())
	assert.True(t, errors.Is(g.SetRole(ctx, "ghost", models.RoleAdmin), common.ErrNotFound))
	assert.True(t, errors.Is(g.SetUserActive(ctx, "ghost", false), common.ErrNotFound))
}

func TestValidateAndSanitize(t *testing.T) {
	g, _ := newTestGatekeeper(t, testConfig())
	ok, out := g.ValidateAndSanitize("node\x00-1", 64)
	assert.False(t, ok)
	assert.Equal(t, "node-1", out)

	cfg := testConfig()
	cfg.EnableInputValidation = false
	g2, _ := newTestGatekeeper(t, cfg)
	ok, out = g2.ValidateAndSanitize("node\x00-1", 64)
	assert.True(t, ok)
	assert.Equal(t, "node\x00-1", out)
}

func TestGetAuditLog_Bounds(t *testing.T) {
	g, clock := newTestGatekeeper(t, testConfig())
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		g.Authenticate(ctx, fmt.Sprintf("10.0.3.%d", i), testAdminToken, ActionView, "cluster")
	}

	entries, n := g.GetAuditLog(3)
	assert.Equal(t, 3, n)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}

	_, n = g.GetAuditLog(100)
	assert.Equal(t, 5, n)
}

func TestOpenConnection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 2
	g, _ := newTestGatekeeper(t, cfg)

	r1, err := g.OpenConnection()
	require.NoError(t, err)
	r2, err := g.OpenConnection()
	require.NoError(t, err)
	_, err = g.OpenConnection()
	assert.True(t, errors.Is(err, common.ErrTooManyConnections))
	assert.Equal(t, 2, g.GetStatus().ActiveConnections)

	r1()
	r1()
	assert.Equal(t, 1, g.GetStatus().ActiveConnections)
	r3, err := g.OpenConnection()
	require.NoError(t, err)
	r2()
	r3()
	assert.Equal(t, 0, g.GetStatus().ActiveConnections)
}

func TestSweep(t *testing.T) {
	g, clock := newTestGatekeeper(t, testConfig())
	g.Authenticate(ctx, "10.0.4.1", testAdminToken, ActionView, "cluster")
	assert.Equal(t, 1, g.GetStatus().TrackedIPCount)

	assert.Equal(t, 0, g.Sweep(ctx))
	clock.Advance(DefaultRateLimitBlock + time.Second)
	assert.Equal(t, 1, g.Sweep(ctx))
	assert.Equal(t, 0, g.GetStatus().TrackedIPCount)
}

func TestCleanup(t *testing.T) {
	g, _ := newTestGatekeeper(t, testConfig())
	tok, err := g.AddUser(ctx, "alice", "pw1", models.RoleViewer)
	require.NoError(t, err)
	g.Authenticate(ctx, "10.0.5.1", tok, ActionView, "cluster")

	g.Cleanup()
	g.Cleanup()

	assert.False(t, g.ValidateToken(tok))
	assert.False(t, g.ValidateToken(testAdminToken))
	assert.False(t, g.Authenticate(ctx, "10.0.5.1", testAdminToken, ActionView, "cluster"))

	_, err = g.AddUser(ctx, "bob", "pw", models.RoleViewer)
	assert.True(t, errors.Is(err, common.ErrClosed))
	_, err = g.Login(ctx, "10.0.5.1", "alice", "pw1")
	assert.True(t, errors.Is(err, common.ErrClosed))
	_, err = g.OpenConnection()
	assert.True(t, errors.Is(err, common.ErrClosed))
	assert.True(t, errors.Is(g.SetRole(ctx, "alice", models.RoleAdmin), common.ErrClosed))
	assert.ErrorIs(t, g.Reject(ctx, "10.0.5.1", testAdminToken, ActionView, "cluster"), common.ErrClosed)

	_, n := g.GetAuditLog(10)
	assert.Equal(t, 0, n)
	st := g.GetStatus()
	assert.Equal(t, 0, st.UserCount)
	tokAfter, _ := g.AdminToken()
	assert.Empty(t, tokAfter)
}

func TestAuthenticate_Concurrent(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 1000
	g, _ := newTestGatekeeper(t, cfg)

	const (
		workers  = 16
		requests = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < requests; i++ {
				// Every worker shares one IP so the limiter sees contention.
				g.Authenticate(ctx, "10.0.6.1", testAdminToken, ActionView, fmt.Sprintf("w%d", w))
			}
		}(w)
	}
	wg.Wait()

	st := g.GetStatus()
	assert.Equal(t, workers*requests, st.AuditEntries)
	assert.Equal(t, 1, st.TrackedIPCount)

	entry, ok := g.limiter.Entry("10.0.6.1")
	require.True(t, ok)
	assert.Equal(t, workers*requests, entry.Count)
}

func TestCheck_ReportsDenialCause(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 3
	g, _ := newTestGatekeeper(t, cfg)
	viewer, err := g.AddUser(ctx, "vera", "pw", models.RoleViewer)
	require.NoError(t, err)

	assert.NoError(t, g.Check(ctx, "10.0.7.1", viewer, ActionView, "cluster"))
	assert.ErrorIs(t, g.Check(ctx, "10.0.7.1", viewer, ActionFailover, "cluster"), common.ErrForbidden)
	assert.ErrorIs(t, g.Check(ctx, "10.0.7.1", "", ActionView, "cluster"), common.ErrUnauthorized)
	assert.ErrorIs(t, g.Check(ctx, "10.0.7.1", viewer, ActionView, "cluster"), common.ErrRateLimited)

	g.Cleanup()
	assert.ErrorIs(t, g.Check(ctx, "10.0.7.2", viewer, ActionView, "cluster"), common.ErrClosed)
}

// trackHashes slows every password hash down and reports the highest
// number of hashes seen running at the same time.
func trackHashes(t *testing.T) func() int32 {
	t.Helper()
	var running, peak atomic.Int32
	enter := func() func() {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return func() { running.Add(-1) }
	}

	origVerify, origHash := verifyPassword, hashPassword
	verifyPassword = func(password, salt, encoded []byte) bool {
		defer enter()()
		return origVerify(password, salt, encoded)
	}
	hashPassword = func(password, salt []byte) string {
		defer enter()()
		return origHash(password, salt)
	}
	t.Cleanup(func() { verifyPassword, hashPassword = origVerify, origHash })
	return peak.Load
}

func TestLogin_BoundsConcurrentHashes(t *testing.T) {
	peak := trackHashes(t)
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 1000
	g, _ := newTestGatekeeper(t, cfg, WithHashConcurrency(2))

	const attempts = 32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Login(ctx, "10.0.8.1", "nobody", "pw")
			assert.ErrorIs(t, err, common.ErrUnauthorized)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak(), int32(2))
	assert.GreaterOrEqual(t, peak(), int32(1))
	assert.Equal(t, attempts, g.GetStatus().AuditEntries)
}

func TestAddUser_BoundsConcurrentHashes(t *testing.T) {
	peak := trackHashes(t)
	g, _ := newTestGatekeeper(t, testConfig(), WithHashConcurrency(2))

	const users = 12
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.AddUser(ctx, fmt.Sprintf("user%d", i), "pw", models.RoleViewer)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak(), int32(2))
	assert.Equal(t, users, g.GetStatus().UserCount)
}

func TestLogin_WaitingForHashSlotHonoursContext(t *testing.T) {
	g, _ := newTestGatekeeper(t, testConfig(), WithHashConcurrency(1))

	started := make(chan struct{})
	release := make(chan struct{})
	orig := verifyPassword
	verifyPassword = func(password, salt, encoded []byte) bool {
		close(started)
		<-release
		return false
	}
	t.Cleanup(func() { verifyPassword = orig })

	done := make(chan error, 1)
	go func() {
		_, err := g.Login(ctx, "10.0.8.2", "alice", "pw")
		done <- err
	}()
	<-started

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := g.Login(waitCtx, "10.0.8.3", "alice", "pw")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = g.AddUser(waitCtx, "bob", "pw", models.RoleViewer)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, g.GetStatus().UserCount)

	close(release)
	assert.ErrorIs(t, <-done, common.ErrUnauthorized)
}

func TestReject(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 2
	obs := &recordingObserver{}
	g, _ := newTestGatekeeper(t, cfg, WithObserver(obs))

	assert.ErrorIs(t, g.Reject(ctx, "10.0.9.1", testAdminToken, ActionSwitchover, "cluster"), common.ErrValidation)
	entries, _ := g.GetAuditLog(1)
	assert.Equal(t, AdminUsername, entries[0].Username)
	assert.Equal(t, models.ResultFailure, entries[0].Result)
	assert.Equal(t, "invalid input", entries[0].Details)

	assert.ErrorIs(t, g.Reject(ctx, "10.0.9.1", "bogus", ActionView, "cluster"), common.ErrValidation)
	entries, _ = g.GetAuditLog(1)
	assert.Equal(t, models.AnonymousActor, entries[0].Username)

	// Rejected requests spend the client's rate budget.
	assert.ErrorIs(t, g.Reject(ctx, "10.0.9.1", testAdminToken, ActionView, "cluster"), common.ErrRateLimited)
	assert.ErrorIs(t, g.Check(ctx, "10.0.9.1", testAdminToken, ActionView, "cluster"), common.ErrRateLimited)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.seen, 4)
	assert.Equal(t, observed{ActionSwitchover, false, ReasonInvalidInput}, obs.seen[0])
	assert.Equal(t, observed{ActionView, false, ReasonRateLimited}, obs.seen[2])
}
