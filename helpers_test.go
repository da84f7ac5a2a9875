package identity_test

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Secret123!"

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	channel identity.Channel
	msg     identity.Message
}

type capturingSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (s *capturingSender) Send(ctx context.Context, channel identity.Channel, msg identity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{channel: channel, msg: msg})
	return nil
}

func (s *capturingSender) last(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages, "no message was sent")
	return s.messages[len(s.messages)-1]
}

func (s *capturingSender) lastCode(t *testing.T) string {
	t.Helper()
	m := s.last(t)
	code := codePattern.FindString(m.msg.Body)
	require.NotEmpty(t, code, "no code in %q", m.msg.Body)
	return code
}

func (s *capturingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type capturingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt identity.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []identity.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func testConfig() identity.Config {
	cfg := identity.DefaultConfig()
	cfg.SigningKey = strings.Repeat("k", 32)
	cfg.BridgeSecret = strings.Repeat("b", 32)
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, identity.Migrate(context.Background(), db, nopLogger{}))
	return db
}

type harness struct {
	db      *bun.DB
	repos   identity.RepositoryManager
	service *identity.Service
	sender  *capturingSender
	sink    *capturingSink
	clock   *testClock
}

func newHarness(t *testing.T, mutate ...func(*identity.Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return buildHarness(t, cfg)
}

func newHarnessWith(t *testing.T, opts ...identity.ServiceOption) *harness {
	t.Helper()
	return buildHarness(t, testConfig(), opts...)
}

func buildHarness(t *testing.T, cfg identity.Config, opts ...identity.ServiceOption) *harness {
	t.Helper()

	h := &harness{
		db:     newTestDB(t),
		sender: &capturingSender{},
		sink:   &capturingSink{},
		clock:  newTestClock(),
	}
	h.repos = identity.NewRepositoryManager(h.db)

	base := []identity.ServiceOption{
		identity.WithMessageSender(h.sender),
		identity.WithActivitySink(h.sink),
		identity.WithLogger(nopLogger{}),
		identity.WithClock(h.clock.Now),
	}
	svc, err := identity.NewService(cfg, h.repos, append(base, opts...)...)
	require.NoError(t, err)
	h.service = svc
	return h
}

func (h *harness) createAccount(t *testing.T, first, username string) *identity.UserProfile {
	t.Helper()
	profile, err := h.service.CreateAccount(context.Background(), &identity.CreateAccountForm{
		FirstName: first,
		LastName:  "Tester",
		Username:  username,
		Password:  testPassword,
	})
	require.NoError(t, err)
	return profile
}

func (h *harness) signIn(t *testing.T, username string, single bool) *identity.UserSession {
	t.Helper()
	session, err := h.service.SignIn(context.Background(), &identity.SignInForm{
		Username:      username,
		Password:      testPassword,
		SingleSession: single,
	})
	require.NoError(t, err)
	return session
}

func requireProblem(t *testing.T, err error, field, msg string) *identity.ValidationProblem {
	t.Helper()
	require.Error(t, err)
	problem, ok := identity.AsValidationProblem(err)
	require.True(t, ok, "expected validation problem, got %v", err)
	require.Contains(t, problem.Errors[field], msg, "errors: %v", problem.Errors)
	return problem
}

func principal(profile *identity.UserProfile) identity.Principal {
	return identity.Principal{AccountID: profile.ID}
}
