package identity

import (
	"context"
	"crypto/rand"
	"encoding/base32"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Service is the entry point of every account and session operation.
type Service struct {
	repos       RepositoryManager
	credentials CredentialStore
	verifier    *ContactVerifier
	sessions    *SessionManager
	bridge      *BridgeCodec
	validator   *Validator
	contacts    ContactParser
	renderer    TemplateRenderer
	sender      MessageSender
	activity    ActivitySink
	logger      Logger
	clock       Clock

	tokenProvider TokenProvider
	decorator     ClaimsDecorator

	requireConfirmedEmail bool
	requireConfirmedPhone bool
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithCredentialStore(store CredentialStore) ServiceOption {
	return func(s *Service) {
		if store != nil {
			s.credentials = store
		}
	}
}

func WithTokenProvider(provider TokenProvider) ServiceOption {
	return func(s *Service) {
		if provider != nil {
			s.tokenProvider = provider
		}
	}
}

func WithMessageSender(sender MessageSender) ServiceOption {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

func WithTemplateRenderer(renderer TemplateRenderer) ServiceOption {
	return func(s *Service) {
		if renderer != nil {
			s.renderer = renderer
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish audit events.
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithClaimsDecorator(d ClaimsDecorator) ServiceOption {
	return func(s *Service) {
		s.decorator = d
	}
}

// NewService validates cfg and wires the default collaborators.
func NewService(cfg Config, repos RepositoryManager, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repos == nil {
		return nil, goerrors.New("identity service requires a repository manager", goerrors.CategoryInternal)
	}
	if err := repos.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid repository manager")
	}

	s := &Service{
		repos:                 repos,
		contacts:              ContactParser{Region: cfg.PhoneRegion},
		activity:              noopActivitySink{},
		logger:                defLogger{},
		requireConfirmedEmail: cfg.RequireConfirmedEmail,
		requireConfirmedPhone: cfg.RequireConfirmedPhoneNumber,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.credentials == nil {
		bcryptOpts := []BcryptOption{WithBcryptClock(s.clock)}
		if cfg.BcryptCost > 0 {
			bcryptOpts = append(bcryptOpts, WithBcryptCost(cfg.BcryptCost))
		}
		s.credentials = NewBcryptCredentialStore(repos.Credentials(), bcryptOpts...)
	}
	if s.tokenProvider == nil {
		s.tokenProvider = NewTOTPTokenProvider(
			WithCodePeriod(cfg.CodePeriod),
			WithCodeSkew(cfg.CodeSkew),
			WithCodeClock(s.clock),
		)
	}
	if s.renderer == nil {
		s.renderer = NewTemplateSet()
	}
	if s.sender == nil {
		s.sender = NewLogSender(s.logger)
	}

	bridge, err := NewBridgeCodecFromSecret([]byte(cfg.BridgeSecret),
		WithBridgeTTL(cfg.BridgeTTL),
		WithBridgeClock(s.clock),
	)
	if err != nil {
		return nil, err
	}

	tokens := NewTokenService([]byte(cfg.SigningKey), cfg.Issuer, cfg.Audience, s.logger, s.clock)

	s.bridge = bridge
	s.verifier = NewContactVerifier(s.tokenProvider)
	s.validator = NewValidator(s.contacts)
	s.sessions = NewSessionManager(repos, tokens,
		WithSessionTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		WithSessionClock(s.clock),
		WithSessionLogger(s.logger),
		WithSessionClaimsDecorator(s.decorator),
	)

	return s, nil
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Verifier exposes the contact verifier.
func (s *Service) Verifier() *ContactVerifier {
	return s.verifier
}

// Bridge exposes the bridging token codec.
func (s *Service) Bridge() *BridgeCodec {
	return s.bridge
}

// principalAccount resolves p to its account, ErrUnauthenticated otherwise.
func (s *Service) principalAccount(ctx context.Context, tx bun.IDB, p Principal) (*Account, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	account, err := s.repos.Accounts().FindByIDTx(ctx, tx, p.AccountID)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) inTx(ctx context.Context, f func(ctx context.Context, tx bun.Tx) error) error {
	return s.repos.RunInTx(ctx, nil, f)
}

func (s *Service) parseContact(raw string) Contact {
	c, err := s.contacts.Parse(raw)
	if err != nil {
		return Contact{}
	}
	return c
}

func (s *Service) record(ctx context.Context, eventType ActivityEventType, accountID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		AccountID:  accountID,
		Metadata:   metadata,
		OccurredAt: s.clock.now(),
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink failed", "event", string(eventType), "error", err)
	}
}

// fail logs unexpected errors with context and passes them through.
func (s *Service) fail(op string, err error, args ...any) error {
	if err == nil {
		return nil
	}
	if _, ok := AsValidationProblem(err); ok || IsUnauthenticated(err) {
		return err
	}
	s.logger.Error(op+" failed", append(args, "error", err)...)
	return err
}

func newSecurityStamp() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate security stamp")
	}
	return base32.StdEncoding.EncodeToString(buf), nil
}
