package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

type options struct {
	DSN string `env:"IDENTITY_DATABASE_DSN" envDefault:"file:identity.db?cache=shared"`
}

type app struct {
	db      *bun.DB
	service *identity.Service
	logger  glog.Logger
	cfg     identity.Config
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"config":            {"print the effective configuration", runConfig},
	"migrate":           {"apply pending migrations", runMigrate},
	"rollback":          {"roll back the last migration group", runRollback},
	"create":            {"create an account", runCreate},
	"send-confirm-code": {"send a confirmation code", runSendConfirmCode},
	"confirm":           {"confirm a contact with a code", runConfirm},
	"send-reset-code":   {"send a password reset code", runSendResetCode},
	"reset-password":    {"set a new password with a reset code", runResetPassword},
	"sign-in":           {"sign in with a contact and password", runSignIn},
	"refresh":           {"rotate a session", runRefresh},
	"sign-out":          {"end a session", runSignOut},
	"profile":           {"show the profile behind an access token", runProfile},
	"sessions":          {"list the sessions behind an access token", runSessions},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel("trace"),
		glog.WithName("identityctl"),
		glog.WithAddSource(false),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(lgr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.db.Close()

	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		report(err)
		os.Exit(1)
	}
}

func setup(lgr *glog.BaseLogger) (*app, error) {
	cfg, err := identity.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	var opts options
	if err := env.Parse(&opts); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, opts.DSN)
	if err != nil {
		return nil, err
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	logger := lgr.GetLogger("identity")
	repos := identity.NewRepositoryManager(db)

	service, err := identity.NewService(cfg, repos,
		identity.WithLogger(logger),
		identity.WithMessageSender(identity.NewLogSender(lgr.GetLogger("messages"))),
		identity.WithActivitySink(identity.ActivitySinkFunc(func(ctx context.Context, event identity.ActivityEvent) error {
			record := activitymap.Normalize(event)
			logger.Debug("activity",
				"verb", record.Verb,
				"actor_id", record.ActorID,
				"metadata", print.MaybePrettyJSON(record.Metadata),
			)
			return nil
		})),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		db:      db,
		service: service,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: identityctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", name, commands[name].usage)
	}
}

func report(err error) {
	if problem, ok := identity.AsValidationProblem(err); ok {
		fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(problem))
		return
	}
	fmt.Fprintln(os.Stderr, err)
}

func runConfig(_ context.Context, a *app, _ []string) error {
	fmt.Println(print.MaybePrettyJSON(a.cfg))
	return nil
}

func runMigrate(ctx context.Context, a *app, _ []string) error {
	return identity.Migrate(ctx, a.db, a.logger)
}

func runRollback(ctx context.Context, a *app, _ []string) error {
	return identity.Rollback(ctx, a.db, a.logger)
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	username := fs.String("username", "", "email or phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	profile, err := a.service.CreateAccount(ctx, &identity.CreateAccountForm{
		FirstName: *first,
		LastName:  *last,
		Username:  *username,
		Password:  password,
	})
	if err != nil {
		return err
	}
	fmt.Println(print.MaybePrettyJSON(profile))
	return nil
}

func runSendConfirmCode(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("send-confirm-code", flag.ExitOnError)
	username := fs.String("username", "", "email or phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: *username})
}

func runConfirm(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	username := fs.String("username", "", "email or phone number")
	code := fs.String("code", "", "confirmation code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.service.ConfirmAccount(ctx, &identity.ConfirmAccountForm{Username: *username, Code: *code})
}

func runSendResetCode(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("send-reset-code", flag.ExitOnError)
	username := fs.String("username", "", "email or phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.service.SendResetPasswordCode(ctx, &identity.SendResetPasswordCodeForm{Username: *username})
}

func runResetPassword(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	username := fs.String("username", "", "email or phone number")
	code := fs.String("code", "", "reset code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}

	return a.service.ResetPassword(ctx, &identity.ResetPasswordForm{
		Username:        *username,
		Code:            *code,
		NewPassword:     password,
		ConfirmPassword: confirm,
	})
}

func runSignIn(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sign-in", flag.ExitOnError)
	username := fs.String("username", "", "email or phone number")
	single := fs.Bool("single", false, "drop every other session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	session, err := a.service.SignIn(ctx, &identity.SignInForm{
		Username:      *username,
		Password:      password,
		SingleSession: *single,
	})
	if err != nil {
		return err
	}
	fmt.Println(print.MaybePrettyJSON(session))
	return nil
}

func runRefresh(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	token := fs.String("token", "", "refresh token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.service.RefreshToken(ctx, &identity.RefreshTokenForm{RefreshToken: *token})
	if err != nil {
		return err
	}
	fmt.Println(print.MaybePrettyJSON(session))
	return nil
}

func runSignOut(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sign-out", flag.ExitOnError)
	access := fs.String("access", "", "access token")
	token := fs.String("token", "", "refresh token")
	all := fs.Bool("all", false, "end every session of the account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	principal, err := authenticate(ctx, a, *access)
	if err != nil {
		return err
	}

	allowMultiple := !*all
	return a.service.SignOut(ctx, principal, &identity.SignOutForm{
		RefreshToken:        *token,
		AllowMultipleTokens: &allowMultiple,
	})
}

func runProfile(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	access := fs.String("access", "", "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	principal, err := authenticate(ctx, a, *access)
	if err != nil {
		return err
	}

	profile, err := a.service.Profile(ctx, principal)
	if err != nil {
		return err
	}
	fmt.Println(print.MaybePrettyJSON(profile))
	return nil
}

func runSessions(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	access := fs.String("access", "", "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	principal, err := authenticate(ctx, a, *access)
	if err != nil {
		return err
	}

	sessions, err := a.service.ActiveSessions(ctx, principal)
	if err != nil {
		return err
	}
	fmt.Println(print.MaybePrettyJSON(sessions))
	return nil
}

func authenticate(ctx context.Context, a *app, access string) (identity.Principal, error) {
	principal, _, err := a.service.Authenticate(ctx, strings.TrimPrefix(access, identity.TokenTypeBearer+" "))
	return principal, err
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
