package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Logger is the logging contract used across the package. Messages are
// followed by key/value pairs, which matches glog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Principal identifies the authenticated caller of an operation.
type Principal struct {
	AccountID string
}

// Authenticated reports whether the principal carries an account id.
func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.AccountID) != ""
}

// TokenProvider generates and checks time-windowed codes for an account.
// The purpose string must carry the target contact for change flows.
type TokenProvider interface {
	GenerateCode(ctx context.Context, account *Account, purpose string) (string, error)
	VerifyCode(ctx context.Context, account *Account, purpose, code string) (bool, error)
}

// CredentialStore keeps password credentials outside of the account record.
// Replacing a password is RemovePassword followed by AddPassword in the same
// transaction.
type CredentialStore interface {
	VerifyPassword(ctx context.Context, tx bun.IDB, account *Account, password string) (bool, error)
	RemovePassword(ctx context.Context, tx bun.IDB, account *Account) error
	AddPassword(ctx context.Context, tx bun.IDB, account *Account, password string) error
}

// Protector is an authenticated encryption primitive that fails closed.
type Protector interface {
	Protect(plaintext []byte) (string, error)
	Unprotect(token string) ([]byte, error)
}

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] IDENTITY " + line(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] IDENTITY " + line(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] IDENTITY " + line(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] IDENTITY " + line(msg, args...))
}

func line(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteByte('\n')
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
