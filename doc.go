// Package identity implements the session and verification core of an
// identity backend: account lifecycle, contact verification codes, JWT
// session pairs and the bridging token used across external sign-in
// redirects.
//
// Contacts:
//   - A raw username is sniffed once with ParseContact and carried as a
//     Contact{Type, Value} from then on. ContactType is a closed variant
//     (email, phone number); every switch over it falls through to
//     ErrUnsupportedContactType.
//
// Verification codes:
//   - ContactVerifier derives time-windowed codes from the account security
//     stamp, a purpose kind and the target contact. Codes are not persisted
//     and are not single use; rotating the security stamp revokes them.
//
// Sessions:
//   - SessionManager issues access/refresh pairs and stores only SHA-256
//     fingerprints. Refresh consumes the stored pair exactly once; a missing,
//     expired or already consumed refresh token yields ErrInvalidToken.
//
// Service:
//   - Service wires the pieces above with the repositories, credential store,
//     template renderer and message sender. Every mutating operation runs in
//     one transaction and validation always completes before the first write.
//     Expected failures come back as *ValidationProblem, unresolved callers as
//     ErrUnauthenticated.
//
// Activity sinks:
//   - ActivitySink receives audit events (account created, password changed,
//     sign-in, refresh, sign-out). Sinks run best-effort, errors are logged.
package identity
