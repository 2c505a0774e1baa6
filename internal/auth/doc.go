// Package auth resolves caller identity and decides what that identity may do.
//
// An Identity is derived from an HS256 bearer token carrying a subject and
// two role flags:
//   - is_staff: may act on any experiment and view the queue
//   - is_admin: may record, list and delete results (the acquisition system)
//
// Everyone else is an end user restricted to their own experiments.
//
// Tokens issued by this service (login) also carry a session id so that
// logout and password changes can revoke them before expiry. Tokens minted
// by an external issuer carry no session and are trusted on signature and
// expiry alone.
//
// Passwords are hashed with Argon2id and stored in PHC format.
package auth
