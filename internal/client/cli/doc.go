// Package cli provides the interactive voice MFA terminal client.
//
// Users enroll with a PIN and three WAV recordings, log in by reading back a
// one-time challenge phrase, clock out with a fresh recording, and work
// through their assigned tasks. PINs are read without echo; recordings are
// given as file paths.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
