// Package staging holds uploaded audio while capability servers read it.
// Every artifact is released on all exit paths by the caller's deferred
// Release.
package staging

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Artifact is one staged upload. Ref is what a capability server is given
// to read it: a local path or a presigned URL.
type Artifact struct {
	Key    string
	Ref    string
	Digest string

	release func(ctx context.Context) error
}

// Release removes the artifact. It is safe to call more than once.
func (a *Artifact) Release(ctx context.Context) error {
	if a == nil || a.release == nil {
		return nil
	}
	r := a.release
	a.release = nil
	return r(ctx)
}

// Stager stores audio for the duration of one capability call.
type Stager interface {
	Stage(ctx context.Context, data []byte) (*Artifact, error)
}

// Fingerprint is the hex BLAKE3 digest of data. It names staged objects and
// lets audit logs refer to an upload without storing it.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// objectKey is content-addressed with a random suffix so concurrent stagings
// of identical bytes do not release each other.
func objectKey(now time.Time, digest string) string {
	return fmt.Sprintf("audio/%d/%02d/%02d/%s-%s.wav", now.Year(), now.Month(), now.Day(), digest[:32], uuid.NewString()[:8])
}
