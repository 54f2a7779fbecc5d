package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/filex"
)

// Local stages artifacts as files under a private directory.
type Local struct {
	dir string
	now func() time.Time
}

// NewLocal creates dir if needed. An empty dir selects a fresh directory
// under the system temp dir.
func NewLocal(dir string) (*Local, error) {
	var err error
	if dir == "" {
		dir, err = os.MkdirTemp("", "voicemfa-staging-")
	} else {
		dir, err = filex.EnsureDir(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	return &Local{dir: dir, now: time.Now}, nil
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) Stage(_ context.Context, data []byte) (*Artifact, error) {
	digest := Fingerprint(data)
	key := objectKey(l.now(), digest)
	path := filepath.Join(l.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = filex.RemoveQuietly(path)
		return nil, fmt.Errorf("staging write: %w", err)
	}

	return &Artifact{
		Key:    key,
		Ref:    path,
		Digest: digest,
		release: func(context.Context) error {
			return filex.RemoveQuietly(path)
		},
	}, nil
}
