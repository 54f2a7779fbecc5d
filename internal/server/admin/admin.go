// Package admin implements the operator commands: schema migration, role
// promotion, vault key generation and a one-off cleanup pass.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

// ErrUsage is returned for an unknown command or missing arguments.
var ErrUsage = errors.New("usage: admin [flags] migrate | promote <username> | keygen | purge")

// openStorage is a test seam for server.OpenStorage.
var openStorage = server.OpenStorage

type Tool struct {
	dsn    string
	out    io.Writer
	logger logging.Logger
	now    func() time.Time
}

func NewTool(dsn string, out io.Writer, logger logging.Logger) *Tool {
	return &Tool{dsn: dsn, out: out, logger: logger.With("module", "admin"), now: time.Now}
}

// Run dispatches args[0] to its command.
func (t *Tool) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "keygen":
		fmt.Fprintln(t.out, cryptox.GenerateKeyHex())
		return nil
	case "migrate":
		return t.withStorage(ctx, func(*server.Storage) error {
			fmt.Fprintln(t.out, "schema is up to date")
			return nil
		})
	case "promote":
		if len(args) != 2 {
			return ErrUsage
		}
		return t.withStorage(ctx, func(s *server.Storage) error {
			return t.promote(ctx, s, args[1])
		})
	case "purge":
		return t.withStorage(ctx, func(s *server.Storage) error {
			return t.purge(ctx, s)
		})
	}
	return ErrUsage
}

// withStorage opens storage, which also applies pending migrations.
func (t *Tool) withStorage(ctx context.Context, fn func(*server.Storage) error) error {
	s, err := openStorage(ctx, t.dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.logger.Error(ctx, "close storage", "error", err)
		}
	}()
	return fn(s)
}

func (t *Tool) promote(ctx context.Context, s *server.Storage, username string) error {
	err := s.Repos.Identities(s.Tx.Conn()).SetRole(ctx, username, models.RoleAdmin)
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("user %q: %w", username, err)
	}
	if err != nil {
		return err
	}
	t.logger.Info(ctx, "role changed", "username", username, "role", models.RoleAdmin.String())
	fmt.Fprintf(t.out, "%s is now admin\n", username)
	return nil
}

func (t *Tool) purge(ctx context.Context, s *server.Storage) error {
	now := t.now()
	conn := s.Tx.Conn()

	challenges, err := s.Repos.Challenges(conn).DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("purge challenges: %w", err)
	}
	enrollments, err := s.Repos.Enrollments(conn).DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("purge enrollments: %w", err)
	}

	t.logger.Info(ctx, "purge done", "challenges", challenges, "enrollments", enrollments)
	fmt.Fprintf(t.out, "removed %d expired challenges, %d expired enrollments\n", challenges, enrollments)
	return nil
}
