package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
)

// ChallengePolicy configures phrase lifetime and matching.
type ChallengePolicy struct {
	TTL           time.Duration
	Strict        bool
	AllowedMisses int
}

// ChallengeLedger issues single-use login phrases.
type ChallengeLedger struct {
	tx     dbx.Transactor
	repos  repomanager.RepositoryManager
	policy ChallengePolicy
	now    func() time.Time
	logger logging.Logger
}

func NewChallengeLedger(tx dbx.Transactor, repos repomanager.RepositoryManager, policy ChallengePolicy, logger logging.Logger) *ChallengeLedger {
	return &ChallengeLedger{
		tx:     tx,
		repos:  repos,
		policy: policy,
		now:    time.Now,
		logger: logger.With("module", "challenges"),
	}
}

// Strict reports whether a phrase mismatch rejects the login.
func (l *ChallengeLedger) Strict() bool { return l.policy.Strict }

// Issue drops every unused challenge of username and records a fresh
// phrase, in one transaction.
func (l *ChallengeLedger) Issue(ctx context.Context, username string) (*models.Challenge, error) {
	phrase, err := NewPhrase()
	if err != nil {
		return nil, err
	}
	now := l.now()
	c := &models.Challenge{
		Username:  username,
		Phrase:    phrase,
		CreatedAt: now,
		ExpiresAt: now.Add(l.policy.TTL),
	}

	err = l.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := l.repos.Challenges(tx)
		removed, err := repo.DeleteUnused(ctx, username)
		if err != nil {
			return err
		}
		if removed > 0 {
			l.logger.Debug(ctx, "superseded challenges removed", "username", username, "count", removed)
		}
		c, err = repo.Create(ctx, c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}
	return c, nil
}

// Current returns the newest usable challenge of username or
// common.ErrChallenge.
func (l *ChallengeLedger) Current(ctx context.Context, db dbx.DBTX, username string) (*models.Challenge, error) {
	c, err := l.repos.Challenges(db).LatestValid(ctx, username, l.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrChallenge
		}
		return nil, err
	}
	return c, nil
}

// Validate checks a transcript against the current challenge of username.
func (l *ChallengeLedger) Validate(ctx context.Context, username, transcript string) (bool, error) {
	c, err := l.Current(ctx, l.tx.Conn(), username)
	if err != nil {
		return false, err
	}
	return l.Matches(c, transcript), nil
}

// Matches applies the configured miss allowance to one challenge.
func (l *ChallengeLedger) Matches(c *models.Challenge, transcript string) bool {
	return MatchPhrase(c.Phrase, transcript, l.policy.AllowedMisses)
}

// Consume marks the challenge used. Run it inside the transaction that
// commits the login; a challenge already used or expired yields
// common.ErrChallenge.
func (l *ChallengeLedger) Consume(ctx context.Context, tx dbx.DBTX, id string) error {
	if err := l.repos.Challenges(tx).Consume(ctx, id, l.now()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrChallenge
		}
		return err
	}
	return nil
}

// Purge deletes expired challenges.
func (l *ChallengeLedger) Purge(ctx context.Context) (int64, error) {
	return l.repos.Challenges(l.tx.Conn()).DeleteExpired(ctx, l.now())
}
