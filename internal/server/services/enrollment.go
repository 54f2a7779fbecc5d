package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/credentials"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/ratelimit"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
)

// EnrollRequest enrolls in one call with every sample at once.
type EnrollRequest struct {
	Username string
	PIN      string
	Role     models.Role
	Samples  [common.EnrollmentSamples][]byte
	Source   string
}

// EnrollmentService turns three accepted voice samples into an identity.
// Samples can be sent together (Enroll) or one at a time through a pending
// enrollment (Init, UploadSample, Finalize).
type EnrollmentService struct {
	tx      dbx.Transactor
	repos   repomanager.RepositoryManager
	creds   *credentials.Store
	gate    *biometric.Gate
	vault   *cryptox.Vault
	limiter ratelimit.Limiter
	ttl     time.Duration
	now     func() time.Time
	logger  logging.Logger
}

func NewEnrollmentService(tx dbx.Transactor, repos repomanager.RepositoryManager, creds *credentials.Store,
	gate *biometric.Gate, vault *cryptox.Vault, limiter ratelimit.Limiter, ttl time.Duration, logger logging.Logger) *EnrollmentService {
	return &EnrollmentService{
		tx:      tx,
		repos:   repos,
		creds:   creds,
		gate:    gate,
		vault:   vault,
		limiter: limiter,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With("module", "enrollment"),
	}
}

// Enroll gates every sample, averages the embeddings and creates the
// identity. Any rejected sample fails the call and nothing is stored.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Identity, error) {
	if err := s.admit(ctx, req.Source); err != nil {
		return nil, err
	}
	if err := s.validate(req.Username, req.PIN, req.Role); err != nil {
		return nil, err
	}
	for i, raw := range req.Samples {
		if len(raw) == 0 {
			return nil, common.Validationf("sample %d is missing", i+1)
		}
	}
	if err := s.ensureAvailable(ctx, req.Username); err != nil {
		return nil, err
	}

	var embeddings [common.EnrollmentSamples][]float32
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range req.Samples {
		g.Go(func() error {
			vec, err := s.embed(gctx, req.Username, i, raw)
			embeddings[i] = vec
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hash, err := s.creds.Hash(req.PIN)
	if err != nil {
		return nil, err
	}
	voiceprint, err := s.seal(embeddings[:]...)
	if err != nil {
		return nil, err
	}

	return s.create(ctx, req.Username, hash, voiceprint, req.Role)
}

// Init starts a pending enrollment. An unexpired pending enrollment for the
// same username is restarted only with the PIN it was started with.
func (s *EnrollmentService) Init(ctx context.Context, username, pin string, role models.Role, source string) (*models.PendingEnrollment, error) {
	if err := s.admit(ctx, source); err != nil {
		return nil, err
	}
	if err := s.validate(username, pin, role); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, username); err != nil {
		return nil, err
	}
	hash, err := s.creds.Hash(pin)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.PendingEnrollment{
		Username:  username,
		PINHash:   hash,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Enrollments(tx)
		old, err := repo.Get(ctx, username)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case now.Before(old.ExpiresAt) && !s.creds.Verify(pin, old.PINHash):
			return common.ErrUsernameTaken
		default:
			if err := repo.Delete(ctx, username); err != nil {
				return err
			}
		}
		return repo.Create(ctx, p)
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrUsernameTaken
		}
		return nil, err
	}
	s.logger.Info(ctx, "enrollment started", "username", username, "expires_at", p.ExpiresAt)
	return p, nil
}

// UploadSample gates one sample and stores its encrypted embedding in slot.
// It returns the number of filled slots.
func (s *EnrollmentService) UploadSample(ctx context.Context, username, pin string, slot int, raw []byte, source string) (int, error) {
	if err := s.admit(ctx, source); err != nil {
		return 0, err
	}
	if slot < 0 || slot >= common.EnrollmentSamples {
		return 0, common.Validationf("slot must be between 1 and %d", common.EnrollmentSamples)
	}
	if len(raw) == 0 {
		return 0, common.Validationf("audio is required")
	}
	p, err := s.pending(ctx, username, pin)
	if err != nil {
		return 0, err
	}

	vec, err := s.embed(ctx, username, slot, raw)
	if err != nil {
		return 0, err
	}
	blob, err := s.vault.Encrypt(vec)
	if err != nil {
		return 0, err
	}
	if err := s.repos.Enrollments(s.tx.Conn()).SetSample(ctx, username, slot, blob); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.Validationf("no enrollment in progress")
		}
		return 0, err
	}

	p.Samples[slot] = blob
	return p.Filled(), nil
}

// Finalize averages the stored samples into the voiceprint and replaces the
// pending enrollment with the identity in one transaction.
func (s *EnrollmentService) Finalize(ctx context.Context, username, pin, source string) (*models.Identity, error) {
	if err := s.admit(ctx, source); err != nil {
		return nil, err
	}
	p, err := s.pending(ctx, username, pin)
	if err != nil {
		return nil, err
	}
	if !p.Complete() {
		return nil, common.Validationf("%d of %d samples accepted", p.Filled(), common.EnrollmentSamples)
	}

	vectors := make([][]float32, 0, common.EnrollmentSamples)
	for _, blob := range p.Samples {
		vec, err := s.vault.Decrypt(blob)
		if err != nil {
			s.logger.Error(ctx, "pending sample failed integrity check", "username", username, "error", err)
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	voiceprint, err := s.seal(vectors...)
	if err != nil {
		return nil, err
	}

	return s.create(ctx, username, p.PINHash, voiceprint, p.Role)
}

// Purge deletes expired pending enrollments.
func (s *EnrollmentService) Purge(ctx context.Context) (int64, error) {
	return s.repos.Enrollments(s.tx.Conn()).DeleteExpired(ctx, s.now())
}

func (s *EnrollmentService) admit(ctx context.Context, source string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Allow(ctx, source)
}

func (s *EnrollmentService) validate(username, pin string, role models.Role) error {
	if err := credentials.ValidateUsername(username); err != nil {
		return err
	}
	if err := credentials.ValidatePIN(pin); err != nil {
		return err
	}
	if !role.Valid() {
		return common.Validationf("unknown role")
	}
	return nil
}

func (s *EnrollmentService) ensureAvailable(ctx context.Context, username string) error {
	_, err := s.repos.Identities(s.tx.Conn()).GetByUsername(ctx, username)
	switch {
	case err == nil:
		return common.ErrUsernameTaken
	case errors.Is(err, common.ErrorNotFound):
		return nil
	}
	return fmt.Errorf("lookup identity: %w", err)
}

// pending loads an unexpired pending enrollment and checks its PIN. A wrong
// PIN and a missing enrollment look the same.
func (s *EnrollmentService) pending(ctx context.Context, username, pin string) (*models.PendingEnrollment, error) {
	p, err := s.repos.Enrollments(s.tx.Conn()).Get(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.creds.Burn(pin)
			return nil, common.ErrCredentials
		}
		return nil, err
	}
	if !s.now().Before(p.ExpiresAt) || !s.creds.Verify(pin, p.PINHash) {
		return nil, common.ErrCredentials
	}
	return p, nil
}

func (s *EnrollmentService) embed(ctx context.Context, username string, slot int, raw []byte) ([]float32, error) {
	res, err := s.gate.Embed(ctx, raw)
	if err != nil {
		s.logger.Warn(ctx, "enrollment sample rejected", "username", username, "sample", slot+1, "reason", failureReason(err))
		return nil, err
	}
	return res.Embedding, nil
}

func (s *EnrollmentService) seal(vectors ...[]float32) ([]byte, error) {
	mean, err := biometric.Mean(vectors...)
	if err != nil {
		return nil, err
	}
	return s.vault.Encrypt(mean)
}

func (s *EnrollmentService) create(ctx context.Context, username string, pinHash, voiceprint []byte, role models.Role) (*models.Identity, error) {
	id := &models.Identity{
		Username:            username,
		PINHash:             pinHash,
		Role:                role,
		EncryptedVoiceprint: voiceprint,
		Active:              true,
		CreatedAt:           s.now(),
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if id, err = s.repos.Identities(tx).Create(ctx, id); err != nil {
			return err
		}
		if err := s.repos.Enrollments(tx).Delete(ctx, username); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrUsernameTaken
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	s.logger.Info(ctx, "identity enrolled", "username", username, "role", role.String())
	return id, nil
}
