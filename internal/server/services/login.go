package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/credentials"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/ratelimit"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
)

// ChallengeTicket is what a caller receives after the PIN step.
type ChallengeTicket struct {
	Phrase    string
	ExpiresAt time.Time
}

type LoginRequest struct {
	Username string
	PIN      string
	Audio    []byte
	Source   string
}

// LoginResult is returned only on full success. Similarity is rounded to
// four places.
type LoginResult struct {
	Token         string
	ExpiresAt     time.Time
	IdentityID    string
	Username      string
	Role          models.Role
	Similarity    float64
	Transcript    string
	PhraseMatched bool
	Attendance    *models.AttendanceRecord
	ClockedIn     bool
}

// AuthService runs the login sequence: throttle, lockout, PIN, challenge,
// voice, token and clock-in.
type AuthService struct {
	tx         dbx.Transactor
	repos      repomanager.RepositoryManager
	creds      *credentials.Store
	guard      *LockoutGuard
	ledger     *ChallengeLedger
	gate       *biometric.Gate
	issuer     *auth.Issuer
	attendance *AttendanceEngine
	limiter    ratelimit.Limiter
	audit      *auditor
	now        func() time.Time
	logger     logging.Logger
}

type AuthDeps struct {
	Tx         dbx.Transactor
	Repos      repomanager.RepositoryManager
	Creds      *credentials.Store
	Guard      *LockoutGuard
	Ledger     *ChallengeLedger
	Gate       *biometric.Gate
	Issuer     *auth.Issuer
	Attendance *AttendanceEngine
	Limiter    ratelimit.Limiter
	Logger     logging.Logger
}

func NewAuthService(d AuthDeps) *AuthService {
	logger := d.Logger.With("module", "auth")
	return &AuthService{
		tx:         d.Tx,
		repos:      d.Repos,
		creds:      d.Creds,
		guard:      d.Guard,
		ledger:     d.Ledger,
		gate:       d.Gate,
		issuer:     d.Issuer,
		attendance: d.Attendance,
		limiter:    d.Limiter,
		audit:      newAuditor(d.Tx, d.Repos, logger),
		now:        time.Now,
		logger:     logger,
	}
}

// RequestChallenge verifies the PIN and issues a phrase to speak.
func (s *AuthService) RequestChallenge(ctx context.Context, username, pin, source string) (*ChallengeTicket, error) {
	if err := s.admit(ctx, models.OpChallenge, source); err != nil {
		return nil, err
	}
	id, err := s.authenticate(ctx, models.OpChallenge, username, pin, source)
	if err != nil {
		return nil, err
	}

	c, err := s.ledger.Issue(ctx, id.Username)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "challenge issued", "username", id.Username, "expires_at", c.ExpiresAt)
	return &ChallengeTicket{Phrase: c.Phrase, ExpiresAt: c.ExpiresAt}, nil
}

// Login completes authentication with a spoken sample of the current
// challenge.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := s.admit(ctx, models.OpLogin, req.Source); err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, common.Validationf("audio is required")
	}
	id, err := s.authenticate(ctx, models.OpLogin, req.Username, req.PIN, req.Source)
	if err != nil {
		return nil, err
	}

	attempt := &models.LoginAttempt{
		Username:      id.Username,
		IdentityID:    id.ID,
		Operation:     models.OpLogin,
		SourceAddress: req.Source,
	}

	challenge, err := s.ledger.Current(ctx, s.tx.Conn(), id.Username)
	if err != nil {
		s.audit.failure(ctx, attempt, failureReason(err), nil)
		return nil, err
	}
	if len(id.EncryptedVoiceprint) == 0 {
		s.audit.failure(ctx, attempt, models.ReasonNoVoiceprint, req.Audio)
		return nil, common.NewRejection(common.VoiceMismatch, "no reference voiceprint")
	}

	// No transaction is open across the model calls.
	res, err := s.gate.Verify(ctx, req.Audio, id.EncryptedVoiceprint)
	if res != nil {
		attempt.Similarity = res.Similarity
		attempt.Transcript = res.Transcript
	}
	if err != nil {
		s.audit.failure(ctx, attempt, failureReason(err), req.Audio)
		if countsAsFailure(err) {
			s.recordFailure(ctx, id)
		}
		return nil, err
	}

	matched, err := s.checkPhrase(ctx, challenge, res)
	if err != nil {
		if errors.Is(err, common.ErrChallenge) {
			s.audit.failure(ctx, attempt, models.ReasonPhrase, req.Audio)
			s.recordFailure(ctx, id)
		} else {
			s.audit.failure(ctx, attempt, failureReason(err), req.Audio)
		}
		return nil, err
	}

	token, exp, err := s.issuer.Issue(id.ID, id.Username, id.Role)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	out := &LoginResult{
		Token:         token,
		ExpiresAt:     exp,
		IdentityID:    id.ID,
		Username:      id.Username,
		Role:          id.Role,
		Similarity:    math.Round(res.Similarity*10000) / 10000,
		Transcript:    res.Transcript,
		PhraseMatched: matched,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.ledger.Consume(ctx, tx, challenge.ID); err != nil {
			return err
		}
		if err := s.guard.RecordSuccess(ctx, tx, id); err != nil {
			return err
		}
		rec, created, err := s.attendance.ClockIn(ctx, tx, id, s.now())
		if err != nil {
			return err
		}
		out.Attendance, out.ClockedIn = rec, created
		return s.audit.successTx(ctx, tx, attempt)
	})
	if err != nil {
		if errors.Is(err, common.ErrChallenge) {
			// lost a race with a concurrent login on the same challenge
			s.audit.failure(ctx, attempt, models.ReasonChallenge, nil)
			return nil, err
		}
		return nil, fmt.Errorf("commit login: %w", err)
	}

	s.logger.Info(ctx, "login succeeded", "username", id.Username, "similarity", out.Similarity, "clocked_in", out.ClockedIn)
	return out, nil
}

// VerifySession checks a session token.
func (s *AuthService) VerifySession(token string) (*auth.Session, error) {
	return s.issuer.Verify(token)
}

func (s *AuthService) admit(ctx context.Context, op, source string) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Allow(ctx, source); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			s.logger.Warn(ctx, "request throttled", "operation", op, "source", source)
		}
		return err
	}
	return nil
}

// authenticate runs the lockout check and the PIN comparison. Unknown user,
// inactive identity, lock and wrong PIN all return common.ErrCredentials;
// only the audit row tells them apart.
func (s *AuthService) authenticate(ctx context.Context, op, username, pin, source string) (*models.Identity, error) {
	if err := credentials.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := credentials.ValidatePIN(pin); err != nil {
		return nil, err
	}

	attempt := &models.LoginAttempt{Username: username, Operation: op, SourceAddress: source}
	conn := s.tx.Conn()

	id, err := s.repos.Identities(conn).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.creds.Burn(pin)
			s.audit.failure(ctx, attempt, models.ReasonUnknownUser, nil)
			return nil, common.ErrCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	attempt.IdentityID = id.ID

	if !id.Active {
		s.creds.Burn(pin)
		s.audit.failure(ctx, attempt, models.ReasonInactive, nil)
		return nil, common.ErrCredentials
	}

	if err := s.guard.Check(ctx, conn, id); err != nil {
		if errors.Is(err, ErrLocked) {
			s.audit.failure(ctx, attempt, models.ReasonLocked, nil)
			return nil, common.ErrCredentials
		}
		return nil, err
	}

	if !s.creds.Verify(pin, id.PINHash) {
		s.recordFailure(ctx, id)
		s.audit.failure(ctx, attempt, models.ReasonBadPIN, nil)
		return nil, common.ErrCredentials
	}
	return id, nil
}

func (s *AuthService) recordFailure(ctx context.Context, id *models.Identity) {
	if _, err := s.guard.RecordFailure(ctx, s.tx.Conn(), id); err != nil {
		s.logger.Error(ctx, "failure counter not updated", "username", id.Username, "error", err)
	}
}

// checkPhrase applies the phrase policy. Non-strict mode only records the
// outcome; strict mode rejects a mismatch and needs a transcript.
func (s *AuthService) checkPhrase(ctx context.Context, c *models.Challenge, res *biometric.Result) (bool, error) {
	if res.TranscriptErr != nil {
		if s.ledger.Strict() {
			return false, res.TranscriptErr
		}
		s.logger.Warn(ctx, "transcription failed, phrase not checked", "username", c.Username, "error", res.TranscriptErr)
		return false, nil
	}
	if res.Transcript == "" && !s.ledger.Strict() {
		return false, nil
	}

	matched := s.ledger.Matches(c, res.Transcript)
	if !matched {
		if s.ledger.Strict() {
			return false, fmt.Errorf("%w: %s", common.ErrChallenge, models.ReasonPhrase)
		}
		s.logger.Info(ctx, "spoken phrase did not match", "username", c.Username, "transcript", res.Transcript)
	}
	return matched, nil
}

// countsAsFailure reports whether a biometric rejection moves the lockout
// counter. Quality problems and processing faults do not.
func countsAsFailure(err error) bool {
	kind, ok := common.RejectionKindOf(err)
	return ok && (kind == common.VoiceMismatch || kind == common.SpoofDetected)
}
