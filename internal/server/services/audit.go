package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/voicemfa/internal/server/staging"
)

// auditor appends LoginAttempt rows outside any transaction, so a failed
// login is recorded even though its mutation rolled back.
type auditor struct {
	tx     dbx.Transactor
	repos  repomanager.RepositoryManager
	now    func() time.Time
	logger logging.Logger
}

func newAuditor(tx dbx.Transactor, repos repomanager.RepositoryManager, logger logging.Logger) *auditor {
	return &auditor{tx: tx, repos: repos, now: time.Now, logger: logger}
}

func (a *auditor) failure(ctx context.Context, attempt *models.LoginAttempt, reason string, audio []byte) {
	attempt.Success = false
	attempt.FailureReason = reason

	args := []any{
		"operation", attempt.Operation,
		"username", attempt.Username,
		"source", attempt.SourceAddress,
		"reason", reason,
	}
	if len(audio) > 0 {
		args = append(args, "audio", staging.Fingerprint(audio)[:16])
	}
	a.logger.Warn(ctx, "authentication rejected", args...)
	a.append(ctx, attempt)
}

func (a *auditor) success(ctx context.Context, attempt *models.LoginAttempt) {
	attempt.Success = true
	attempt.FailureReason = ""
	a.append(ctx, attempt)
}

// successTx records a success inside the caller's transaction.
func (a *auditor) successTx(ctx context.Context, tx dbx.DBTX, attempt *models.LoginAttempt) error {
	attempt.Success = true
	attempt.FailureReason = ""
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = a.now()
	}
	return a.repos.LoginAttempts(tx).Append(ctx, attempt)
}

func (a *auditor) append(ctx context.Context, attempt *models.LoginAttempt) {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = a.now()
	}
	if err := a.repos.LoginAttempts(a.tx.Conn()).Append(ctx, attempt); err != nil {
		a.logger.Error(ctx, "audit write failed", "operation", attempt.Operation, "username", attempt.Username, "error", err)
	}
}

// failureReason maps an error from the login path to its audit reason. A
// biometric rejection records its subkind and detail.
func failureReason(err error) string {
	var rej *common.BiometricRejection
	switch {
	case errors.As(err, &rej):
		return string(rej.Kind) + ": " + rej.Reason
	case errors.Is(err, common.ErrChallenge):
		return models.ReasonChallenge
	case errors.Is(err, common.ErrProcessing):
		return models.ReasonProcessing
	case errors.Is(err, common.ErrValidation):
		return "validation"
	case errors.Is(err, common.ErrRateLimited):
		return models.ReasonRateLimited
	}
	return "internal"
}
