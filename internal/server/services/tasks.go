package services

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
)

const maxTaskTitle = 200

type TaskService struct {
	tx     dbx.Transactor
	repos  repomanager.RepositoryManager
	now    func() time.Time
	logger logging.Logger
}

func NewTaskService(tx dbx.Transactor, repos repomanager.RepositoryManager, logger logging.Logger) *TaskService {
	return &TaskService{tx: tx, repos: repos, now: time.Now, logger: logger.With("module", "tasks")}
}

// AssignTask creates a task for ownerUsername. Only roles that manage tasks
// may assign.
func (s *TaskService) AssignTask(ctx context.Context, actor models.Role, ownerUsername, title, description string) (*models.Task, error) {
	if !actor.CanManageTasks() {
		return nil, common.ErrForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTaskTitle {
		return nil, common.Validationf("title must be 1-%d characters", maxTaskTitle)
	}

	conn := s.tx.Conn()
	owner, err := s.repos.Identities(conn).GetByUsername(ctx, ownerUsername)
	if err != nil {
		return nil, err
	}

	task, err := s.repos.Tasks(conn).Create(ctx, &models.Task{
		OwnerID:     owner.ID,
		Title:       title,
		Description: description,
		AssignedAt:  s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "task assigned", "owner", ownerUsername, "task_id", task.ID)
	return task, nil
}

// CompleteTask marks a pending task of identityID done.
func (s *TaskService) CompleteTask(ctx context.Context, identityID, taskID string) error {
	return s.repos.Tasks(s.tx.Conn()).Complete(ctx, taskID, identityID, s.now())
}

func (s *TaskService) ListTasks(ctx context.Context, identityID string, includeCompleted bool) ([]*models.Task, error) {
	return s.repos.Tasks(s.tx.Conn()).ListByOwner(ctx, identityID, includeCompleted)
}
