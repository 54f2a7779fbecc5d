package client

import (
	"context"
	"time"
)

// Client is the API surface the terminal client needs.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	RequestChallenge(ctx context.Context, username, pin string) (*Challenge, error)
	Login(ctx context.Context, username, pin string, audio []byte) (*LoginResult, error)
	Enroll(ctx context.Context, username, pin, role string, samples [][]byte) (*Identity, error)
	ClockOut(ctx context.Context, audio []byte) (*ClockOutResult, error)
	Today(ctx context.Context) (*Attendance, error)
	ListAttendance(ctx context.Context, username string, from, to time.Time) ([]*Attendance, error)
	ListTasks(ctx context.Context, includeCompleted bool) ([]*Task, error)
	CompleteTask(ctx context.Context, taskID string) error
	AssignTask(ctx context.Context, username, title, description string) (*Task, error)
	Logout()
}

type Challenge struct {
	Phrase    string
	ExpiresAt time.Time
}

type Identity struct {
	ID       string
	Username string
	Role     string
}

type Attendance struct {
	Date       string
	ClockIn    time.Time
	ClockOut   *time.Time
	Status     string
	FineAmount float64
}

type LoginResult struct {
	Username      string
	Role          string
	Similarity    float64
	PhraseMatched bool
	ClockedIn     bool
	Attendance    *Attendance
}

type ClockOutResult struct {
	Closed       bool
	PendingTasks int
	Similarity   float64
	Attendance   *Attendance
}

type Task struct {
	ID          string
	Title       string
	Description string
	AssignedAt  time.Time
	Completed   bool
}
