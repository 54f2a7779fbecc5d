// Package grpc exposes the voice MFA operations over gRPC.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/services"
	"google.golang.org/grpc"
)

// AuthService is the login half of the services layer.
type AuthService interface {
	RequestChallenge(ctx context.Context, username, pin, source string) (*services.ChallengeTicket, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	VerifySession(token string) (*auth.Session, error)
}

type EnrollmentService interface {
	Enroll(ctx context.Context, req services.EnrollRequest) (*models.Identity, error)
	Init(ctx context.Context, username, pin string, role models.Role, source string) (*models.PendingEnrollment, error)
	UploadSample(ctx context.Context, username, pin string, slot int, raw []byte, source string) (int, error)
	Finalize(ctx context.Context, username, pin, source string) (*models.Identity, error)
}

type AttendanceService interface {
	ClockOut(ctx context.Context, req services.ClockOutRequest) (*services.ClockOutResult, error)
	TodayRecord(ctx context.Context, identityID string) (*models.AttendanceRecord, error)
	ListAttendance(ctx context.Context, identityID string, from, to time.Time) ([]*models.AttendanceRecord, error)
	ListAttendanceOf(ctx context.Context, actor models.Role, username string, from, to time.Time) ([]*models.AttendanceRecord, error)
}

type TaskService interface {
	AssignTask(ctx context.Context, actor models.Role, ownerUsername, title, description string) (*models.Task, error)
	CompleteTask(ctx context.Context, identityID, taskID string) error
	ListTasks(ctx context.Context, identityID string, includeCompleted bool) ([]*models.Task, error)
}

// Services bundles what the server dispatches to.
type Services struct {
	Auth       AuthService
	Enrollment EnrollmentService
	Attendance AttendanceService
	Tasks      TaskService
}

type GRPCServer struct {
	address    string
	auth       AuthService
	enrollment EnrollmentService
	attendance AttendanceService
	tasks      TaskService
	maxRecv    int
	logger     logging.Logger
}

// NewGRPCServer builds the server. maxAudioBytes bounds a single sample;
// the message limit leaves room for three base64 samples.
func NewGRPCServer(address string, l logging.Logger, s Services, maxAudioBytes int64) *GRPCServer {
	return &GRPCServer{
		address:    address,
		auth:       s.Auth,
		enrollment: s.Enrollment,
		attendance: s.Attendance,
		tasks:      s.Tasks,
		maxRecv:    int(maxAudioBytes)*4 + 1<<20,
		logger:     l.With("module", "grpc_server"),
	}
}

// NewServer returns a grpc.Server with the service registered and the
// interceptors installed. Run uses it; tests serve it on a bufconn.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(s.maxRecv),
		grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.accessTokenInterceptor),
	)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
