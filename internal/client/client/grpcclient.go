package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	gs "github.com/dmitrijs2005/voicemfa/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const dateLayout = "2006-01-02"

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	dialOpts    []grpc.DialOption

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := s.token(); token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewVoiceMFAClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, s.dialOpts...)
	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *GRPCClient) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) setToken(t string) {
	s.mu.Lock()
	s.accessToken = t
	s.mu.Unlock()
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// Logout forgets the session token. Tokens are stateless on the server and
// simply expire.
func (s *GRPCClient) Logout() {
	s.setToken("")
}

func (s *GRPCClient) call(ctx context.Context, method string, in map[string]any) (map[string]*structpb.Value, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, gs.FullMethod(method), req, resp); err != nil {
		return nil, s.mapError(err)
	}
	return resp.GetFields(), nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, gs.MethodPing, nil)
	if err != nil {
		return err
	}
	if resp["status"].GetStringValue() != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) RequestChallenge(ctx context.Context, username, pin string) (*Challenge, error) {
	resp, err := s.call(ctx, gs.MethodRequestChallenge, map[string]any{"username": username, "pin": pin})
	if err != nil {
		return nil, err
	}
	return &Challenge{
		Phrase:    resp["phrase"].GetStringValue(),
		ExpiresAt: parseTime(resp["expires_at"]),
	}, nil
}

// Login verifies the spoken challenge phrase and keeps the returned token
// for later calls.
func (s *GRPCClient) Login(ctx context.Context, username, pin string, audio []byte) (*LoginResult, error) {
	resp, err := s.call(ctx, gs.MethodLogin, map[string]any{
		"username": username,
		"pin":      pin,
		"audio":    base64.StdEncoding.EncodeToString(audio),
	})
	if err != nil {
		return nil, err
	}

	s.setToken(resp["token"].GetStringValue())

	return &LoginResult{
		Username:      resp["username"].GetStringValue(),
		Role:          resp["role"].GetStringValue(),
		Similarity:    resp["similarity"].GetNumberValue(),
		PhraseMatched: resp["phrase_matched"].GetBoolValue(),
		ClockedIn:     resp["clocked_in"].GetBoolValue(),
		Attendance:    attendanceOf(resp["attendance"]),
	}, nil
}

func (s *GRPCClient) Enroll(ctx context.Context, username, pin, role string, samples [][]byte) (*Identity, error) {
	encoded := make([]any, 0, len(samples))
	for _, b := range samples {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(b))
	}
	resp, err := s.call(ctx, gs.MethodEnroll, map[string]any{
		"username": username,
		"pin":      pin,
		"role":     role,
		"samples":  encoded,
	})
	if err != nil {
		return nil, err
	}
	return &Identity{
		ID:       resp["id"].GetStringValue(),
		Username: resp["username"].GetStringValue(),
		Role:     resp["role"].GetStringValue(),
	}, nil
}

func (s *GRPCClient) ClockOut(ctx context.Context, audio []byte) (*ClockOutResult, error) {
	resp, err := s.call(ctx, gs.MethodClockOut, map[string]any{"audio": base64.StdEncoding.EncodeToString(audio)})
	if err != nil {
		return nil, err
	}
	return &ClockOutResult{
		Closed:       resp["closed"].GetBoolValue(),
		PendingTasks: int(resp["pending_tasks"].GetNumberValue()),
		Similarity:   resp["similarity"].GetNumberValue(),
		Attendance:   attendanceOf(resp["attendance"]),
	}, nil
}

func (s *GRPCClient) Today(ctx context.Context) (*Attendance, error) {
	resp, err := s.call(ctx, gs.MethodToday, nil)
	if err != nil {
		return nil, err
	}
	return attendanceOf(resp["attendance"]), nil
}

// ListAttendance lists the caller's records when username is empty.
func (s *GRPCClient) ListAttendance(ctx context.Context, username string, from, to time.Time) ([]*Attendance, error) {
	in := map[string]any{
		"from": from.Format(dateLayout),
		"to":   to.Format(dateLayout),
	}
	if username != "" {
		in["username"] = username
	}
	resp, err := s.call(ctx, gs.MethodListAttendance, in)
	if err != nil {
		return nil, err
	}
	var out []*Attendance
	for _, v := range resp["records"].GetListValue().GetValues() {
		if a := attendanceOf(v); a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *GRPCClient) ListTasks(ctx context.Context, includeCompleted bool) ([]*Task, error) {
	resp, err := s.call(ctx, gs.MethodListTasks, map[string]any{"include_completed": includeCompleted})
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, v := range resp["tasks"].GetListValue().GetValues() {
		out = append(out, taskOf(v))
	}
	return out, nil
}

func (s *GRPCClient) CompleteTask(ctx context.Context, taskID string) error {
	_, err := s.call(ctx, gs.MethodCompleteTask, map[string]any{"task_id": taskID})
	return err
}

func (s *GRPCClient) AssignTask(ctx context.Context, username, title, description string) (*Task, error) {
	resp, err := s.call(ctx, gs.MethodAssignTask, map[string]any{
		"username":    username,
		"title":       title,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	return taskOf(structpb.NewStructValue(&structpb.Struct{Fields: resp})), nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := gs.RejectionKind(err); ok {
		return &VoiceRejectedError{Kind: string(kind)}
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return ErrForbidden
	case codes.FailedPrecondition:
		return ErrChallenge
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func parseTime(v *structpb.Value) time.Time {
	t, _ := time.Parse(time.RFC3339, v.GetStringValue())
	return t
}

func attendanceOf(v *structpb.Value) *Attendance {
	f := v.GetStructValue().GetFields()
	if f == nil {
		return nil
	}
	a := &Attendance{
		Date:       f["date"].GetStringValue(),
		ClockIn:    parseTime(f["clock_in"]),
		Status:     f["status"].GetStringValue(),
		FineAmount: f["fine_amount"].GetNumberValue(),
	}
	if out, ok := f["clock_out"]; ok {
		t := parseTime(out)
		a.ClockOut = &t
	}
	return a
}

func taskOf(v *structpb.Value) *Task {
	f := v.GetStructValue().GetFields()
	return &Task{
		ID:          f["id"].GetStringValue(),
		Title:       f["title"].GetStringValue(),
		Description: f["description"].GetStringValue(),
		AssignedAt:  parseTime(f["assigned_at"]),
		Completed:   f["completed"].GetBoolValue(),
	}
}
