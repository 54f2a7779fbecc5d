package grpc

import (
	"context"
	"math"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"status": "OK"})
}

func (s *GRPCServer) RequestChallenge(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(req)
	ticket, err := s.auth.RequestChallenge(ctx, f.str("username"), f.str("pin"), sourceAddress(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, MethodRequestChallenge, err)
	}
	return toStruct(map[string]any{
		"phrase":     ticket.Phrase,
		"expires_at": timestamp(ticket.ExpiresAt),
	})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(req)
	audio, err := f.audio("audio")
	if err != nil {
		return nil, s.toStatus(ctx, MethodLogin, err)
	}

	res, err := s.auth.Login(ctx, services.LoginRequest{
		Username: f.str("username"),
		PIN:      f.str("pin"),
		Audio:    audio,
		Source:   sourceAddress(ctx),
	})
	if err != nil {
		return nil, s.toStatus(ctx, MethodLogin, err)
	}

	out := map[string]any{
		"token":          res.Token,
		"expires_at":     timestamp(res.ExpiresAt),
		"identity_id":    res.IdentityID,
		"username":       res.Username,
		"role":           res.Role.String(),
		"similarity":     res.Similarity,
		"transcript":     res.Transcript,
		"phrase_matched": res.PhraseMatched,
		"clocked_in":     res.ClockedIn,
	}
	if res.Attendance != nil {
		out["attendance"] = recordValue(res.Attendance)
	}
	return toStruct(out)
}

func (s *GRPCServer) Enroll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(req)
	role, err := s.enrollmentRole(ctx, f)
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnroll, err)
	}
	samples, err := f.audioList("samples")
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnroll, err)
	}
	if len(samples) != common.EnrollmentSamples {
		return nil, s.toStatus(ctx, MethodEnroll, common.Validationf("exactly %d samples are required", common.EnrollmentSamples))
	}

	enroll := services.EnrollRequest{
		Username: f.str("username"),
		PIN:      f.str("pin"),
		Role:     role,
		Source:   sourceAddress(ctx),
	}
	copy(enroll.Samples[:], samples)

	id, err := s.enrollment.Enroll(ctx, enroll)
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnroll, err)
	}
	return toStruct(identityValue(id))
}

func (s *GRPCServer) EnrollInit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(req)
	role, err := s.enrollmentRole(ctx, f)
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnrollInit, err)
	}
	p, err := s.enrollment.Init(ctx, f.str("username"), f.str("pin"), role, sourceAddress(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnrollInit, err)
	}
	return toStruct(map[string]any{
		"username":   p.Username,
		"expires_at": timestamp(p.ExpiresAt),
		"samples":    common.EnrollmentSamples,
	})
}

// EnrollUpload takes a 1-based slot.
func (s *GRPCServer) EnrollUpload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(req)
	slot, err := f.integer("slot")
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnrollUpload, err)
	}
	audio, err := f.audio("audio")
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnrollUpload, err)
	}

	filled, err := s.enrollment.UploadSample(ctx, f.str("username"), f.str("pin"), slot-1, audio, sourceAddress(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnrollUpload, err)
	}
	return toStruct(map[string]any{
		"filled":    filled,
		"remaining": common.EnrollmentSamples - filled,
	})
}

func (s *GRPCServer) EnrollFinalize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(req)
	id, err := s.enrollment.Finalize(ctx, f.str("username"), f.str("pin"), sourceAddress(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, MethodEnrollFinalize, err)
	}
	return toStruct(identityValue(id))
}

func (s *GRPCServer) ClockOut(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	audio, err := fieldsOf(req).audio("audio")
	if err != nil {
		return nil, s.toStatus(ctx, MethodClockOut, err)
	}

	res, err := s.attendance.ClockOut(ctx, services.ClockOutRequest{
		IdentityID: sess.IdentityID,
		Audio:      audio,
		Source:     sourceAddress(ctx),
	})
	if err != nil {
		return nil, s.toStatus(ctx, MethodClockOut, err)
	}

	out := map[string]any{
		"closed":        res.Closed,
		"pending_tasks": res.PendingTasks,
		"similarity":    math.Round(res.Similarity*10000) / 10000,
	}
	if res.Closed {
		out["attendance"] = recordValue(res.Record)
	} else {
		out["message"] = "no open attendance record"
	}
	return toStruct(out)
}

func (s *GRPCServer) Today(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.attendance.TodayRecord(ctx, sess.IdentityID)
	if err != nil {
		return nil, s.toStatus(ctx, MethodToday, err)
	}
	return toStruct(map[string]any{"attendance": recordValue(rec)})
}

// ListAttendance lists the caller's records, or another username's when the
// caller may view attendance.
func (s *GRPCServer) ListAttendance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	f := fieldsOf(req)
	to, err := f.date("to", timeNow())
	if err != nil {
		return nil, s.toStatus(ctx, MethodListAttendance, err)
	}
	from, err := f.date("from", to.AddDate(0, 0, -30))
	if err != nil {
		return nil, s.toStatus(ctx, MethodListAttendance, err)
	}

	var recs []*models.AttendanceRecord
	if username := f.str("username"); username != "" && username != sess.Username {
		recs, err = s.attendance.ListAttendanceOf(ctx, sess.Role, username, from, to)
	} else {
		recs, err = s.attendance.ListAttendance(ctx, sess.IdentityID, from, to)
	}
	if err != nil {
		return nil, s.toStatus(ctx, MethodListAttendance, err)
	}
	return toStruct(map[string]any{"records": recordList(recs)})
}

func (s *GRPCServer) ListTasks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListTasks(ctx, sess.IdentityID, fieldsOf(req).boolean("include_completed"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodListTasks, err)
	}
	list := make([]any, 0, len(tasks))
	for _, t := range tasks {
		list = append(list, taskValue(t))
	}
	return toStruct(map[string]any{"tasks": list})
}

func (s *GRPCServer) CompleteTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	taskID := fieldsOf(req).str("task_id")
	if taskID == "" {
		return nil, s.toStatus(ctx, MethodCompleteTask, common.Validationf("task_id is required"))
	}
	if err := s.tasks.CompleteTask(ctx, sess.IdentityID, taskID); err != nil {
		return nil, s.toStatus(ctx, MethodCompleteTask, err)
	}
	return toStruct(map[string]any{"task_id": taskID, "completed": true})
}

func (s *GRPCServer) AssignTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	f := fieldsOf(req)
	task, err := s.tasks.AssignTask(ctx, sess.Role, f.str("username"), f.str("title"), f.str("description"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodAssignTask, err)
	}
	return toStruct(taskValue(task))
}

// enrollmentRole parses the requested role. Enrolling an admin needs an
// admin session.
func (s *GRPCServer) enrollmentRole(ctx context.Context, f fields) (models.Role, error) {
	role, err := f.role("role")
	if err != nil {
		return 0, err
	}
	if role == models.RoleEmployee {
		return role, nil
	}
	sess, ok := SessionFromContext(ctx)
	if !ok || sess.Role != models.RoleAdmin {
		return 0, common.ErrForbidden
	}
	return role, nil
}

func session(ctx context.Context) (*auth.Session, error) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return sess, nil
}
