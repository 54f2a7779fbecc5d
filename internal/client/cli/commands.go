package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/client/client"
	"github.com/dmitrijs2005/voicemfa/internal/common"
)

const attendanceWindow = 30 * 24 * time.Hour

var timeNow = time.Now

var errNotLoggedIn = errors.New("log in first")

// report prints err in user terms and returns it.
func (a *App) report(err error) error {
	var rej *client.VoiceRejectedError
	switch {
	case errors.As(err, &rej):
		fmt.Fprintln(a.out, "Voice not accepted: "+rejectionHint(rej.Kind))
	case errors.Is(err, client.ErrUnavailable):
		fmt.Fprintln(a.out, "Server unavailable, try again")
	default:
		fmt.Fprintln(a.out, "Error:", err)
	}
	return err
}

func rejectionHint(kind string) string {
	switch kind {
	case string(common.QualityIssue):
		return "recording too quiet, clipped or noisy; record again"
	case string(common.SpoofDetected):
		return "the recording does not sound like a live voice"
	case string(common.VoiceMismatch):
		return "the voice does not match the enrolled voiceprint"
	}
	return kind
}

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, errNotLoggedIn)
		return errNotLoggedIn
	}
	return nil
}

func formatAttendance(r *client.Attendance) string {
	if r == nil {
		return "-"
	}
	s := fmt.Sprintf("%s  in %s", r.Date, r.ClockIn.Local().Format("15:04"))
	if r.ClockOut != nil {
		s += "  out " + r.ClockOut.Local().Format("15:04")
	}
	s += "  " + r.Status
	if r.FineAmount > 0 {
		s += fmt.Sprintf("  fine %.2f", r.FineAmount)
	}
	return s
}

func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.api.Ping(ctx); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Server is up")
	return nil
}

func (a *App) Enroll(ctx context.Context) error {
	userName, err := GetSimpleText(a.reader, "-Enter username", a.out)
	if err != nil {
		return a.report(err)
	}
	pin, err := GetPIN(a.out)
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(pin)

	role, err := GetSimpleText(a.reader, "-Role (employee/admin, empty for employee)", a.out)
	if err != nil {
		return a.report(err)
	}

	samples := make([][]byte, 0, common.EnrollmentSamples)
	for i := 1; i <= common.EnrollmentSamples; i++ {
		data, err := GetAudio(a.reader, fmt.Sprintf("-Path to voice sample %d of %d (WAV)", i, common.EnrollmentSamples), a.out)
		if err != nil {
			return a.report(err)
		}
		samples = append(samples, data)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	id, err := a.api.Enroll(ctx, userName, string(pin), role, samples)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Enrolled %s as %s\n", id.Username, id.Role)
	return nil
}

// Login runs the two-step flow: PIN for a challenge phrase, then a recording
// of that phrase.
func (a *App) Login(ctx context.Context) error {
	userName, err := GetSimpleText(a.reader, "-Enter username", a.out)
	if err != nil {
		return a.report(err)
	}
	pin, err := GetPIN(a.out)
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(pin)

	cctx, cancel := a.withTimeout(ctx)
	challenge, err := a.api.RequestChallenge(cctx, userName, string(pin))
	cancel()
	if err != nil {
		return a.report(err)
	}

	fmt.Fprintf(a.out, "Say this phrase: %q (valid until %s)\n", challenge.Phrase, challenge.ExpiresAt.Local().Format("15:04:05"))
	audio, err := GetAudio(a.reader, "-Path to your recording (WAV)", a.out)
	if err != nil {
		return a.report(err)
	}

	lctx, cancel := a.withTimeout(ctx)
	defer cancel()
	res, err := a.api.Login(lctx, userName, string(pin), audio)
	if err != nil {
		return a.report(err)
	}

	a.userName = res.Username
	a.role = res.Role

	fmt.Fprintf(a.out, "Welcome, %s (voice match %.0f%%)\n", res.Username, res.Similarity*100)
	if res.ClockedIn {
		fmt.Fprintln(a.out, "Clocked in: "+formatAttendance(res.Attendance))
	}
	return nil
}

func (a *App) ClockOut(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	audio, err := GetAudio(a.reader, "-Path to a fresh voice recording (WAV)", a.out)
	if err != nil {
		return a.report(err)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	res, err := a.api.ClockOut(ctx, audio)
	if err != nil {
		return a.report(err)
	}
	if !res.Closed {
		fmt.Fprintln(a.out, "No open attendance record for today")
		return nil
	}
	fmt.Fprintln(a.out, "Clocked out: "+formatAttendance(res.Attendance))
	if res.PendingTasks > 0 {
		fmt.Fprintf(a.out, "%d task(s) still open\n", res.PendingTasks)
	}
	return nil
}

func (a *App) Today(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	rec, err := a.api.Today(ctx)
	if err != nil {
		return a.report(err)
	}
	if rec == nil {
		fmt.Fprintln(a.out, "No attendance recorded today")
		return nil
	}
	fmt.Fprintln(a.out, formatAttendance(rec))
	return nil
}

func (a *App) Tasks(ctx context.Context, all bool) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	tasks, err := a.api.ListTasks(ctx, all)
	if err != nil {
		return a.report(err)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(a.out, "No tasks")
		return nil
	}
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(a.out, "[%s] %s  %s\n", mark, t.ID, t.Title)
		if t.Description != "" {
			fmt.Fprintln(a.out, "      "+strings.ReplaceAll(t.Description, "\n", "\n      "))
		}
	}
	return nil
}

func (a *App) Done(ctx context.Context, taskID string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.api.CompleteTask(ctx, taskID); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Task completed")
	return nil
}

func (a *App) Assign(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	owner, err := GetSimpleText(a.reader, "-Assign to username", a.out)
	if err != nil {
		return a.report(err)
	}
	title, err := GetSimpleText(a.reader, "-Title", a.out)
	if err != nil {
		return a.report(err)
	}
	description, err := GetMultiline(a.reader, "-Description", a.out)
	if err != nil {
		return a.report(err)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	task, err := a.api.AssignTask(ctx, owner, title, description)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Assigned task %s to %s\n", task.ID, owner)
	return nil
}

// Attendance shows the last 30 days, for username when given.
func (a *App) Attendance(ctx context.Context, username string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	to := timeNow()
	recs, err := a.api.ListAttendance(ctx, username, to.Add(-attendanceWindow), to)
	if err != nil {
		return a.report(err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No attendance records")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintln(a.out, formatAttendance(r))
	}
	return nil
}

func (a *App) Logout(_ context.Context) error {
	a.api.Logout()
	a.userName, a.role = "", ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
