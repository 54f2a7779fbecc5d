package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/client/client"
	"github.com/dmitrijs2005/voicemfa/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	loginErr    error
	clockOutErr error
	samples     [][]byte
	role        string
	loginAudio  []byte
	completed   string
	assigned    []string
	listedFor   string
	listedFrom  time.Time
	loggedOut   bool
	closed      bool
}

func (f *fakeAPI) Close() error {
	f.closed = true
	return nil
}
func (f *fakeAPI) Ping(context.Context) error {
	return nil
}
func (f *fakeAPI) Logout() {
	f.loggedOut = true
}

func (f *fakeAPI) RequestChallenge(_ context.Context, _, pin string) (*client.Challenge, error) {
	if pin != "1234" {
		return nil, client.ErrUnauthorized
	}
	return &client.Challenge{Phrase: "brave falcon jumps over river 42", ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

func (f *fakeAPI) Login(_ context.Context, username, _ string, audio []byte) (*client.LoginResult, error) {
	f.loginAudio = audio
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &client.LoginResult{
		Username:   username,
		Role:       "employee",
		Similarity: 0.91,
		ClockedIn:  true,
		Attendance: &client.Attendance{Date: "2026-03-02", ClockIn: time.Now(), Status: "Working"},
	}, nil
}

func (f *fakeAPI) Enroll(_ context.Context, username, _, role string, samples [][]byte) (*client.Identity, error) {
	f.samples = samples
	f.role = role
	if role == "" {
		role = "employee"
	}
	return &client.Identity{ID: "id-1", Username: username, Role: role}, nil
}

func (f *fakeAPI) ClockOut(context.Context, []byte) (*client.ClockOutResult, error) {
	if f.clockOutErr != nil {
		return nil, f.clockOutErr
	}
	out := time.Now()
	return &client.ClockOutResult{
		Closed:       true,
		PendingTasks: 1,
		Attendance:   &client.Attendance{Date: "2026-03-02", ClockIn: out.Add(-time.Hour), ClockOut: &out, Status: "LeftEarly-Fined", FineAmount: 100},
	}, nil
}

func (f *fakeAPI) Today(context.Context) (*client.Attendance, error) {
	return nil, nil
}

func (f *fakeAPI) ListAttendance(_ context.Context, username string, from, _ time.Time) ([]*client.Attendance, error) {
	f.listedFor = username
	f.listedFrom = from
	return []*client.Attendance{{Date: "2026-03-02", ClockIn: from, Status: "Completed-OnTime"}}, nil
}

func (f *fakeAPI) ListTasks(context.Context, bool) ([]*client.Task, error) {
	return []*client.Task{
		{ID: "t-1", Title: "report", Description: "line one\nline two"},
		{ID: "t-2", Title: "review", Completed: true},
	}, nil
}

func (f *fakeAPI) CompleteTask(_ context.Context, taskID string) error {
	f.completed = taskID
	return nil
}

func (f *fakeAPI) AssignTask(_ context.Context, username, title, description string) (*client.Task, error) {
	f.assigned = []string{username, title, description}
	return &client.Task{ID: "t-9", Title: title}, nil
}

func stubInputs(t *testing.T) {
	t.Helper()
	origPW, origAudio := readPassword, readAudio
	readPassword = func(int) ([]byte, error) { return []byte("1234"), nil }
	readAudio = func(path string) ([]byte, error) { return []byte("wav:" + path), nil }
	t.Cleanup(func() { readPassword, readAudio = origPW, origAudio })
}

func newTestApp(api client.Client, input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return newApp(cfg, api, strings.NewReader(input), &out), &out
}

func TestApp_EnrollReadsThreeSamples(t *testing.T) {
	stubInputs(t)
	api := &fakeAPI{}
	a, out := newTestApp(api, "alice\n\none.wav\ntwo.wav\nthree.wav\n")

	require.NoError(t, a.Enroll(context.Background()))
	assert.Equal(t, [][]byte{[]byte("wav:one.wav"), []byte("wav:two.wav"), []byte("wav:three.wav")}, api.samples)
	assert.Equal(t, "", api.role)
	assert.Contains(t, out.String(), "Enrolled alice as employee")
	assert.False(t, a.isLoggedIn())
}

func TestApp_LoginShowsPhraseAndClocksIn(t *testing.T) {
	stubInputs(t)
	api := &fakeAPI{}
	a, out := newTestApp(api, "alice\nphrase.wav\n")

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, []byte("wav:phrase.wav"), api.loginAudio)
	assert.Contains(t, out.String(), `"brave falcon jumps over river 42"`)
	assert.Contains(t, out.String(), "voice match 91%")
	assert.Contains(t, out.String(), "Clocked in:")
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, "(alice employee)", a.getStatus())
}

func TestApp_LoginRejected(t *testing.T) {
	stubInputs(t)
	api := &fakeAPI{loginErr: &client.VoiceRejectedError{Kind: "voice_mismatch"}}
	a, out := newTestApp(api, "alice\nphrase.wav\n")

	err := a.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, out.String(), "does not match the enrolled voiceprint")
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, "", a.getStatus())
}

func TestApp_CommandsNeedLogin(t *testing.T) {
	a, out := newTestApp(&fakeAPI{}, "")
	ctx := context.Background()

	require.ErrorIs(t, a.ClockOut(ctx), errNotLoggedIn)
	require.ErrorIs(t, a.Today(ctx), errNotLoggedIn)
	require.ErrorIs(t, a.Tasks(ctx, false), errNotLoggedIn)
	require.ErrorIs(t, a.Done(ctx, "t-1"), errNotLoggedIn)
	require.ErrorIs(t, a.Assign(ctx), errNotLoggedIn)
	require.ErrorIs(t, a.Attendance(ctx, ""), errNotLoggedIn)
	assert.Contains(t, out.String(), "log in first")
}

func TestApp_Workday(t *testing.T) {
	stubInputs(t)
	origNow := timeNow
	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = origNow })

	api := &fakeAPI{}
	a, out := newTestApp(api, "bob\nwrite docs\nfirst\nsecond\n\nbye.wav\n")
	a.userName, a.role = "alice", "admin"
	ctx := context.Background()

	require.NoError(t, a.Today(ctx))
	assert.Contains(t, out.String(), "No attendance recorded today")

	require.NoError(t, a.Tasks(ctx, true))
	assert.Contains(t, out.String(), "[ ] t-1  report")
	assert.Contains(t, out.String(), "      line two")
	assert.Contains(t, out.String(), "[x] t-2  review")

	require.NoError(t, a.Done(ctx, "t-1"))
	assert.Equal(t, "t-1", api.completed)

	require.NoError(t, a.Assign(ctx))
	assert.Equal(t, []string{"bob", "write docs", "first\nsecond"}, api.assigned)

	require.NoError(t, a.Attendance(ctx, "bob"))
	assert.Equal(t, "bob", api.listedFor)
	assert.True(t, api.listedFrom.Equal(now.Add(-attendanceWindow)))
	assert.Contains(t, out.String(), "Completed-OnTime")

	require.NoError(t, a.ClockOut(ctx))
	assert.Contains(t, out.String(), "fine 100.00")
	assert.Contains(t, out.String(), "1 task(s) still open")

	require.NoError(t, a.Logout(ctx))
	assert.True(t, api.loggedOut)
	assert.False(t, a.isLoggedIn())
}

func TestApp_RunClosesConnection(t *testing.T) {
	silencePrintln(t)
	api := &fakeAPI{}
	a, _ := newTestApp(api, "ping\nexit\n")

	a.Run(context.Background())
	assert.True(t, api.closed)
}
