package models

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"", RoleEmployee, false},
		{"employee", RoleEmployee, false},
		{"admin", RoleAdmin, false},
		{"Admin", 0, true},
		{"root", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				if !errors.Is(err, common.ErrValidation) {
					t.Fatalf("want validation error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseRole(%q) = %v, %v", tt.in, got, err)
			}
			name := tt.in
			if name == "" {
				name = "employee"
			}
			if got.String() != name {
				t.Fatalf("String() = %q", got.String())
			}
		})
	}
}

func TestRoleCapabilities(t *testing.T) {
	if RoleEmployee.CanManageTasks() || RoleEmployee.CanViewAttendance() {
		t.Fatal("employee must not manage tasks or view attendance")
	}
	if !RoleAdmin.CanManageTasks() || !RoleAdmin.CanViewAttendance() {
		t.Fatal("admin must manage tasks and view attendance")
	}
	if Role(0).Valid() || Role(7).Valid() {
		t.Fatal("undefined roles must be invalid")
	}
}

func TestPendingEnrollment_Complete(t *testing.T) {
	p := &PendingEnrollment{}
	if p.Complete() || p.Filled() != 0 {
		t.Fatal("empty enrollment reported progress")
	}
	p.Samples[0] = []byte{1}
	p.Samples[2] = []byte{1}
	if p.Complete() || p.Filled() != 2 {
		t.Fatalf("Filled() = %d", p.Filled())
	}
	p.Samples[1] = []byte{1}
	if !p.Complete() {
		t.Fatal("all slots filled but not complete")
	}
}

func TestChallenge_Valid(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	c := &Challenge{ExpiresAt: now.Add(time.Minute)}
	if !c.Valid(now) {
		t.Fatal("fresh challenge invalid")
	}
	if c.Valid(now.Add(time.Minute)) {
		t.Fatal("challenge valid at expiry")
	}
	c.Used = true
	if c.Valid(now) {
		t.Fatal("used challenge valid")
	}
}
