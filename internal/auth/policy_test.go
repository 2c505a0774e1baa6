package auth

import "testing"

func TestIdentityPolicy(t *testing.T) {
	user := Identity{ID: "u1"}
	staff := Identity{ID: "s1", IsStaff: true}
	admin := Identity{ID: "a1", IsAdmin: true}

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"user owns", user.CanAccessExperiment("u1"), true},
		{"user other", user.CanAccessExperiment("u2"), false},
		{"staff any", staff.CanAccessExperiment("u2"), true},
		{"admin not owner", admin.CanAccessExperiment("u2"), false},
		{"empty id never owns", Identity{}.CanAccessExperiment(""), false},

		{"user patch", user.CanPatchExperiment(), false},
		{"staff patch", staff.CanPatchExperiment(), true},
		{"admin patch", admin.CanPatchExperiment(), false},

		{"user queue", user.CanViewQueue(), false},
		{"staff queue", staff.CanViewQueue(), true},
		{"admin queue", admin.CanViewQueue(), true},

		{"user results", user.CanManageResults(), false},
		{"staff results", staff.CanManageResults(), false},
		{"admin results", admin.CanManageResults(), true},

		{"admin audit", admin.Has(PermAuditView), true},
		{"staff audit", staff.Has(PermAuditView), false},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
