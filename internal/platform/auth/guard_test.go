package auth

import "testing"

func TestGuardPredicates(t *testing.T) {
	owner := Principal{ID: 1, Active: true}
	stranger := Principal{ID: 2, Active: true}
	admin := Principal{ID: 3, Active: true, Admin: true}

	cases := []struct {
		name        string
		p           Principal
		self        bool
		selfOrAdmin bool
		admin       bool
	}{
		{name: "owner", p: owner, self: true, selfOrAdmin: true},
		{name: "stranger", p: stranger, self: false, selfOrAdmin: false},
		{name: "admin", p: admin, self: false, selfOrAdmin: true, admin: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AllowSelf(tc.p, owner.ID); got != tc.self {
				t.Fatalf("AllowSelf = %v, want %v", got, tc.self)
			}
			if got := AllowSelfOrAdmin(tc.p, owner.ID); got != tc.selfOrAdmin {
				t.Fatalf("AllowSelfOrAdmin = %v, want %v", got, tc.selfOrAdmin)
			}
			if got := AllowAdmin(tc.p); got != tc.admin {
				t.Fatalf("AllowAdmin = %v, want %v", got, tc.admin)
			}
		})
	}
}
