package auth

import (
	"errors"
	"testing"
)

func TestCanAccess(t *testing.T) {
	cases := []struct {
		name  string
		actor Actor
		owner string
		want  bool
	}{
		{"owner", Actor{UserID: "u1"}, "u1", true},
		{"stranger", Actor{UserID: "u2"}, "u1", false},
		{"admin on foreign record", Actor{UserID: "u2", Admin: true}, "u1", true},
		{"admin on ownerless record", Actor{Admin: true}, "", true},
		{"user on ownerless record", Actor{UserID: "u1"}, "", false},
		{"anonymous", Actor{}, "u1", false},
		{"anonymous on ownerless record", Actor{}, "", false},
	}
	for _, tc := range cases {
		if got := CanAccess(tc.actor, tc.owner); got != tc.want {
			t.Fatalf("%s: CanAccess=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	if err := Authorize(Actor{UserID: "u2"}, "u1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Authorize(Actor{UserID: "u1"}, "u1"); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
}

func TestAdminListIsCaseInsensitive(t *testing.T) {
	list := NewAdminList([]string{" Ops@Example.org ", "", "second@example.org"})
	if list.Len() != 2 {
		t.Fatalf("expected 2 admins, got %d", list.Len())
	}
	if !list.Contains("ops@example.ORG") {
		t.Fatal("expected case-insensitive match")
	}
	if list.Contains("") || list.Contains("someone@example.org") {
		t.Fatal("unexpected admin match")
	}
	actor := list.Actor("u9", "second@example.org")
	if !actor.Admin || actor.UserID != "u9" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}
