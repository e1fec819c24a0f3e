package stage

import (
	"errors"
	"testing"
)

func TestDefault_FreshFacts(t *testing.T) {
	r := Default()
	statuses, err := r.Statuses(Facts{TotalDocuments: 3})
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}

	want := map[ID]Status{
		Commit:  StatusCurrent,
		Signing: StatusLocked,
		KYC:     StatusLocked,
		Wire:    StatusLocked,
	}
	for _, s := range statuses {
		if s.Status != want[s.ID] {
			t.Errorf("%s: expected %s got %s", s.ID, want[s.ID], s.Status)
		}
	}
}

func TestDefault_Order(t *testing.T) {
	defs := Default().Stages()
	order := []ID{Commit, Signing, KYC, Wire}
	if len(defs) != len(order) {
		t.Fatalf("expected %d stages, got %d", len(order), len(defs))
	}
	for i, id := range order {
		if defs[i].ID != id {
			t.Fatalf("position %d: expected %s got %s", i, id, defs[i].ID)
		}
		if defs[i].Label == "" || defs[i].Description == "" {
			t.Fatalf("%s: missing label or description", id)
		}
	}
}

func TestStatus_Progression(t *testing.T) {
	r := Default()
	cases := []struct {
		name  string
		facts Facts
		id    ID
		want  Status
	}{
		{"signing current after commit", Facts{Committed: true, TotalDocuments: 3}, Signing, StatusCurrent},
		{"signing current while partial", Facts{Committed: true, SignedDocuments: 2, TotalDocuments: 3}, Signing, StatusCurrent},
		{"kyc locked while partial", Facts{Committed: true, SignedDocuments: 2, TotalDocuments: 3}, KYC, StatusLocked},
		{"signing completed", Facts{Committed: true, SignedDocuments: 3, TotalDocuments: 3}, Signing, StatusCompleted},
		{"kyc current after signing", Facts{Committed: true, SignedDocuments: 3, TotalDocuments: 3}, KYC, StatusCurrent},
		{"wire current after kyc", Facts{Committed: true, SignedDocuments: 3, TotalDocuments: 3, IdentityVerified: true}, Wire, StatusCurrent},
		{"wire completed", Facts{Committed: true, SignedDocuments: 3, TotalDocuments: 3, IdentityVerified: true, Transferred: true}, Wire, StatusCompleted},
		{"empty catalog never completes signing", Facts{Committed: true}, Signing, StatusCurrent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Status(tc.id, tc.facts)
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s got %s", tc.want, got)
			}
		})
	}
}

func TestStatus_Unknown(t *testing.T) {
	if _, err := Default().Status("escrow", Facts{}); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestNewRegistry_RejectsBadPredicates(t *testing.T) {
	cases := []struct {
		name string
		defs []Definition
	}{
		{"empty", nil},
		{"non-bool", []Definition{{ID: Commit, Guard: "signed_documents + 1", Done: "committed"}}},
		{"syntax", []Definition{{ID: Commit, Guard: "committed &&", Done: "committed"}}},
		{"unknown variable", []Definition{{ID: Commit, Guard: "true", Done: "approved"}}},
		{"duplicate", []Definition{{ID: Commit, Guard: "true", Done: "committed"}, {ID: Commit, Guard: "true", Done: "committed"}}},
		{"missing id", []Definition{{Guard: "true", Done: "committed"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.defs); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID("kyc"); err != nil || id != KYC {
		t.Fatalf("expected kyc, got %q (%v)", id, err)
	}
	if _, err := ParseID("KYC"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown for wrong case, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	r := Default()
	def, ok := r.Lookup(Wire)
	if !ok {
		t.Fatalf("expected wire to be defined")
	}
	if def.Guard != "identity_verified" || def.Done != "transferred" {
		t.Fatalf("unexpected wire predicates %q / %q", def.Guard, def.Done)
	}
	if _, ok := r.Lookup("escrow"); ok {
		t.Fatalf("expected unknown stage lookup to fail")
	}
}
