package entitystore

import (
	"testing"
	"time"

	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

func newUser(id string, loggedIn bool) *Instance {
	payload := value.NewObject()
	payload.Set("user_id", value.String(id))
	state := value.NewObject()
	state.Set("is_logged_in", value.Bool(loggedIn))
	return &Instance{
		Kind:            "User",
		PrimaryKeyValue: value.String(id),
		Payload:         payload,
		State:           state,
		CreatedAt:       time.Now(),
	}
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	s := New()
	if err := s.Insert(newUser("u1", false)); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(newUser("u1", false)); err == nil {
		t.Fatal("expected error on duplicate primary key")
	}
}

func TestSelectHonorsStateFilter(t *testing.T) {
	s := New()
	_ = s.Insert(newUser("u1", false))
	_ = s.Insert(newUser("u2", true))

	filter := specmodel.SelectionFilter{
		{Field: "state.is_logged_in", Operator: specmodel.OpEquals, Value: false},
	}
	got := s.Select("User", filter)
	if len(got) != 1 || got[0].PrimaryKeyValue != value.String("u1") {
		t.Fatalf("Select = %v, want only u1", got)
	}
}

func TestUpdateRollsBackOnMutatorError(t *testing.T) {
	s := New()
	_ = s.Insert(newUser("u1", false))

	err := s.Update("User", value.String("u1"), func(i *Instance) error {
		i.State.Set("is_logged_in", value.Bool(true))
		return errFake
	})
	if err == nil {
		t.Fatal("expected mutator error to propagate")
	}

	inst, _ := s.Get("User", value.String("u1"))
	v, _ := inst.State.Get("is_logged_in")
	if v != value.Bool(false) {
		t.Fatalf("state mutated despite rollback: %v", v)
	}
}

var errFake = fmtErrorf("fake mutator failure")

func fmtErrorf(s string) error { return &fakeErr{s} }

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

func TestCountWhere(t *testing.T) {
	s := New()
	_ = s.Insert(newUser("u1", true))
	_ = s.Insert(newUser("u2", true))
	_ = s.Insert(newUser("u3", false))

	if got := s.CountWhere("User", "is_logged_in", true); got != 2 {
		t.Fatalf("CountWhere = %d, want 2", got)
	}
}

func TestMatchesEmptyFilter(t *testing.T) {
	inst := newUser("u1", false)
	if !Matches(inst, nil) {
		t.Fatal("empty filter should match everything")
	}
}

func TestInOperatorRequiresArrayRHS(t *testing.T) {
	inst := newUser("u1", false)
	clause := specmodel.SelectionClause{Field: "user_id", Operator: specmodel.OpIn, Value: "not-an-array"}
	if Matches(inst, specmodel.SelectionFilter{clause}) {
		t.Fatal("in operator with non-array RHS must fail the clause, not panic/match")
	}
}
