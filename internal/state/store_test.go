package state

import (
	"reflect"
	"testing"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

func TestStore_OrderAndOverwrite(t *testing.T) {
	s := NewStore(nil)
	s.Set("a", 1)
	s.Update(sandbox.Bindings{{Name: "b", Value: 2}, {Name: "a", Value: 10}})
	s.Set("c", 3)

	if got := s.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected key order: %v", got)
	}
	if v, _ := s.Get("a"); v != 10 {
		t.Errorf("expected a=10, got %v", v)
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(sandbox.Bindings{{Name: "x", Value: 1}, {Name: "y", Value: 2}, {Name: "z", Value: 3}})
	snapshot := s.Bindings()

	if !s.Delete("y") {
		t.Fatal("expected y to be deleted")
	}
	if s.Delete("missing") {
		t.Error("deleting a missing name should report false")
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"x", "z"}) {
		t.Errorf("unexpected keys: %v", got)
	}
	if len(snapshot) != 3 || snapshot[1].Name != "y" {
		t.Errorf("snapshot changed after delete: %v", snapshot)
	}
}

func TestStore_ClearAndReset(t *testing.T) {
	s := NewStore(sandbox.Bindings{{Name: "x", Value: 1}})
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d entries", s.Len())
	}
	if b := s.Bindings(); b == nil || len(b) != 0 {
		t.Errorf("expected empty non-nil bindings, got %#v", b)
	}

	s.Reset(sandbox.Bindings{{Name: "p", Value: "q"}})
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"p"}) {
		t.Errorf("unexpected keys after reset: %v", got)
	}
}
