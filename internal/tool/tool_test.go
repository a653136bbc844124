package tool

import (
	"reflect"
	"testing"

	"github.com/relaycli/relay/internal/model"
)

func def(name string) Definition {
	return Definition{Identity: model.ToolIdentity{
		Name:        name,
		VersionArgs: []string{"--version"},
		HelpArgs:    []string{"--help"},
	}}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(def("alpha")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, ok := r.Get("alpha")
	if !ok {
		t.Fatal("Get did not find alpha")
	}
	if d.Name() != "alpha" {
		t.Errorf("Name = %q, want alpha", d.Name())
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get found unregistered tool")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(def("alpha")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(def("alpha")); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestRegisterEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Definition{}); err == nil {
		t.Error("expected error on empty name")
	}
}

func TestNamesPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(def(n)); err != nil {
			t.Fatalf("Register %s: %v", n, err)
		}
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("Names = %v, want registration order", got)
	}
	if got := r.SortedNames(); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("SortedNames = %v, want alphabetical", got)
	}
}

func TestDefault(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(def("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(def("beta")); err != nil {
		t.Fatal(err)
	}
	if r.Default() != "alpha" {
		t.Errorf("Default = %q, want first registered", r.Default())
	}
	if err := r.SetDefault("beta"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if r.Default() != "beta" {
		t.Errorf("Default = %q, want beta", r.Default())
	}
	if err := r.SetDefault("missing"); err == nil {
		t.Error("expected error defaulting to unregistered tool")
	}
}

func TestBuiltin(t *testing.T) {
	r := Builtin()
	if r.Len() == 0 {
		t.Fatal("builtin registry is empty")
	}
	if r.Default() != "claude" {
		t.Errorf("Default = %q, want claude", r.Default())
	}
	d, ok := r.Get("claude")
	if !ok {
		t.Fatal("claude not registered")
	}
	if d.Metadata == nil || !d.Metadata.SupportsSubagents {
		t.Error("claude metadata should support subagents")
	}
	if g, _ := r.Get("goose"); g.Metadata != nil {
		t.Errorf("goose metadata = %+v, want nil", g.Metadata)
	}
	for _, name := range r.Names() {
		d, _ := r.Get(name)
		if len(d.Identity.VersionArgs) == 0 || len(d.Identity.HelpArgs) == 0 {
			t.Errorf("%s: missing probe args", name)
		}
	}
}
