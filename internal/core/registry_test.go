package core

import (
	"errors"
	"testing"
)

func noop(*Context) error { return nil }

func TestRegistry_ResolveAliasMatchesCanonical(t *testing.T) {
	r := NewRegistry()
	cmds := []*Command{
		{Name: "ping", Aliases: []string{"p", "pong"}, Run: noop},
		{Name: "help", Aliases: []string{"h", "?"}, Run: noop},
	}
	if err := r.RegisterAll(cmds...); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}

	for _, c := range cmds {
		byName, ok := r.Resolve(c.Name)
		if !ok {
			t.Fatalf("Resolve(%q) not found", c.Name)
		}
		for _, a := range c.Aliases {
			byAlias, ok := r.Resolve(a)
			if !ok {
				t.Fatalf("Resolve(%q) not found", a)
			}
			if byAlias != byName {
				t.Errorf("Resolve(%q) = %q, want %q", a, byAlias.Name, byName.Name)
			}
		}
	}
}

func TestRegistry_DuplicateAliasRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Command{Name: "ping", Aliases: []string{"p"}, Run: noop}); err != nil {
		t.Fatalf("Register(ping) error = %v", err)
	}

	tests := []struct {
		name string
		cmd  *Command
	}{
		{"alias equals alias", &Command{Name: "pong", Aliases: []string{"p"}, Run: noop}},
		{"alias equals name", &Command{Name: "pong", Aliases: []string{"ping"}, Run: noop}},
		{"name equals alias", &Command{Name: "p", Run: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.cmd)
			if !errors.Is(err, ErrDuplicateAlias) {
				t.Fatalf("Register() error = %v, want ErrDuplicateAlias", err)
			}
			var dup *DuplicateAliasError
			if !errors.As(err, &dup) || dup.Existing != "ping" {
				t.Errorf("DuplicateAliasError = %+v, want Existing ping", dup)
			}
		})
	}

	got, _ := r.Resolve("p")
	if got == nil || got.Name != "ping" {
		t.Errorf("Resolve(p) = %v, want ping", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RegisterAllContinuesAfterFailure(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterAll(
		&Command{Name: "a", Aliases: []string{"x"}, Run: noop},
		&Command{Name: "b", Aliases: []string{"x"}, Run: noop},
		&Command{Name: "", Run: noop},
		&Command{Name: "c", Run: noop},
	)
	var errs RegistrationErrors
	if !errors.As(err, &errs) || len(errs) != 2 {
		t.Fatalf("RegisterAll() error = %v, want 2 registration errors", err)
	}
	if !errors.Is(err, ErrDuplicateAlias) || !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("errors.Is does not see both failures in %v", err)
	}
	for _, name := range []string{"a", "c"} {
		if _, ok := r.Resolve(name); !ok {
			t.Errorf("Resolve(%q) missing", name)
		}
	}
	if _, ok := r.Resolve("b"); ok {
		t.Error("b should not be registered")
	}
}

func TestRegistry_ReregisterReplacesEntry(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Command{Name: "ping", Aliases: []string{"p"}, Description: "old", Run: noop})
	if err := r.Register(&Command{Name: "ping", Aliases: []string{"pp"}, Description: "new", Run: noop}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, ok := r.Resolve("p"); ok {
		t.Error("old alias still resolves after replacement")
	}
	got, ok := r.Resolve("pp")
	if !ok || got.Description != "new" {
		t.Errorf("Resolve(pp) = %v, want new entry", got)
	}
	if len(r.Commands()) != 1 {
		t.Errorf("Commands() = %d entries, want 1", len(r.Commands()))
	}
}

func TestRegistry_ReplaceSwapsSet(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterAll(&Command{Name: "old", Run: noop})
	before := r.Commands()

	if err := r.Replace([]*Command{{Name: "new1", Run: noop}, {Name: "new2", Run: noop}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if _, ok := r.Resolve("old"); ok {
		t.Error("old command survived Replace")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if len(before) != 1 || before[0].Name != "old" {
		t.Errorf("earlier snapshot changed: %v", before)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Command{Name: "ping", Aliases: []string{"p"}, Run: noop})
	if !r.Unregister("ping") {
		t.Fatal("Unregister() = false")
	}
	if _, ok := r.Resolve("p"); ok {
		t.Error("alias dangling after Unregister")
	}
	if r.Unregister("ping") {
		t.Error("second Unregister() = true")
	}
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := NewRegistry(WithCaseInsensitive())
	_ = r.Register(&Command{Name: "Ping", Aliases: []string{"P"}, Run: noop})
	for _, tok := range []string{"ping", "PING", "p"} {
		if _, ok := r.Resolve(tok); !ok {
			t.Errorf("Resolve(%q) not found", tok)
		}
	}

	strict := NewRegistry()
	_ = strict.Register(&Command{Name: "ping", Run: noop})
	if _, ok := strict.Resolve("PING"); ok {
		t.Error("case-sensitive registry resolved PING")
	}
}

func TestRegistry_ListByCategory(t *testing.T) {
	r := NewRegistry(WithCategoryWeights(map[string]int{"General": 0, "Admin": 10}))
	_ = r.RegisterAll(
		&Command{Name: "zeta", Category: "General", Run: noop},
		&Command{Name: "ban", Category: "Admin", Run: noop},
		&Command{Name: "alpha", Category: "General", Run: noop},
		&Command{Name: "misc", Run: noop},
		&Command{Name: "fun", Category: "Fun", Run: noop},
	)

	groups := r.ListByCategory()
	var order []string
	for _, g := range groups {
		order = append(order, g.Name)
	}
	want := []string{"General", "Admin", "Fun", UncategorizedLabel}
	if len(order) != len(want) {
		t.Fatalf("categories = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("categories = %v, want %v", order, want)
		}
	}
	if groups[0].Commands[0].Name != "alpha" || groups[0].Commands[1].Name != "zeta" {
		t.Errorf("General not sorted by name: %s, %s", groups[0].Commands[0].Name, groups[0].Commands[1].Name)
	}
}

func TestRegistry_MiddlewareWrapsRun(t *testing.T) {
	var trace []string
	mw := func(tag string) Middleware {
		return func(next RunFunc) RunFunc {
			return func(c *Context) error {
				trace = append(trace, tag)
				return next(c)
			}
		}
	}
	r := NewRegistry(WithMiddleware(mw("outer"), mw("inner")))
	_ = r.Register(&Command{Name: "x", Run: func(*Context) error {
		trace = append(trace, "run")
		return nil
	}})

	cmd, _ := r.Resolve("x")
	if err := cmd.Run(&Context{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(trace) != 3 || trace[0] != "outer" || trace[1] != "inner" || trace[2] != "run" {
		t.Errorf("trace = %v", trace)
	}
}
