package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// UncategorizedLabel groups commands that declare no category.
const UncategorizedLabel = "Other"

// Registry holds the installed commands by canonical name and alias.
//
// Reads go through an immutable snapshot behind an atomic pointer, so a
// dispatch in flight never observes a half-applied reload. Writers build a new
// snapshot under mu and swap it in.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[registrySnapshot]

	foldCase    bool
	middlewares []Middleware
	weights     map[string]int
}

type registrySnapshot struct {
	byName  map[string]*Command
	aliases map[string]string // alias key -> canonical key
	order   []string          // canonical keys in registration order
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCaseInsensitive folds names, aliases and looked-up tokens to lower case.
func WithCaseInsensitive() RegistryOption {
	return func(r *Registry) { r.foldCase = true }
}

// WithMiddleware wraps the direct handler of every command registered from now on.
func WithMiddleware(mws ...Middleware) RegistryOption {
	return func(r *Registry) { r.middlewares = append(r.middlewares, mws...) }
}

// WithCategoryWeights orders ListByCategory output; lower weights come first.
func WithCategoryWeights(w map[string]int) RegistryOption {
	return func(r *Registry) { r.weights = w }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(emptySnapshot())
	return r
}

func emptySnapshot() *registrySnapshot {
	return &registrySnapshot{
		byName:  make(map[string]*Command),
		aliases: make(map[string]string),
	}
}

func (s *registrySnapshot) copy() *registrySnapshot {
	out := &registrySnapshot{
		byName:  make(map[string]*Command, len(s.byName)),
		aliases: make(map[string]string, len(s.aliases)),
		order:   append([]string(nil), s.order...),
	}
	for k, v := range s.byName {
		out.byName[k] = v
	}
	for k, v := range s.aliases {
		out.aliases[k] = v
	}
	return out
}

func (r *Registry) key(s string) string {
	if r.foldCase {
		return strings.ToLower(s)
	}
	return s
}

// Register installs cmd. Registering a command whose name is already installed
// replaces the old entry. A name or alias claimed by a different command fails
// with *DuplicateAliasError and leaves the registry untouched.
func (r *Registry) Register(cmd *Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.snap.Load().copy()
	if err := r.add(next, cmd); err != nil {
		return err
	}
	r.snap.Store(next)
	return nil
}

// RegisterAll registers every command. A failing command does not stop the
// others; the failures are returned as RegistrationErrors.
func (r *Registry) RegisterAll(cmds ...*Command) error {
	var errs RegistrationErrors
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Replace swaps the whole command set in one step (hot reload). Commands that
// fail validation are left out and reported.
func (r *Registry) Replace(cmds []*Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := emptySnapshot()
	var errs RegistrationErrors
	for _, c := range cmds {
		if err := r.add(next, c); err != nil {
			errs = append(errs, err)
		}
	}
	r.snap.Store(next)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Unregister removes a command and its aliases.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	k := r.key(name)
	if _, ok := cur.byName[k]; !ok {
		return false
	}
	next := cur.copy()
	next.remove(k)
	r.snap.Store(next)
	return true
}

func (s *registrySnapshot) remove(k string) {
	delete(s.byName, k)
	for a, owner := range s.aliases {
		if owner == k {
			delete(s.aliases, a)
		}
	}
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) add(s *registrySnapshot, in *Command) error {
	if in == nil || strings.TrimSpace(in.Name) == "" || strings.ContainsAny(in.Name, " \t\r\n") {
		return fmt.Errorf("%w: missing or malformed name", ErrInvalidCommand)
	}
	cmd := in.clone()
	nameKey := r.key(cmd.Name)

	if owner, ok := s.aliases[nameKey]; ok && owner != nameKey {
		return &DuplicateAliasError{Alias: cmd.Name, Command: cmd.Name, Existing: s.byName[owner].Name}
	}

	aliasKeys := make([]string, 0, len(cmd.Aliases))
	for _, a := range cmd.Aliases {
		ak := r.key(strings.TrimSpace(a))
		if ak == "" || ak == nameKey {
			continue
		}
		if other, ok := s.byName[ak]; ok {
			return &DuplicateAliasError{Alias: a, Command: cmd.Name, Existing: other.Name}
		}
		if owner, ok := s.aliases[ak]; ok && owner != nameKey {
			return &DuplicateAliasError{Alias: a, Command: cmd.Name, Existing: s.byName[owner].Name}
		}
		aliasKeys = append(aliasKeys, ak)
	}

	if cmd.Run != nil {
		cmd.Run = Wrap(cmd.Run, r.middlewares...)
	}

	_, replacing := s.byName[nameKey]
	if replacing {
		for a, owner := range s.aliases {
			if owner == nameKey {
				delete(s.aliases, a)
			}
		}
	} else {
		s.order = append(s.order, nameKey)
	}
	s.byName[nameKey] = cmd
	for _, ak := range aliasKeys {
		s.aliases[ak] = nameKey
	}
	return nil
}

// Resolve returns the command whose canonical name equals token, else the
// command one of whose aliases equals token.
func (r *Registry) Resolve(token string) (*Command, bool) {
	s := r.snap.Load()
	k := r.key(token)
	if c, ok := s.byName[k]; ok {
		return c, true
	}
	if owner, ok := s.aliases[k]; ok {
		c, ok := s.byName[owner]
		return c, ok
	}
	return nil, false
}

// Commands returns the installed commands in registration order.
func (r *Registry) Commands() []*Command {
	s := r.snap.Load()
	out := make([]*Command, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byName[k])
	}
	return out
}

// Len returns the number of installed commands.
func (r *Registry) Len() int {
	return len(r.snap.Load().byName)
}

// CategoryGroup is one section of the command listing.
type CategoryGroup struct {
	Name     string
	Commands []*Command
}

// ListByCategory groups commands by category for help output.
func (r *Registry) ListByCategory() []CategoryGroup {
	groups := make(map[string][]*Command)
	for _, c := range r.Commands() {
		cat := c.Category
		if cat == "" {
			cat = UncategorizedLabel
		}
		groups[cat] = append(groups[cat], c)
	}

	out := make([]CategoryGroup, 0, len(groups))
	for name, cmds := range groups {
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
		out = append(out, CategoryGroup{Name: name, Commands: cmds})
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := r.weight(out[i].Name), r.weight(out[j].Name)
		if wi != wj {
			return wi < wj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) weight(cat string) int {
	if w, ok := r.weights[cat]; ok {
		return w
	}
	if cat == UncategorizedLabel {
		return 1 << 30
	}
	return 1 << 20
}
