package eterm

import "sort"

// VarBind maps variable names to the terms captured for them during a
// match. The zero value is usable. A nil *VarBind is accepted by Match and
// means "match without capturing".
type VarBind struct {
	vars map[string]Term
}

// NewVarBind returns an empty binding.
func NewVarBind() *VarBind { return &VarBind{} }

// Bind records t under name, replacing any previous binding.
func (b *VarBind) Bind(name string, t Term) {
	if b.vars == nil {
		b.vars = make(map[string]Term)
	}
	b.vars[name] = t
}

// Get returns the term bound to name.
func (b *VarBind) Get(name string) (Term, bool) {
	if b == nil {
		return Term{}, false
	}
	t, ok := b.vars[name]
	return t, ok
}

// Len returns the number of bound variables.
func (b *VarBind) Len() int {
	if b == nil {
		return 0
	}
	return len(b.vars)
}

// Names returns the bound variable names in sorted order.
func (b *VarBind) Names() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.vars))
	for n := range b.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge copies bindings from other into b. Names already bound in b keep
// their value: the existing binding wins and no conflict is reported.
func (b *VarBind) Merge(other *VarBind) {
	if other == nil {
		return
	}
	for name, t := range other.vars {
		if _, ok := b.Get(name); !ok {
			b.Bind(name, t)
		}
	}
}
