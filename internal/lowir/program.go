package lowir

import "slices"

// Signature is a function type.
type Signature struct {
	Params  []Type `json:"params,omitempty"`
	Results []Type `json:"results,omitempty"`
}

// Equal reports whether two signatures have identical parameter and result
// types.
func (s Signature) Equal(o Signature) bool {
	return slices.Equal(s.Params, o.Params) && slices.Equal(s.Results, o.Results)
}

// Param is a named function parameter.
type Param struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Local is a function-local variable, zero-initialized on entry.
type Local struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Func is a function with a low-level body.
type Func struct {
	Name    string  `json:"name"`
	Params  []Param `json:"params,omitempty"`
	Results []Type  `json:"results,omitempty"`
	Locals  []Local `json:"locals,omitempty"`
	Body    []Instr `json:"body"`
}

// Sig returns the signature of f.
func (f *Func) Sig() Signature {
	params := make([]Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return Signature{Params: params, Results: slices.Clone(f.Results)}
}

// Param returns the parameter named name.
func (f *Func) Param(name string) (Param, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Local returns the local named name.
func (f *Func) Local(name string) (Local, bool) {
	for _, l := range f.Locals {
		if l.Name == name {
			return l, true
		}
	}
	return Local{}, false
}

// Global is a module-level variable.
type Global struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Mutable bool   `json:"mutable,omitempty"`
	Init    Value  `json:"init,omitzero"`
}

// Import is an opaque host function. Calls to imports are observable and
// never pure.
type Import struct {
	Name string    `json:"name"`
	Sig  Signature `json:"sig"`
}

// Program is a whole translation unit.
type Program struct {
	Globals []Global `json:"globals,omitempty"`
	Imports []Import `json:"imports,omitempty"`
	Funcs   []*Func  `json:"funcs"`
	// Table holds function names addressed by indirect calls.
	Table []string `json:"table,omitempty"`
	// MemoryPages is the linear memory size in 64 KiB pages.
	MemoryPages uint32 `json:"memory_pages,omitempty"`
}

// PageSize is the size of one linear memory page.
const PageSize = 64 * 1024

// Func returns the function named name, or nil.
func (p *Program) Func(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
