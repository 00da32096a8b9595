package lowir

// FuncInfo is the signature-table entry for a callable name.
type FuncInfo struct {
	Sig    Signature
	Import bool
}

// Tables is the read-only whole-program context shared by the per-function
// passes. It is built once before translation starts and never mutated.
type Tables struct {
	Globals map[string]Global
	Funcs   map[string]FuncInfo
	Pure    map[string]bool
	Table   []string
}

// NewTables indexes p. pure may be nil, in which case no function is pure.
func NewTables(p *Program, pure map[string]bool) *Tables {
	t := &Tables{
		Globals: make(map[string]Global, len(p.Globals)),
		Funcs:   make(map[string]FuncInfo, len(p.Funcs)+len(p.Imports)),
		Pure:    make(map[string]bool, len(pure)),
		Table:   p.Table,
	}
	for _, g := range p.Globals {
		t.Globals[g.Name] = g
	}
	for _, im := range p.Imports {
		t.Funcs[im.Name] = FuncInfo{Sig: im.Sig, Import: true}
	}
	for _, f := range p.Funcs {
		t.Funcs[f.Name] = FuncInfo{Sig: f.Sig()}
	}
	for name, ok := range pure {
		if ok {
			t.Pure[name] = true
		}
	}
	return t
}

// IsPure reports whether name is in the pure set.
func (t *Tables) IsPure(name string) bool {
	return t != nil && t.Pure[name]
}

// IsGlobal reports whether name refers to a global.
func (t *Tables) IsGlobal(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.Globals[name]
	return ok
}
