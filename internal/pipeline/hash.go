package pipeline

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"unstack/internal/lowir"
)

type namedSig struct {
	Name   string
	Sig    lowir.Signature
	Import bool
}

// programContext is everything outside a function body that can change its
// translation.
type programContext struct {
	Schema   uint16
	Strict   bool
	Optimize bool
	Globals  []lowir.Global
	Sigs     []namedSig
	Pure     []string
	Table    []string
}

// keyer derives cache keys. The program context is hashed once; each
// function key mixes that digest with the function itself.
type keyer struct {
	base uint64
}

func newKeyer(p *lowir.Program, pure []string, strict, optimize bool) (keyer, error) {
	pc := programContext{
		Schema:   cacheSchemaVersion,
		Strict:   strict,
		Optimize: optimize,
		Globals:  p.Globals,
		Pure:     pure,
		Table:    p.Table,
	}
	for _, im := range p.Imports {
		pc.Sigs = append(pc.Sigs, namedSig{Name: im.Name, Sig: im.Sig, Import: true})
	}
	for _, f := range p.Funcs {
		pc.Sigs = append(pc.Sigs, namedSig{Name: f.Name, Sig: f.Sig()})
	}
	h := xxhash.New()
	enc := msgpack.NewEncoder(h)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&pc); err != nil {
		return keyer{}, err
	}
	return keyer{base: h.Sum64()}, nil
}

func (k keyer) key(fn *lowir.Func) (Digest, error) {
	h := xxhash.New()
	var base [8]byte
	binary.LittleEndian.PutUint64(base[:], k.base)
	if _, err := h.Write(base[:]); err != nil {
		return 0, err
	}
	enc := msgpack.NewEncoder(h)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(fn); err != nil {
		return 0, err
	}
	return Digest(h.Sum64()), nil
}
