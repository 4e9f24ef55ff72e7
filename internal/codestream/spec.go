package codestream

import "fmt"

// slot is an optional value.
type slot[T any] struct {
	v  T
	ok bool
}

type tileComp struct{ t, c int }

// Spec holds one coding parameter at four precedence levels: a global
// default, a per-component default, a per-tile value and a
// per-tile-component value. Resolve checks the most specific level first.
// Overrides are stored sparsely, so a table costs nothing per tile until a
// tile-part header sets a value.
type Spec[T any] struct {
	name     string
	nTiles   int
	def      slot[T]
	comp     []slot[T]
	tile     map[int]T
	tileComp map[tileComp]T
}

// NewSpec returns an empty table for nTiles tiles of nComps components.
func NewSpec[T any](name string, nTiles, nComps int) *Spec[T] {
	return &Spec[T]{
		name:     name,
		nTiles:   nTiles,
		comp:     make([]slot[T], nComps),
		tile:     make(map[int]T),
		tileComp: make(map[tileComp]T),
	}
}

// Name returns the parameter name used in diagnostics.
func (s *Spec[T]) Name() string { return s.name }

// SetDefault sets the global default.
func (s *Spec[T]) SetDefault(v T) { s.def = slot[T]{v, true} }

// SetComp sets the default for component c in every tile.
func (s *Spec[T]) SetComp(c int, v T) { s.comp[c] = slot[T]{v, true} }

// SetTile sets the value for every component of tile t. Values set
// with SetTileComp for t still take precedence.
func (s *Spec[T]) SetTile(t int, v T) { s.tile[t] = v }

// SetTileComp sets the value for component c of tile t.
func (s *Spec[T]) SetTileComp(t, c int, v T) { s.tileComp[tileComp{t, c}] = v }

// Default returns the global default and whether it is set.
func (s *Spec[T]) Default() (T, bool) { return s.def.v, s.def.ok }

// HasDefault reports whether the global default is set.
func (s *Spec[T]) HasDefault() bool { return s.def.ok }

// compValue returns the component default of c, or the global default.
func (s *Spec[T]) compValue(c int) (T, bool) {
	if sl := s.comp[c]; sl.ok {
		return sl.v, true
	}
	return s.def.v, s.def.ok
}

// Resolve returns the value in force for component c of tile t.
// It panics if no default has been set.
func (s *Spec[T]) Resolve(t, c int) T {
	if v, ok := s.tileComp[tileComp{t, c}]; ok {
		return v
	}
	if v, ok := s.tile[t]; ok {
		return v
	}
	v, ok := s.compValue(c)
	if !ok {
		panic(fmt.Sprintf("codestream: %s queried before its default was set", s.name))
	}
	return v
}

// Tile returns the value in force for tile t. It is meant for tile-level
// parameters, which are stored identically for every component.
func (s *Spec[T]) Tile(t int) T {
	return s.Resolve(t, 0)
}

// inForce calls fn at least once for every value some tile-component
// resolves to, and for no other value.
func (s *Spec[T]) inForce(fn func(v T)) {
	perTile := make(map[int]int)
	plain := make([]int, len(s.comp)) // overrides of c in tiles without a tile value
	for k, v := range s.tileComp {
		fn(v)
		perTile[k.t]++
		if _, ok := s.tile[k.t]; !ok {
			plain[k.c]++
		}
	}
	for t, v := range s.tile {
		if perTile[t] < len(s.comp) {
			fn(v)
		}
	}
	free := s.nTiles - len(s.tile)
	for c := range s.comp {
		if free > plain[c] {
			if v, ok := s.compValue(c); ok {
				fn(v)
			}
		}
	}
}

// MinInt returns the smallest value in force in an integer table.
func MinInt(s *Spec[int]) int {
	first := true
	min := 0
	s.inForce(func(v int) {
		if first || v < min {
			min = v
			first = false
		}
	})
	return min
}

// MaxInt returns the largest value in force in an integer table.
func MaxInt(s *Spec[int]) int {
	max := 0
	s.inForce(func(v int) {
		if v > max {
			max = v
		}
	})
	return max
}
