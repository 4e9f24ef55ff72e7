package tcd

import (
	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// Packet identifies one packet of a tile.
type Packet struct {
	Layer      int
	Resolution int
	Component  int
	Precinct   int
}

type axis int

const (
	axLayer axis = iota
	axRes
	axComp
	axPos
)

// loopOrder gives the nesting of each progression order, outermost first.
var loopOrder = map[codestream.ProgressionOrder][4]axis{
	codestream.LRCP: {axLayer, axRes, axComp, axPos},
	codestream.RLCP: {axRes, axLayer, axComp, axPos},
	codestream.RPCL: {axRes, axPos, axComp, axLayer},
	codestream.PCRL: {axPos, axComp, axRes, axLayer},
	codestream.CPRL: {axComp, axPos, axRes, axLayer},
}

type precKey struct{ c, r, p int }

// Walker visits the packets of a tile. It remembers the next layer of
// every precinct, so a packet already visited under one progression change
// is skipped by the following ones.
type Walker struct {
	t    *Tile
	next map[precKey]int
}

// NewWalker returns a Walker over t.
func NewWalker(t *Tile) *Walker {
	return &Walker{t: t, next: make(map[precKey]int)}
}

// Changes returns the progression changes of the tile: its POC entries,
// or a single change covering the whole tile in the COD order.
func (w *Walker) Changes() []codestream.ProgressionChange {
	if len(w.t.Changes) > 0 {
		return w.t.Changes
	}
	return []codestream.ProgressionChange{{
		Order:    w.t.Order,
		LayerEnd: w.t.Layers,
		ResEnd:   w.t.MaxLevels() + 1,
		CompEnd:  w.t.NumComps(),
	}}
}

// walk holds the loop variables of one Walk call.
type walk struct {
	w     *Walker
	ch    codestream.ProgressionChange
	order [4]axis
	visit func(Packet) (bool, error)

	l, r, c int
	x, y    int
	haveR   bool
	haveC   bool
	pos     bool // position comes from the (x, y) lattice
}

// Walk visits, in the order ch.Order, the packets of layers
// [0, ch.LayerEnd), resolutions [ch.ResStart, ch.ResEnd) and components
// [ch.CompStart, ch.CompEnd). It stops as soon as visit returns true or an
// error and passes that result on.
func (w *Walker) Walk(ch codestream.ProgressionChange, visit func(Packet) (bool, error)) (bool, error) {
	order, ok := loopOrder[ch.Order]
	if !ok {
		return false, codestream.Corruptf("unknown progression order %d", ch.Order)
	}
	ch.LayerEnd = min(ch.LayerEnd, w.t.Layers)
	ch.ResEnd = min(ch.ResEnd, w.t.MaxLevels()+1)
	ch.CompEnd = min(ch.CompEnd, w.t.NumComps())
	st := &walk{w: w, ch: ch, order: order, visit: visit}
	return st.loop(0)
}

func (st *walk) loop(depth int) (bool, error) {
	if depth == len(st.order) {
		return st.leaf()
	}
	t := st.w.t
	switch st.order[depth] {
	case axLayer:
		for st.l = 0; st.l < st.ch.LayerEnd; st.l++ {
			if done, err := st.loop(depth + 1); done || err != nil {
				return done, err
			}
		}
	case axRes:
		st.haveR = true
		defer func() { st.haveR = false }()
		for st.r = st.ch.ResStart; st.r < st.ch.ResEnd; st.r++ {
			if st.haveC && st.r > t.Components[st.c].Levels {
				continue
			}
			if done, err := st.loop(depth + 1); done || err != nil {
				return done, err
			}
		}
	case axComp:
		st.haveC = true
		defer func() { st.haveC = false }()
		for st.c = st.ch.CompStart; st.c < st.ch.CompEnd; st.c++ {
			if st.haveR && st.r > t.Components[st.c].Levels {
				continue
			}
			if done, err := st.loop(depth + 1); done || err != nil {
				return done, err
			}
		}
	case axPos:
		if st.haveR && st.haveC {
			return st.leaf()
		}
		dx, dy := st.step()
		if dx == 0 || dy == 0 {
			return false, nil
		}
		st.pos = true
		defer func() { st.pos = false }()
		for st.y = t.Y0; st.y < t.Y1; st.y += dy - st.y%dy {
			for st.x = t.X0; st.x < t.X1; st.x += dx - st.x%dx {
				if done, err := st.loop(depth + 1); done || err != nil {
					return done, err
				}
			}
		}
	}
	return false, nil
}

// step returns the lattice step for the position loop: the greatest
// common divisor of the precinct increments of every non-empty
// resolution the inner loops can reach.
func (st *walk) step() (dx, dy int) {
	t := st.w.t
	c0, c1 := st.ch.CompStart, st.ch.CompEnd
	if st.haveC {
		c0, c1 = st.c, st.c+1
	}
	for c := c0; c < c1; c++ {
		r0, r1 := st.ch.ResStart, min(st.ch.ResEnd, t.Components[c].Levels+1)
		if st.haveR {
			r0, r1 = st.r, min(st.r+1, r1)
		}
		for r := r0; r < r1; r++ {
			if t.Components[c].Resolutions[r].NumPrecincts() == 0 {
				continue
			}
			_, _, inc := t.PrecinctGrid(c, r)
			dx, dy = gcd(dx, inc.X), gcd(dy, inc.Y)
		}
	}
	return dx, dy
}

// leaf visits the packets selected by the current loop variables: one
// packet when the position comes from the lattice, every precinct of the
// resolution otherwise.
func (st *walk) leaf() (bool, error) {
	res := st.w.t.Components[st.c].Resolutions[st.r]
	if st.pos {
		p := st.w.t.precinctAt(st.c, st.r, st.x, st.y)
		if p < 0 {
			return false, nil
		}
		return st.packet(p)
	}
	for p := 0; p < res.NumPrecincts(); p++ {
		if done, err := st.packet(p); done || err != nil {
			return done, err
		}
	}
	return false, nil
}

func (st *walk) packet(p int) (bool, error) {
	k := precKey{st.c, st.r, p}
	if st.l < st.w.next[k] {
		return false, nil
	}
	st.w.next[k] = st.l + 1
	return st.visit(Packet{Layer: st.l, Resolution: st.r, Component: st.c, Precinct: p})
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
