package tcd

import "math"

// BitReader is the source of packet header bits.
type BitReader interface {
	ReadBit() (int, error)
}

// TagTree decodes a tag tree (Annex B.10.2) incrementally. Each node keeps
// the lower bound established so far (state) and its value once a 1 bit
// has revealed it.
type TagTree struct {
	width  int
	height int
	levels int
	state  [][]int
	value  [][]int
}

// NewTagTree creates a tag tree over a width x height array of leaves.
func NewTagTree(width, height int) *TagTree {
	t := &TagTree{
		width:  width,
		height: height,
		levels: 1,
	}
	for w, h := width, height; w > 1 || h > 1; t.levels++ {
		w = (w + 1) >> 1
		h = (h + 1) >> 1
	}

	t.state = make([][]int, t.levels)
	t.value = make([][]int, t.levels)
	for k := 0; k < t.levels; k++ {
		n := t.levelWidth(k) * ((height + 1<<k - 1) >> k)
		t.state[k] = make([]int, n)
		t.value[k] = make([]int, n)
	}
	t.Reset()
	return t
}

// Reset forgets every decoded bit.
func (t *TagTree) Reset() {
	for k := range t.state {
		for i := range t.state[k] {
			t.state[k][i] = 0
			t.value[k][i] = math.MaxInt
		}
	}
}

func (t *TagTree) levelWidth(k int) int {
	return (t.width + 1<<k - 1) >> k
}

// Width returns the number of leaf columns.
func (t *TagTree) Width() int { return t.width }

// Height returns the number of leaf rows.
func (t *TagTree) Height() int { return t.height }

// Update reads the bits needed to decide whether the value of leaf (m, n)
// (row m, column n) is below threshold th. It returns the leaf value if
// that is known and below th, and a value >= th otherwise.
func (t *TagTree) Update(m, n, th int, r BitReader) (int, error) {
	k := t.levels - 1
	tmin := t.state[k][0]
	for {
		idx := (m>>k)*t.levelWidth(k) + n>>k
		ts, tv := t.state[k][idx], t.value[k][idx]
		if ts < tmin {
			ts = tmin
		}
		for th > ts {
			if tv < ts {
				ts = th
				break
			}
			bit, err := r.ReadBit()
			if err != nil {
				return 0, err
			}
			if bit == 1 {
				tv = ts
			}
			ts++
		}
		t.state[k][idx], t.value[k][idx] = ts, tv
		if k == 0 {
			return tv, nil
		}
		tmin = min(ts, tv)
		k--
	}
}

// Value returns the decoded value of leaf (m, n), or math.MaxInt if it is
// not known yet.
func (t *TagTree) Value(m, n int) int {
	return t.value[0][m*t.width+n]
}
