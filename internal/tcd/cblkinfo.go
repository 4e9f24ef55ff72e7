package tcd

import (
	"sort"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// Coding pass arithmetic for the selective arithmetic coding bypass
// (Annex D.6): the first ten passes are arithmetic coded, then every
// bit-plane has two raw passes followed by one arithmetic coded pass.
const (
	passesPerPlane    = 3
	emptyPassesInMSBP = 2
	firstBypassPass   = 10
)

// PassTerminated reports whether coding pass idx (0 = first cleanup pass)
// ends a terminated codeword segment under code-block style opts.
func PassTerminated(opts uint8, idx int) bool {
	switch {
	case opts&codestream.CodeBlockTermination != 0:
		return true
	case opts&codestream.CodeBlockBypass != 0:
		return idx >= firstBypassPass-1 && (idx+emptyPassesInMSBP)%passesPerPlane != 0
	}
	return false
}

// SplitPasses groups n coding passes, starting at pass index first, into
// the pieces whose lengths a packet header signals separately: every
// terminated pass closes a piece and the last pass always does.
func SplitPasses(opts uint8, first, n int) []int {
	var counts []int
	k := 0
	for i := first; i < first+n; i++ {
		k++
		if i < first+n-1 && PassTerminated(opts, i) {
			counts = append(counts, k)
			k = 0
		}
	}
	if k > 0 {
		counts = append(counts, k)
	}
	return counts
}

// CBlkInfo locates the contributions of one code-block in the codestream.
// Arrays are indexed by layer; a zero length means the layer holds no
// data for the code-block.
type CBlkInfo struct {
	// Position relative to the subband's upper-left corner, and size
	ULX, ULY int
	W, H     int

	// Number of skipped most significant bit-planes
	MSBSkipped int

	Len    []int   // bytes contributed per layer
	Off    []int64 // codestream offset of each contribution
	Passes []int   // new coding passes per layer
	SegLen [][]int // piece lengths per layer, nil when the layer has one piece
	PktIdx []int   // packet holding each contribution, -1 if none

	// Coding passes over all layers read so far
	TotalPasses int
}

func newCBlkInfo(layers int) *CBlkInfo {
	cb := &CBlkInfo{
		Len:    make([]int, layers),
		Off:    make([]int64, layers),
		Passes: make([]int, layers),
		SegLen: make([][]int, layers),
		PktIdx: make([]int, layers),
	}
	for l := range cb.PktIdx {
		cb.PktIdx[l] = -1
	}
	return cb
}

// DropLayer removes the contribution of layer l.
func (cb *CBlkInfo) DropLayer(l int) {
	cb.TotalPasses -= cb.Passes[l]
	cb.Len[l] = 0
	cb.Off[l] = 0
	cb.Passes[l] = 0
	cb.SegLen[l] = nil
	cb.PktIdx[l] = -1
}

// Segments computes, for layers [first, first+n), the index of the first
// coding pass, the number of passes and the lengths of the terminated
// codeword segments the layers' data splits into. A trailing unterminated
// segment is reported as well.
func (cb *CBlkInfo) Segments(opts uint8, first, n int) (firstPass, passes int, segs []int) {
	pass := 0
	for l := 0; l < first; l++ {
		pass += cb.Passes[l]
	}
	firstPass = pass

	cur, open := 0, false
	for l := first; l < first+n; l++ {
		if cb.Passes[l] == 0 {
			continue
		}
		pieces := cb.SegLen[l]
		if pieces == nil {
			pieces = []int{cb.Len[l]}
		}
		for i, k := range SplitPasses(opts, pass, cb.Passes[l]) {
			pass += k
			if i < len(pieces) {
				cur += pieces[i]
			}
			open = true
			if PassTerminated(opts, pass-1) {
				segs = append(segs, cur)
				cur, open = 0, false
			}
		}
	}
	if open {
		segs = append(segs, cur)
	}
	return firstPass, pass - firstPass, segs
}

// BlockKey identifies a code-block of a tile: component, resolution,
// subband, row and column on the subband's code-block grid.
type BlockKey struct {
	C, R, S, M, N int
}

// CodeBlocks holds the CBlkInfo records of one tile. Code-blocks that no
// packet included have no record.
type CodeBlocks struct {
	m      map[BlockKey]*CBlkInfo
	sorted []BlockKey
}

// NewCodeBlocks returns an empty set.
func NewCodeBlocks() *CodeBlocks {
	return &CodeBlocks{m: make(map[BlockKey]*CBlkInfo)}
}

// Get returns the record of a code-block, or nil.
func (cbs *CodeBlocks) Get(k BlockKey) *CBlkInfo { return cbs.m[k] }

// Len returns the number of recorded code-blocks.
func (cbs *CodeBlocks) Len() int { return len(cbs.m) }

func (cbs *CodeBlocks) set(k BlockKey, cb *CBlkInfo) {
	cbs.m[k] = cb
	cbs.sorted = nil
}

func (cbs *CodeBlocks) remove(k BlockKey) {
	delete(cbs.m, k)
	cbs.sorted = nil
}

// Each calls fn for every record ordered by resolution, subband, row,
// column and, innermost, component.
func (cbs *CodeBlocks) Each(fn func(k BlockKey, cb *CBlkInfo)) {
	if cbs.sorted == nil {
		cbs.sorted = make([]BlockKey, 0, len(cbs.m))
		for k := range cbs.m {
			cbs.sorted = append(cbs.sorted, k)
		}
		sort.Slice(cbs.sorted, func(i, j int) bool {
			a, b := cbs.sorted[i], cbs.sorted[j]
			switch {
			case a.R != b.R:
				return a.R < b.R
			case a.S != b.S:
				return a.S < b.S
			case a.M != b.M:
				return a.M < b.M
			case a.N != b.N:
				return a.N < b.N
			}
			return a.C < b.C
		})
	}
	for _, k := range cbs.sorted {
		fn(k, cbs.m[k])
	}
}

// DecLyrdCBlk is the compressed data of one code-block over a range of
// layers, as handed to an entropy decoder. Callers may pass the same value
// to successive requests; every field is overwritten.
type DecLyrdCBlk struct {
	// Code-block indices on the subband grid
	M, N int

	// Position relative to the subband's upper-left corner, and size
	ULX, ULY int
	W, H     int

	// Skipped most significant bit-planes
	SkipMSBP int

	// Concatenated data of the returned layers
	Data []byte

	// Lengths of the terminated codeword segments in Data
	SegLengths []int

	// Number of layers, index of the first coding pass and number of
	// coding passes in Data
	NumLayers int
	FirstPass int
	NumPasses int

	// Progressive is set when layers after the returned range still hold
	// data for the code-block.
	Progressive bool
}
