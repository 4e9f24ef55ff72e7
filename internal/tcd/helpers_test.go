package tcd

import (
	"testing"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// tileParams describes a single-tile test image.
type tileParams struct {
	x0, y0, x1, y1 int
	subs           []int // subsampling per component, both directions
	levels         int
	layers         int
	cb             int
	order          codestream.ProgressionOrder
	precincts      []codestream.PrecinctSize
	opts           uint8
	sop, eph       bool
}

func (p tileParams) withDefaults() tileParams {
	if len(p.subs) == 0 {
		p.subs = []int{1}
	}
	if p.layers == 0 {
		p.layers = 1
	}
	if p.cb == 0 {
		p.cb = 64
	}
	if p.precincts == nil {
		p.precincts = codestream.DefaultPrecincts(p.levels + 1)
	}
	return p
}

func (p tileParams) siz() *codestream.ImageSize {
	siz := &codestream.ImageSize{
		Xsiz: p.x1, Ysiz: p.y1,
		XOsiz: p.x0, YOsiz: p.y0,
		XTsiz: p.x1, YTsiz: p.y1,
	}
	for _, s := range p.subs {
		siz.Components = append(siz.Components, codestream.ComponentInfo{
			BitDepth: 7, SubsamplingX: uint8(s), SubsamplingY: uint8(s),
		})
	}
	return siz
}

func (p tileParams) spec() *codestream.DecoderSpec {
	sp := codestream.NewDecoderSpec(1, len(p.subs))
	sp.DecompLevels.SetDefault(p.levels)
	sp.EntropyOptions.SetDefault(p.opts)
	sp.CodeBlockSize.SetDefault(codestream.CodeBlockSize{Width: p.cb, Height: p.cb})
	sp.PrecinctSizes.SetDefault(p.precincts)
	sp.Layers.SetDefault(p.layers)
	sp.Progression.SetDefault(p.order)
	sp.ProgressionChanges.SetDefault(nil)
	sp.SOP.SetDefault(p.sop)
	sp.EPH.SetDefault(p.eph)
	sp.PackedHeaders.SetDefault(false)
	return sp
}

// newTestTile builds tile 0 of the image described by p.
func newTestTile(t *testing.T, p tileParams) *Tile {
	t.Helper()
	p = p.withDefaults()
	tile, err := NewTile(p.siz(), p.spec(), 0)
	if err != nil {
		t.Fatalf("NewTile() error: %v", err)
	}
	return tile
}

// precincts returns n identical precinct sizes of 2^e x 2^e.
func precincts(n int, e uint8) []codestream.PrecinctSize {
	ps := make([]codestream.PrecinctSize, n)
	for i := range ps {
		ps[i] = codestream.PrecinctSize{WidthExp: e, HeightExp: e}
	}
	return ps
}
