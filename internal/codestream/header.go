package codestream

import (
	"fmt"
)

// Limits from ISO/IEC 15444-1 Annex A.
const (
	MaxComponents      = 16384
	MaxDecompLevels    = 32
	MaxLayers          = 65535
	MaxTileIndex       = 65534
	MaxTilePartIndex   = 254
	MinCodeBlockDim    = 4
	MaxCodeBlockDim    = 1024
	MaxCodeBlockArea   = 4096
	DefaultPrecinctExp = 15
	maxImageDim        = 1<<31 - 1
)

// ImageSize holds the image and tile size marker segment.
type ImageSize struct {
	// Rsiz: capabilities. Only 0 (Part-1 baseline) is accepted.
	Rsiz uint16

	// Reference grid extent (Xsiz, Ysiz) and image offset (XOsiz, YOsiz).
	Xsiz, Ysiz   int
	XOsiz, YOsiz int

	// Nominal tile size (XTsiz, YTsiz) and tiling offset (XTOsiz, YTOsiz).
	XTsiz, YTsiz   int
	XTOsiz, YTOsiz int

	Components []ComponentInfo
}

// ComponentInfo holds per-component size information from the SIZ marker.
type ComponentInfo struct {
	// Bit depth of the component (Ssiz).
	// If bit 7 is set, the component is signed.
	BitDepth uint8

	// Horizontal subsampling factor (XRsiz).
	SubsamplingX uint8

	// Vertical subsampling factor (YRsiz).
	SubsamplingY uint8
}

// Precision returns the bit precision (1-38).
func (c ComponentInfo) Precision() int {
	return int(c.BitDepth&0x7F) + 1
}

// IsSigned returns true if the component values are signed.
func (c ComponentInfo) IsSigned() bool {
	return c.BitDepth&0x80 != 0
}

// NumComps returns Csiz.
func (s *ImageSize) NumComps() int { return len(s.Components) }

// ImgWidth returns the image width on the reference grid.
func (s *ImageSize) ImgWidth() int { return s.Xsiz - s.XOsiz }

// ImgHeight returns the image height on the reference grid.
func (s *ImageSize) ImgHeight() int { return s.Ysiz - s.YOsiz }

// NumTilesX returns the number of tile columns.
func (s *ImageSize) NumTilesX() int { return ceilDiv(s.Xsiz-s.XTOsiz, s.XTsiz) }

// NumTilesY returns the number of tile rows.
func (s *ImageSize) NumTilesY() int { return ceilDiv(s.Ysiz-s.YTOsiz, s.YTsiz) }

// NumTiles returns the total number of tiles.
func (s *ImageSize) NumTiles() int { return s.NumTilesX() * s.NumTilesY() }

// TileRect returns the reference-grid rectangle [x0,x1)x[y0,y1) of the
// tile at column p, row q.
func (s *ImageSize) TileRect(p, q int) (x0, y0, x1, y1 int) {
	x0 = max(s.XTOsiz+p*s.XTsiz, s.XOsiz)
	y0 = max(s.YTOsiz+q*s.YTsiz, s.YOsiz)
	x1 = min(s.XTOsiz+(p+1)*s.XTsiz, s.Xsiz)
	y1 = min(s.YTOsiz+(q+1)*s.YTsiz, s.Ysiz)
	return
}

// CompImgWidth returns the width of component c.
func (s *ImageSize) CompImgWidth(c int) int {
	d := int(s.Components[c].SubsamplingX)
	return ceilDiv(s.Xsiz, d) - ceilDiv(s.XOsiz, d)
}

// CompImgHeight returns the height of component c.
func (s *ImageSize) CompImgHeight(c int) int {
	d := int(s.Components[c].SubsamplingY)
	return ceilDiv(s.Ysiz, d) - ceilDiv(s.YOsiz, d)
}

// MaxCompImgWidth returns the width of the widest component.
func (s *ImageSize) MaxCompImgWidth() int {
	w := 0
	for c := range s.Components {
		w = max(w, s.CompImgWidth(c))
	}
	return w
}

// MaxCompImgHeight returns the height of the tallest component.
func (s *ImageSize) MaxCompImgHeight() int {
	h := 0
	for c := range s.Components {
		h = max(h, s.CompImgHeight(c))
	}
	return h
}

// Validate checks the SIZ values against the Annex A ranges.
func (s *ImageSize) Validate() error {
	if s.Rsiz != 0 {
		return Unsupportedf("codestream capabilities 0x%04X are not JPEG 2000 Part-1", s.Rsiz)
	}
	if s.Xsiz < 1 || s.Ysiz < 1 || s.Xsiz > maxImageDim || s.Ysiz > maxImageDim {
		return Corruptf("invalid reference grid size %dx%d", s.Xsiz, s.Ysiz)
	}
	if s.XOsiz < 0 || s.YOsiz < 0 || s.XOsiz >= s.Xsiz || s.YOsiz >= s.Ysiz {
		return Corruptf("invalid image offset (%d,%d)", s.XOsiz, s.YOsiz)
	}
	if s.XTsiz < 1 || s.YTsiz < 1 || s.XTsiz > maxImageDim || s.YTsiz > maxImageDim {
		return Corruptf("invalid tile size %dx%d", s.XTsiz, s.YTsiz)
	}
	if s.XTOsiz < 0 || s.YTOsiz < 0 || s.XTOsiz > s.XOsiz || s.YTOsiz > s.YOsiz {
		return Corruptf("invalid tiling offset (%d,%d)", s.XTOsiz, s.YTOsiz)
	}
	if s.XTOsiz+s.XTsiz <= s.XOsiz || s.YTOsiz+s.YTsiz <= s.YOsiz {
		return Corruptf("first tile does not intersect the image")
	}
	if n := len(s.Components); n < 1 || n > MaxComponents {
		return Corruptf("invalid number of components: %d", n)
	}
	for i, comp := range s.Components {
		if comp.SubsamplingX == 0 || comp.SubsamplingY == 0 {
			return Corruptf("component %d: invalid subsampling %dx%d",
				i, comp.SubsamplingX, comp.SubsamplingY)
		}
		if prec := comp.Precision(); prec > 38 {
			return Corruptf("component %d: invalid precision %d", i, prec)
		}
	}
	if s.NumTiles() > MaxTileIndex+1 {
		return Corruptf("too many tiles: %d", s.NumTiles())
	}
	return nil
}

// CodeBlockSize holds the nominal code-block dimensions.
type CodeBlockSize struct {
	Width, Height int
}

// PrecinctSize holds the precinct dimensions for a resolution level.
type PrecinctSize struct {
	WidthExp  uint8 // PPx: width exponent
	HeightExp uint8 // PPy: height exponent
}

// Width returns the precinct width.
func (p PrecinctSize) Width() int {
	return 1 << p.WidthExp
}

// Height returns the precinct height.
func (p PrecinctSize) Height() int {
	return 1 << p.HeightExp
}

// DefaultPrecincts returns the "no partition" table for n resolution levels.
func DefaultPrecincts(n int) []PrecinctSize {
	ps := make([]PrecinctSize, n)
	for i := range ps {
		ps[i] = PrecinctSize{DefaultPrecinctExp, DefaultPrecinctExp}
	}
	return ps
}

// PrecinctAt returns the precinct size for resolution r. Tables shorter
// than r+1 repeat their last entry.
func PrecinctAt(ps []PrecinctSize, r int) PrecinctSize {
	if len(ps) == 0 {
		return PrecinctSize{DefaultPrecinctExp, DefaultPrecinctExp}
	}
	if r >= len(ps) {
		return ps[len(ps)-1]
	}
	return ps[r]
}

// StepSizes holds the quantization exponents and reconstruction steps.
// Both tables are indexed [resolution][subband], subband 0 being LL at
// resolution 0 and subbands 1..3 (HL, LH, HH) at higher resolutions.
type StepSizes struct {
	Exp   [][]int
	NStep [][]float32 // nil for reversible quantization
}

// NormalizedStep returns the Annex E step (-1 - mant/2048) / (-1 << exp),
// evaluated in single precision.
func NormalizedStep(exp, mant int) float32 {
	return (-1 - float32(mant)/2048) / float32(int32(-1)<<uint(exp))
}

// ProgressionChange is one entry of a POC marker segment: the progression
// applied to layers [0,LayerEnd), resolutions [ResStart,ResEnd) and
// components [CompStart,CompEnd).
type ProgressionChange struct {
	Order     ProgressionOrder
	ResStart  int
	CompStart int
	LayerEnd  int
	ResEnd    int
	CompEnd   int
}

func (p ProgressionChange) String() string {
	return fmt.Sprintf("%s l<%d r=[%d,%d) c=[%d,%d)",
		p.Order, p.LayerEnd, p.ResStart, p.ResEnd, p.CompStart, p.CompEnd)
}

// Comment is a decoded COM marker segment.
type Comment struct {
	Registration uint16
	Data         []byte
	Text         string // set for Latin text registration
}

// Registration offset of a component (CRG), in 1/65536 of a sample.
type Registration struct {
	X, Y uint16
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	if a >= 0 {
		return (a + b - 1) / b
	}
	return -((-a) / b)
}

// CeilDiv returns ceil(a/b) for b > 0.
func CeilDiv(a, b int) int { return ceilDiv(a, b) }
