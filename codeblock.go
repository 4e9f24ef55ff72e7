package j2kparse

import (
	"fmt"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
	"github.com/mrjoshuak/go-j2kparse/internal/tcd"
)

// DecLyrdCBlk is the compressed data of one code-block over a range of
// layers.
type DecLyrdCBlk = tcd.DecLyrdCBlk

// Subband types.
const (
	BandLL = tcd.BandLL
	BandHL = tcd.BandHL
	BandLH = tcd.BandLH
	BandHH = tcd.BandHH
)

// CodeBlock returns the compressed data of code-block (m, n) of subband sb
// of component c in the current tile, over numLayers layers starting at
// firstLayer (0-based). A negative numLayers, or one reaching past the last
// layer, selects every remaining layer.
//
// If out is not nil it is reused and returned. A code-block that no packet
// included is returned with no data and no passes. Repeated calls with the
// same arguments return the same result.
func (r *Reader) CodeBlock(c, m, n int, sb Subband, firstLayer, numLayers int, out *DecLyrdCBlk) (*DecLyrdCBlk, error) {
	if r.tile == nil {
		return nil, codestream.InvalidParamf("no current tile")
	}
	if c < 0 || c >= r.tile.NumComps() {
		return nil, codestream.InvalidParamf("component %d outside [0,%d)", c, r.tile.NumComps())
	}
	tc := r.tile.Components[c]
	if sb.Resolution < 0 || sb.Resolution >= len(tc.Resolutions) {
		return nil, codestream.InvalidParamf("resolution %d outside [0,%d)", sb.Resolution, len(tc.Resolutions))
	}
	band := tc.Resolutions[sb.Resolution].Band(sb.Type)
	if band == nil {
		return nil, codestream.InvalidParamf("no subband %d at resolution %d", sb.Type, sb.Resolution)
	}
	if m < 0 || m >= band.CodeBlocksY || n < 0 || n >= band.CodeBlocksX {
		return nil, codestream.InvalidParamf("code-block (%d,%d) outside the %dx%d grid", m, n, band.CodeBlocksY, band.CodeBlocksX)
	}
	layers := r.tile.Layers
	if firstLayer < 0 || firstLayer >= layers {
		return nil, codestream.InvalidParamf("first layer %d outside [0,%d)", firstLayer, layers)
	}
	if numLayers < 0 || firstLayer+numLayers > layers {
		numLayers = layers - firstLayer
	}

	if out == nil {
		out = &DecLyrdCBlk{}
	}
	out.M, out.N = m, n
	out.Data = out.Data[:0]
	out.SegLengths = out.SegLengths[:0]
	out.NumLayers, out.FirstPass, out.NumPasses = 0, 0, 0
	out.Progressive = false

	cb := r.blocks.Get(tcd.BlockKey{C: c, R: sb.Resolution, S: sb.Type, M: m, N: n})
	if cb == nil {
		out.ULX, out.ULY, out.W, out.H = band.BlockRect(m, n)
		out.SkipMSBP = 0
		return out, nil
	}
	out.ULX, out.ULY, out.W, out.H = cb.ULX, cb.ULY, cb.W, cb.H
	out.SkipMSBP = cb.MSBSkipped

	first, passes, segs := cb.Segments(tc.Options, firstLayer, numLayers)
	out.FirstPass, out.NumPasses = first, passes
	out.SegLengths = append(out.SegLengths, segs...)

	for l := firstLayer; l < firstLayer+numLayers; l++ {
		if cb.Passes[l] == 0 {
			continue
		}
		out.NumLayers++
		if cb.Len[l] == 0 {
			continue
		}
		at := len(out.Data)
		out.Data = grow(out.Data, cb.Len[l])
		if err := r.s.SeekTo(cb.Off[l]); err != nil {
			return nil, fmt.Errorf("code-block (%d,%d) layer %d: %w", m, n, l, codestream.Truncated(err))
		}
		if err := r.s.ReadFull(out.Data[at:]); err != nil {
			return nil, fmt.Errorf("code-block (%d,%d) layer %d: %w", m, n, l, codestream.Truncated(err))
		}
	}
	for l := firstLayer + numLayers; l < layers; l++ {
		if cb.Len[l] > 0 {
			out.Progressive = true
			break
		}
	}
	return out, nil
}

// grow extends b by n bytes, reusing its capacity when possible.
func grow(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b[:len(b)+n]
	}
	nb := make([]byte, len(b)+n, 2*len(b)+n)
	copy(nb, b)
	return nb
}
