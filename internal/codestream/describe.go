package codestream

import (
	"fmt"
	"strings"
)

// Describe returns a readable dump of the main header parameters.
func (hd *HeaderDecoder) Describe() string {
	var b strings.Builder
	siz := hd.siz
	sp := hd.spec

	fmt.Fprintf(&b, "main header: offset %d, length %d\n", hd.mainOff, hd.mainLen)
	fmt.Fprintf(&b, "  SIZ: grid %dx%d, image offset (%d,%d), tiles %dx%d at (%d,%d), %d tile(s)\n",
		siz.Xsiz, siz.Ysiz, siz.XOsiz, siz.YOsiz, siz.XTsiz, siz.YTsiz,
		siz.XTOsiz, siz.YTOsiz, siz.NumTiles())
	for c, ci := range siz.Components {
		sign := "unsigned"
		if ci.IsSigned() {
			sign = "signed"
		}
		fmt.Fprintf(&b, "  component %d: %d bits %s, subsampling %dx%d\n",
			c, ci.Precision(), sign, ci.SubsamplingX, ci.SubsamplingY)
	}

	layers, _ := sp.Layers.Default()
	order, _ := sp.Progression.Default()
	mct, _ := sp.CompTransform.Default()
	sop, _ := sp.SOP.Default()
	eph, _ := sp.EPH.Default()
	fmt.Fprintf(&b, "  COD: %d layer(s), %s, MCT %t, SOP %t, EPH %t\n", layers, order, mct, sop, eph)

	levels, _ := sp.DecompLevels.Default()
	cblk, _ := sp.CodeBlockSize.Default()
	opts, _ := sp.EntropyOptions.Default()
	filter, _ := sp.Filters.Default()
	fmt.Fprintf(&b, "       %d level(s), code-blocks %dx%d, options 0x%02X, filter %s\n",
		levels, cblk.Width, cblk.Height, opts, filter)
	if ps, _ := sp.PrecinctSizes.Default(); len(ps) > 0 {
		parts := make([]string, len(ps))
		for i, p := range ps {
			parts[i] = fmt.Sprintf("%dx%d", p.Width(), p.Height())
		}
		fmt.Fprintf(&b, "       precincts %s\n", strings.Join(parts, " "))
	}

	qs, _ := sp.QuantStyle.Default()
	guard, _ := sp.GuardBits.Default()
	fmt.Fprintf(&b, "  QCD: %s, %d guard bit(s)\n", qs, guard)

	if chg, _ := sp.ProgressionChanges.Default(); len(chg) > 0 {
		for _, p := range chg {
			fmt.Fprintf(&b, "  POC: %s\n", p)
		}
	}
	if hd.usesPPM {
		fmt.Fprintf(&b, "  PPM: %d fragment(s), %d tile-part chunk(s)\n", len(hd.ppm), len(hd.ppmChunks))
	}
	for _, c := range hd.comments {
		if c.Text != "" {
			fmt.Fprintf(&b, "  COM: %q\n", c.Text)
		} else {
			fmt.Fprintf(&b, "  COM: %d byte(s), registration %d\n", len(c.Data), c.Registration)
		}
	}
	return b.String()
}
