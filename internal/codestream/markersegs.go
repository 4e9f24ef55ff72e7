package codestream

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
)

// readSIZ decodes SIZ and allocates the decoder specification.
func (hd *HeaderDecoder) readSIZ(seg segment) error {
	r := newSegReader(seg)
	lsiz := r.u16()
	siz := &ImageSize{Rsiz: uint16(r.u16())}
	siz.Xsiz = int(r.u32())
	siz.Ysiz = int(r.u32())
	siz.XOsiz = int(r.u32())
	siz.YOsiz = int(r.u32())
	siz.XTsiz = int(r.u32())
	siz.YTsiz = int(r.u32())
	siz.XTOsiz = int(r.u32())
	siz.YTOsiz = int(r.u32())
	csiz := r.u16()
	if r.err != nil {
		return r.err
	}
	if lsiz != 38+3*csiz {
		return Corruptf("SIZ length %d does not match %d components", lsiz, csiz)
	}
	siz.Components = make([]ComponentInfo, csiz)
	for i := range siz.Components {
		siz.Components[i] = ComponentInfo{
			BitDepth:     uint8(r.u8()),
			SubsamplingX: uint8(r.u8()),
			SubsamplingY: uint8(r.u8()),
		}
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}
	if err := siz.Validate(); err != nil {
		return err
	}

	nt := siz.NumTiles()
	hd.siz = siz
	hd.spec = NewDecoderSpec(nt, csiz)
	hd.ppt = make([][]packedFragment, nt)
	hd.tilePOC = make([][]ProgressionChange, nt)
	return nil
}

// codingStyle holds the SPcod/SPcoc fields shared by COD and COC.
type codingStyle struct {
	levels    int
	cblk      CodeBlockSize
	options   uint8
	filter    Filter
	precincts []PrecinctSize
}

func readSPcod(r *segReader, precincts bool) (codingStyle, error) {
	var cs codingStyle
	cs.levels = r.u8()
	xcb := r.u8()
	ycb := r.u8()
	cs.options = uint8(r.u8())
	filter := r.u8()
	if r.err != nil {
		return cs, r.err
	}
	if cs.levels > MaxDecompLevels {
		return cs, Corruptf("%s: %d decomposition levels", r.m, cs.levels)
	}
	if xcb > 8 || ycb > 8 {
		return cs, Corruptf("%s: code-block exponents %d,%d out of range", r.m, xcb, ycb)
	}
	cs.cblk = CodeBlockSize{Width: 1 << (xcb + 2), Height: 1 << (ycb + 2)}
	if cs.cblk.Width*cs.cblk.Height > MaxCodeBlockArea {
		return cs, Corruptf("%s: code-block %dx%d exceeds the maximum area", r.m, cs.cblk.Width, cs.cblk.Height)
	}
	if cs.options&^codeBlockStyleMask != 0 {
		return cs, Corruptf("%s: unknown code-block style 0x%02X", r.m, cs.options)
	}
	if filter > int(FilterReversible53) {
		return cs, Unsupportedf("%s: wavelet filter %d", r.m, filter)
	}
	cs.filter = Filter(filter)

	if !precincts {
		cs.precincts = DefaultPrecincts(cs.levels + 1)
		return cs, nil
	}
	cs.precincts = make([]PrecinctSize, cs.levels+1)
	for rl := range cs.precincts {
		b := r.u8()
		ps := PrecinctSize{WidthExp: uint8(b & 0x0F), HeightExp: uint8(b >> 4)}
		if rl > 0 && (ps.WidthExp == 0 || ps.HeightExp == 0) {
			return cs, Corruptf("%s: precinct exponent 0 at resolution %d", r.m, rl)
		}
		cs.precincts[rl] = ps
	}
	return cs, r.err
}

// readCOD decodes COD for the main header (tile < 0) or a tile.
func (hd *HeaderDecoder) readCOD(seg segment, tile int) error {
	r := newSegReader(seg)
	r.u16()
	scod := uint8(r.u8())
	order := ProgressionOrder(r.u8())
	layers := r.u16()
	mct := r.u8()
	if r.err != nil {
		return r.err
	}
	if scod&^(CodingStylePrecincts|CodingStyleSOP|CodingStyleEPH) != 0 {
		return Corruptf("COD: unknown coding style 0x%02X", scod)
	}
	if !order.Valid() {
		return Corruptf("COD: unknown progression order %d", order)
	}
	if layers < 1 {
		return Corruptf("COD: %d layers", layers)
	}
	if mct > 1 {
		return Corruptf("COD: multiple component transform %d", mct)
	}
	cs, err := readSPcod(r, scod&CodingStylePrecincts != 0)
	if err != nil {
		return err
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}
	if mct == 1 && hd.siz.NumComps() < 3 {
		hd.log.WithField("tile", tile).Warn("component transform signalled for fewer than 3 components")
	}

	sp := hd.spec
	if tile < 0 {
		sp.Layers.SetDefault(layers)
		sp.Progression.SetDefault(order)
		sp.CompTransform.SetDefault(mct == 1)
		sp.SOP.SetDefault(scod&CodingStyleSOP != 0)
		sp.EPH.SetDefault(scod&CodingStyleEPH != 0)
		sp.DecompLevels.SetDefault(cs.levels)
		sp.CodeBlockSize.SetDefault(cs.cblk)
		sp.EntropyOptions.SetDefault(cs.options)
		sp.Filters.SetDefault(cs.filter)
		sp.PrecinctSizes.SetDefault(cs.precincts)
		return nil
	}
	sp.Layers.SetTile(tile, layers)
	sp.Progression.SetTile(tile, order)
	sp.CompTransform.SetTile(tile, mct == 1)
	sp.SOP.SetTile(tile, scod&CodingStyleSOP != 0)
	sp.EPH.SetTile(tile, scod&CodingStyleEPH != 0)
	sp.DecompLevels.SetTile(tile, cs.levels)
	sp.CodeBlockSize.SetTile(tile, cs.cblk)
	sp.EntropyOptions.SetTile(tile, cs.options)
	sp.Filters.SetTile(tile, cs.filter)
	sp.PrecinctSizes.SetTile(tile, cs.precincts)
	return nil
}

// readCOC decodes COC for the main header (tile < 0) or a tile.
func (hd *HeaderDecoder) readCOC(seg segment, tile int) error {
	r := newSegReader(seg)
	r.u16()
	nc := hd.siz.NumComps()
	c := r.comp(nc)
	scoc := uint8(r.u8())
	if r.err != nil {
		return r.err
	}
	if c >= nc {
		return Corruptf("COC: component %d of %d", c, nc)
	}
	if scoc&^CodingStylePrecincts != 0 {
		return Corruptf("COC: unknown coding style 0x%02X", scoc)
	}
	cs, err := readSPcod(r, scoc&CodingStylePrecincts != 0)
	if err != nil {
		return err
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}

	sp := hd.spec
	if tile < 0 {
		sp.DecompLevels.SetComp(c, cs.levels)
		sp.CodeBlockSize.SetComp(c, cs.cblk)
		sp.EntropyOptions.SetComp(c, cs.options)
		sp.Filters.SetComp(c, cs.filter)
		sp.PrecinctSizes.SetComp(c, cs.precincts)
		return nil
	}
	sp.DecompLevels.SetTileComp(tile, c, cs.levels)
	sp.CodeBlockSize.SetTileComp(tile, c, cs.cblk)
	sp.EntropyOptions.SetTileComp(tile, c, cs.options)
	sp.Filters.SetTileComp(tile, c, cs.filter)
	sp.PrecinctSizes.SetTileComp(tile, c, cs.precincts)
	return nil
}

// readQuant decodes Sqcx and SPqcx. levels is the decomposition level
// count in force, used to expand derived quantization.
func readQuant(r *segReader, levels int) (QuantStyle, int, *StepSizes, error) {
	sq := r.u8()
	if r.err != nil {
		return 0, 0, nil, r.err
	}
	style := QuantStyle(sq & 0x1F)
	guard := sq >> 5

	var n int
	switch style {
	case QuantizationNone:
		n = r.remaining()
	case QuantizationScalarExpounded:
		n = r.remaining() / 2
	case QuantizationScalarDerived:
		n = 1
	default:
		return 0, 0, nil, Unsupportedf("%s: quantization style %d", r.m, sq&0x1F)
	}
	if n < 1 {
		return 0, 0, nil, Corruptf("%s: no quantization step", r.m)
	}
	if style != QuantizationScalarDerived {
		levels = (n - 1) / 3
	}

	st := &StepSizes{Exp: make([][]int, levels+1)}
	if style != QuantizationNone {
		st.NStep = make([][]float32, levels+1)
	}
	var exp0, mant0 int
	for rl := 0; rl <= levels; rl++ {
		lo, hi := 0, 1
		if rl > 0 {
			lo, hi = 1, 4
		}
		st.Exp[rl] = make([]int, hi)
		if st.NStep != nil {
			st.NStep[rl] = make([]float32, hi)
		}
		for s := lo; s < hi; s++ {
			switch style {
			case QuantizationNone:
				st.Exp[rl][s] = r.u8() >> 3
			case QuantizationScalarExpounded:
				v := r.u16()
				exp, mant := v>>11&0x1F, v&0x7FF
				st.Exp[rl][s] = exp
				st.NStep[rl][s] = NormalizedStep(exp, mant)
			case QuantizationScalarDerived:
				if rl == 0 {
					v := r.u16()
					exp0, mant0 = v>>11&0x1F, v&0x7FF
				}
				exp := exp0
				if rl > 0 {
					exp = exp0 - rl + 1
				}
				if exp < 0 {
					return 0, 0, nil, Corruptf("%s: derived exponent %d at resolution %d", r.m, exp, rl)
				}
				st.Exp[rl][s] = exp
				st.NStep[rl][s] = NormalizedStep(exp, mant0)
			}
		}
	}
	return style, guard, st, r.err
}

// readQCD decodes QCD for the main header (tile < 0) or a tile.
func (hd *HeaderDecoder) readQCD(seg segment, tile int) error {
	r := newSegReader(seg)
	r.u16()
	levels, _ := hd.spec.DecompLevels.Default()
	if tile >= 0 {
		levels = 0
		for c := 0; c < hd.spec.NumComps; c++ {
			levels = max(levels, hd.spec.DecompLevels.Resolve(tile, c))
		}
	}
	style, guard, st, err := readQuant(r, levels)
	if err != nil {
		return err
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}

	sp := hd.spec
	if tile < 0 {
		sp.QuantStyle.SetDefault(style)
		sp.GuardBits.SetDefault(guard)
		sp.StepSizes.SetDefault(st)
		return nil
	}
	sp.QuantStyle.SetTile(tile, style)
	sp.GuardBits.SetTile(tile, guard)
	sp.StepSizes.SetTile(tile, st)
	return nil
}

// readQCC decodes QCC for the main header (tile < 0) or a tile.
func (hd *HeaderDecoder) readQCC(seg segment, tile int) error {
	r := newSegReader(seg)
	r.u16()
	nc := hd.siz.NumComps()
	c := r.comp(nc)
	if r.err != nil {
		return r.err
	}
	if c >= nc {
		return Corruptf("QCC: component %d of %d", c, nc)
	}
	// No tile has overrides while the main header is read, so tile 0
	// resolves to the component value.
	t := max(tile, 0)
	style, guard, st, err := readQuant(r, hd.spec.DecompLevels.Resolve(t, c))
	if err != nil {
		return err
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}

	sp := hd.spec
	if tile < 0 {
		sp.QuantStyle.SetComp(c, style)
		sp.GuardBits.SetComp(c, guard)
		sp.StepSizes.SetComp(c, st)
		return nil
	}
	sp.QuantStyle.SetTileComp(tile, c, style)
	sp.GuardBits.SetTileComp(tile, c, guard)
	sp.StepSizes.SetTileComp(tile, c, st)
	return nil
}

// readPOC decodes the progression changes of a POC segment. Changes of the
// same tile accumulate across tile-parts.
func (hd *HeaderDecoder) readPOC(seg segment, tile int) error {
	r := newSegReader(seg)
	r.u16()
	nc := hd.siz.NumComps()
	var changes []ProgressionChange
	for r.err == nil && r.remaining() > 0 {
		p := ProgressionChange{
			ResStart:  r.u8(),
			CompStart: r.comp(nc),
			LayerEnd:  r.u16(),
			ResEnd:    r.u8(),
			CompEnd:   r.comp(nc),
			Order:     ProgressionOrder(r.u8()),
		}
		if r.err != nil {
			break
		}
		if p.CompEnd == 0 {
			if nc < 257 {
				p.CompEnd = 256
			} else {
				p.CompEnd = MaxComponents
			}
		}
		if !p.Order.Valid() {
			return Corruptf("POC: unknown progression order %d", p.Order)
		}
		changes = append(changes, p)
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}
	if len(changes) == 0 {
		return Corruptf("POC: no progression change")
	}

	if tile < 0 {
		hd.spec.ProgressionChanges.SetDefault(changes)
		return nil
	}
	hd.tilePOC[tile] = append(hd.tilePOC[tile], changes...)
	hd.spec.ProgressionChanges.SetTile(tile, append([]ProgressionChange(nil), hd.tilePOC[tile]...))
	return nil
}

// readRGN decodes the ROI maxshift of a component.
func (hd *HeaderDecoder) readRGN(seg segment, tile int) error {
	r := newSegReader(seg)
	r.u16()
	nc := hd.siz.NumComps()
	c := r.comp(nc)
	srgn := r.u8()
	shift := r.u8()
	if err := hd.checkLength(r); err != nil {
		return err
	}
	if c >= nc {
		return Corruptf("RGN: component %d of %d", c, nc)
	}
	if srgn != 0 {
		return Unsupportedf("RGN: ROI style %d", srgn)
	}
	if tile < 0 {
		hd.spec.ROIShift.SetComp(c, shift)
	} else {
		hd.spec.ROIShift.SetTileComp(tile, c, shift)
	}
	return nil
}

// readCOM records a comment. Latin text is decoded to UTF-8.
func (hd *HeaderDecoder) readCOM(seg segment) error {
	r := newSegReader(seg)
	r.u16()
	rcom := uint16(r.u16())
	data := r.rest()
	if r.err != nil {
		return r.err
	}
	c := Comment{Registration: rcom, Data: data}
	switch rcom {
	case CommentBinary:
	case CommentLatin1:
		text, err := charmap.ISO8859_15.NewDecoder().Bytes(data)
		if err != nil {
			hd.log.WithError(err).Warn("COM: undecodable Latin text")
		} else {
			c.Text = string(text)
		}
	default:
		hd.log.WithField("registration", rcom).Warn("COM: unknown registration value, kept as binary")
	}
	hd.comments = append(hd.comments, c)
	return nil
}

// readCRG records the component registration offsets.
func (hd *HeaderDecoder) readCRG(seg segment) error {
	r := newSegReader(seg)
	r.u16()
	regs := make([]Registration, hd.siz.NumComps())
	for i := range regs {
		regs[i] = Registration{X: uint16(r.u16()), Y: uint16(r.u16())}
	}
	if err := hd.checkLength(r); err != nil {
		return err
	}
	hd.regs = regs
	return nil
}

func (hd *HeaderDecoder) readPPM(seg segment) error {
	r := newSegReader(seg)
	r.u16()
	z := r.u8()
	data := r.rest()
	if r.err != nil {
		return r.err
	}
	hd.usesPPM = true
	hd.ppm = append(hd.ppm, packedFragment{z: z, data: data})
	return nil
}

func (hd *HeaderDecoder) readPPT(seg segment, tile, tilePart int) error {
	r := newSegReader(seg)
	r.u16()
	z := r.u8()
	data := r.rest()
	if r.err != nil {
		return r.err
	}
	hd.ppt[tile] = append(hd.ppt[tile], packedFragment{tilePart: tilePart, z: z, data: data})
	hd.spec.PackedHeaders.SetTile(tile, true)
	hd.log.WithFields(logrus.Fields{
		"tile":     tile,
		"tilepart": tilePart,
		"zppt":     z,
		"bytes":    len(data),
	}).Debug("packed packet headers")
	return nil
}
