package codestream

// DecoderSpec collects every coding parameter of the codestream, each as a
// three-level table. Tile-level parameters (layers, progression, MCT,
// SOP/EPH, packed headers, POC) hold the same value for all components of
// a tile.
type DecoderSpec struct {
	NumTiles int
	NumComps int

	Filters            *Spec[Filter]
	DecompLevels       *Spec[int]
	QuantStyle         *Spec[QuantStyle]
	StepSizes          *Spec[*StepSizes]
	GuardBits          *Spec[int]
	CodeBlockSize      *Spec[CodeBlockSize]
	EntropyOptions     *Spec[uint8]
	CompTransform      *Spec[bool]
	Layers             *Spec[int]
	Progression        *Spec[ProgressionOrder]
	ProgressionChanges *Spec[[]ProgressionChange]
	PrecinctSizes      *Spec[[]PrecinctSize]
	SOP                *Spec[bool]
	EPH                *Spec[bool]
	PackedHeaders      *Spec[bool]
	ROIShift           *Spec[int]
}

// NewDecoderSpec allocates the tables for nTiles tiles of nComps components.
func NewDecoderSpec(nTiles, nComps int) *DecoderSpec {
	return &DecoderSpec{
		NumTiles:           nTiles,
		NumComps:           nComps,
		Filters:            NewSpec[Filter]("wavelet filters", nTiles, nComps),
		DecompLevels:       NewSpec[int]("decomposition levels", nTiles, nComps),
		QuantStyle:         NewSpec[QuantStyle]("quantization style", nTiles, nComps),
		StepSizes:          NewSpec[*StepSizes]("quantization steps", nTiles, nComps),
		GuardBits:          NewSpec[int]("guard bits", nTiles, nComps),
		CodeBlockSize:      NewSpec[CodeBlockSize]("code-block size", nTiles, nComps),
		EntropyOptions:     NewSpec[uint8]("entropy coding options", nTiles, nComps),
		CompTransform:      NewSpec[bool]("component transform", nTiles, nComps),
		Layers:             NewSpec[int]("layers", nTiles, nComps),
		Progression:        NewSpec[ProgressionOrder]("progression order", nTiles, nComps),
		ProgressionChanges: NewSpec[[]ProgressionChange]("progression changes", nTiles, nComps),
		PrecinctSizes:      NewSpec[[]PrecinctSize]("precinct sizes", nTiles, nComps),
		SOP:                NewSpec[bool]("SOP markers", nTiles, nComps),
		EPH:                NewSpec[bool]("EPH markers", nTiles, nComps),
		PackedHeaders:      NewSpec[bool]("packed packet headers", nTiles, nComps),
		ROIShift:           NewSpec[int]("ROI maxshift", nTiles, nComps),
	}
}

// checkDefaults reports the first table without a default.
func (d *DecoderSpec) checkDefaults() error {
	type defaulted interface {
		HasDefault() bool
		Name() string
	}
	for _, s := range []defaulted{
		d.Filters, d.DecompLevels, d.QuantStyle, d.StepSizes, d.GuardBits,
		d.CodeBlockSize, d.EntropyOptions, d.CompTransform, d.Layers,
		d.Progression, d.ProgressionChanges, d.PrecinctSizes, d.SOP, d.EPH,
		d.PackedHeaders, d.ROIShift,
	} {
		if !s.HasDefault() {
			return Corruptf("main header does not define %s", s.Name())
		}
	}
	return nil
}

// MinDecompLevels returns the smallest decomposition level count over all
// tile-components.
func (d *DecoderSpec) MinDecompLevels() int {
	return MinInt(d.DecompLevels)
}
