// Package codestream decodes the main header and tile-part headers of a
// JPEG 2000 Part-1 codestream into a DecoderSpec.
package codestream

import "fmt"

// Marker codes for JPEG 2000 codestreams.
// These are defined in ISO/IEC 15444-1 Annex A.
const (
	// Delimiting markers and marker segments
	SOC Marker = 0xFF4F // Start of codestream
	SOT Marker = 0xFF90 // Start of tile-part
	SOD Marker = 0xFF93 // Start of data
	EOC Marker = 0xFFD9 // End of codestream

	// Fixed information marker segments
	SIZ Marker = 0xFF51 // Image and tile size

	// Functional marker segments
	COD Marker = 0xFF52 // Coding style default
	COC Marker = 0xFF53 // Coding style component
	RGN Marker = 0xFF5E // Region-of-interest
	QCD Marker = 0xFF5C // Quantization default
	QCC Marker = 0xFF5D // Quantization component
	POC Marker = 0xFF5F // Progression order change

	// Pointer marker segments
	TLM Marker = 0xFF55 // Tile-part lengths
	PLM Marker = 0xFF57 // Packet length, main header
	PLT Marker = 0xFF58 // Packet length, tile-part header
	PPM Marker = 0xFF60 // Packed packet headers, main header
	PPT Marker = 0xFF61 // Packed packet headers, tile-part header

	// In bit stream markers and marker segments
	SOP Marker = 0xFF91 // Start of packet
	EPH Marker = 0xFF92 // End of packet header

	// Informational marker segments
	CRG Marker = 0xFF63 // Component registration
	COM Marker = 0xFF64 // Comment
)

// Fixed segment lengths.
const (
	SOTLength = 10 // Lsot
	SOPLength = 6  // SOP marker segment including the marker
)

// Marker represents a JPEG 2000 marker code.
type Marker uint16

// String returns the string representation of a marker.
func (m Marker) String() string {
	switch m {
	case SOC:
		return "SOC"
	case SOT:
		return "SOT"
	case SOD:
		return "SOD"
	case EOC:
		return "EOC"
	case SIZ:
		return "SIZ"
	case COD:
		return "COD"
	case COC:
		return "COC"
	case RGN:
		return "RGN"
	case QCD:
		return "QCD"
	case QCC:
		return "QCC"
	case POC:
		return "POC"
	case TLM:
		return "TLM"
	case PLM:
		return "PLM"
	case PLT:
		return "PLT"
	case PPM:
		return "PPM"
	case PPT:
		return "PPT"
	case SOP:
		return "SOP"
	case EPH:
		return "EPH"
	case CRG:
		return "CRG"
	case COM:
		return "COM"
	default:
		return fmt.Sprintf("0x%04X", uint16(m))
	}
}

// HasLength returns true if this marker has a length field following it.
// Markers 0xFF30 to 0xFF3F are reserved for segments without parameters.
func (m Marker) HasLength() bool {
	switch m {
	case SOC, SOD, EOC, EPH:
		return false
	}
	return m < 0xFF30 || m > 0xFF3F
}

// Coding style flags (from COD/COC markers).
const (
	// CodingStylePrecincts indicates custom precinct sizes are used.
	CodingStylePrecincts uint8 = 0x01
	// CodingStyleSOP indicates SOP markers are used.
	CodingStyleSOP uint8 = 0x02
	// CodingStyleEPH indicates EPH markers are used.
	CodingStyleEPH uint8 = 0x04
)

// Code-block style flags (entropy coding options).
const (
	// CodeBlockBypass enables selective arithmetic coding bypass.
	CodeBlockBypass uint8 = 0x01
	// CodeBlockReset resets context probabilities on each coding pass.
	CodeBlockReset uint8 = 0x02
	// CodeBlockTermination enables termination on each coding pass.
	CodeBlockTermination uint8 = 0x04
	// CodeBlockVerticalCausal enables vertically causal context formation.
	CodeBlockVerticalCausal uint8 = 0x08
	// CodeBlockPredictableTermination enables predictable termination.
	CodeBlockPredictableTermination uint8 = 0x10
	// CodeBlockSegmentationSymbols enables segmentation symbols.
	CodeBlockSegmentationSymbols uint8 = 0x20

	codeBlockStyleMask uint8 = 0x3F
)

// QuantStyle is the quantization style carried in Sqcd/Sqcc.
type QuantStyle uint8

// Quantization style values.
const (
	// QuantizationNone indicates reversible (no) quantization.
	QuantizationNone QuantStyle = 0x00
	// QuantizationScalarDerived indicates scalar derived quantization.
	QuantizationScalarDerived QuantStyle = 0x01
	// QuantizationScalarExpounded indicates scalar expounded quantization.
	QuantizationScalarExpounded QuantStyle = 0x02
)

func (q QuantStyle) String() string {
	switch q {
	case QuantizationNone:
		return "reversible"
	case QuantizationScalarDerived:
		return "derived"
	case QuantizationScalarExpounded:
		return "expounded"
	}
	return fmt.Sprintf("QuantStyle(%d)", uint8(q))
}

// Filter identifies a Part-1 wavelet filter.
type Filter uint8

const (
	// FilterIrreversible97 is the 9-7 irreversible floating point filter.
	FilterIrreversible97 Filter = 0
	// FilterReversible53 is the 5-3 reversible integer filter.
	FilterReversible53 Filter = 1
)

func (f Filter) String() string {
	switch f {
	case FilterIrreversible97:
		return "w9x7"
	case FilterReversible53:
		return "w5x3"
	}
	return fmt.Sprintf("Filter(%d)", uint8(f))
}

// Comment registration values for COM marker.
const (
	// CommentBinary indicates binary data.
	CommentBinary uint16 = 0
	// CommentLatin1 indicates Latin-1 (ISO 8859-1) text.
	CommentLatin1 uint16 = 1
)

// ProgressionOrder defines the order in which packets are encoded/decoded.
type ProgressionOrder uint8

const (
	// LRCP is Layer-Resolution-Component-Position order.
	LRCP ProgressionOrder = iota
	// RLCP is Resolution-Layer-Component-Position order.
	RLCP
	// RPCL is Resolution-Position-Component-Layer order.
	RPCL
	// PCRL is Position-Component-Resolution-Layer order.
	PCRL
	// CPRL is Component-Position-Resolution-Layer order.
	CPRL
)

// String returns the string representation of the progression order.
func (p ProgressionOrder) String() string {
	switch p {
	case LRCP:
		return "LRCP"
	case RLCP:
		return "RLCP"
	case RPCL:
		return "RPCL"
	case PCRL:
		return "PCRL"
	case CPRL:
		return "CPRL"
	}
	return fmt.Sprintf("ProgressionOrder(%d)", uint8(p))
}

// Valid reports whether p is one of the five Part-1 progression orders.
func (p ProgressionOrder) Valid() bool {
	return p <= CPRL
}
