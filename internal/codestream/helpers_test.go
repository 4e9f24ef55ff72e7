package codestream

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mrjoshuak/go-j2kparse/internal/bio"
)

// putSeg writes marker m followed by a segment holding fields. Fields must
// be fixed-size values or byte slices.
func putSeg(buf *bytes.Buffer, m Marker, fields ...any) {
	var body bytes.Buffer
	for _, f := range fields {
		if err := binary.Write(&body, binary.BigEndian, f); err != nil {
			panic(err)
		}
	}
	binary.Write(buf, binary.BigEndian, uint16(m))
	binary.Write(buf, binary.BigEndian, uint16(body.Len()+2))
	buf.Write(body.Bytes())
}

// createBaseCodestream writes SOC and a SIZ for a 64x64 image in one tile.
func createBaseCodestream(numComponents uint16) *bytes.Buffer {
	return createTiledCodestream(numComponents, 64, 64, 64, 64)
}

func createTiledCodestream(numComponents uint16, w, h, tw, th uint32) *bytes.Buffer {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(SOC))
	fields := []any{
		uint16(0),            // Rsiz
		w, h,                 // Xsiz, Ysiz
		uint32(0), uint32(0), // XOsiz, YOsiz
		tw, th,               // XTsiz, YTsiz
		uint32(0), uint32(0), // XTOsiz, YTOsiz
		numComponents,
	}
	for i := uint16(0); i < numComponents; i++ {
		fields = append(fields, []byte{7, 1, 1})
	}
	putSeg(&buf, SIZ, fields...)
	return &buf
}

// addCOD writes a COD with 1 layer, LRCP, no MCT, 64x64 code-blocks and
// the 5-3 filter.
func addCOD(buf *bytes.Buffer, levels uint8, precincts ...uint8) {
	scod := uint8(0)
	if len(precincts) > 0 {
		scod = CodingStylePrecincts
	}
	putSeg(buf, COD, scod, uint8(LRCP), uint16(1), uint8(0),
		levels, uint8(4), uint8(4), uint8(0), uint8(FilterReversible53), precincts)
}

// addQCD writes a reversible QCD for the given number of levels.
func addQCD(buf *bytes.Buffer, levels int) {
	exps := make([]byte, 1+3*levels)
	for i := range exps {
		exps[i] = 0x48
	}
	putSeg(buf, QCD, uint8(0x40), exps)
}

// createMinimalCodestream returns a complete main header followed by the
// start of a tile-part.
func createMinimalCodestream() []byte {
	buf := createBaseCodestream(1)
	addCOD(buf, 5)
	addQCD(buf, 5)
	binary.Write(buf, binary.BigEndian, uint16(SOT))
	return buf.Bytes()
}

// addSOT writes an SOT segment.
func addSOT(buf *bytes.Buffer, tile uint16, psot uint32, tp, tn uint8) {
	putSeg(buf, SOT, tile, psot, tp, tn)
}

func newStream(t testing.TB, data []byte) *bio.Stream {
	t.Helper()
	s, err := bio.NewStream(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func decodeHeader(t testing.TB, data []byte) (*HeaderDecoder, *bio.Stream, *test.Hook, error) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := newStream(t, data)
	hd, err := NewHeaderDecoder(s, logger)
	return hd, s, hook, err
}

func warnings(hook *test.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}
