package j2kparse

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mrjoshuak/go-j2kparse/internal/bio"
	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// Lengths of the codestream pieces written by testStream.
const (
	sotLen   = 2 + codestream.SOTLength
	sodLen   = 2
	tpHdrLen = sotLen + sodLen
)

// layerData is the contribution of the single code-block of a tile to one
// layer.
type layerData struct {
	passes, length int
}

// testStream describes a codestream without wavelet decomposition: every
// tile-component holds one code-block, which contributes to each layer as
// listed in layers, or in comps[c] for component c.
type testStream struct {
	w, h, tw, th int
	zbp          int // skipped bit-planes of every code-block
	layers       []layerData
	comps        [][]layerData
	parts        int // tile-parts per tile; packets are spread over them
	sop, eph     bool
	ppt, ppm     bool // packet headers packed in PPT or PPM segments
	noEOC        bool
}

// testImage is the common single-tile image: 3 passes in 10 bytes, then 2
// passes in 6 bytes.
var testImage = testStream{
	w: 16, h: 16, tw: 16, th: 16,
	zbp:    2,
	layers: []layerData{{3, 10}, {2, 6}},
}

// built is a codestream with the offsets a test needs.
type built struct {
	data    []byte
	mainLen int64
	packets [][]int64 // per tile, bytes each packet takes after SOD
	headers [][]int64 // packet header lengths per tile, EPH included
}

// testPacket is one encoded packet, in layer then component order.
type testPacket struct {
	sop, hdr, data []byte
}

func putSeg(buf *bytes.Buffer, m codestream.Marker, fields ...any) {
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

func putMarker(buf *bytes.Buffer, m codestream.Marker) {
	binary.Write(buf, binary.BigEndian, uint16(m))
}

func (p testStream) compLayers() [][]layerData {
	if p.comps != nil {
		return p.comps
	}
	return [][]layerData{p.layers}
}

func (p testStream) packed() bool { return p.ppt || p.ppm }

// mainHeader writes SOC, SIZ, COD and QCD.
func (p testStream) mainHeader() *bytes.Buffer {
	comps := p.compLayers()
	var buf bytes.Buffer
	putMarker(&buf, codestream.SOC)
	siz := []any{
		uint16(0),
		uint32(p.w), uint32(p.h),
		uint32(0), uint32(0),
		uint32(p.tw), uint32(p.th),
		uint32(0), uint32(0),
		uint16(len(comps)),
	}
	for range comps {
		siz = append(siz, []byte{7, 1, 1})
	}
	putSeg(&buf, codestream.SIZ, siz...)
	scod := uint8(0)
	if p.sop {
		scod |= codestream.CodingStyleSOP
	}
	if p.eph {
		scod |= codestream.CodingStyleEPH
	}
	putSeg(&buf, codestream.COD, scod, uint8(codestream.LRCP), uint16(len(comps[0])), uint8(0),
		uint8(0), uint8(4), uint8(4), uint8(0), uint8(codestream.FilterReversible53))
	putSeg(&buf, codestream.QCD, uint8(0x40), []byte{0x48})
	return &buf
}

// fill returns the data of layer l of component 0 of tile t.
func fill(t, l, n int) []byte {
	return fillComp(t, l, 0, n)
}

func fillComp(t, l, c, n int) []byte {
	return bytes.Repeat([]byte{byte(t*16 + c*4 + l + 1)}, n)
}

// packets encodes the packets of tile t.
func (p testStream) packets(t int) []testPacket {
	comps := p.compLayers()
	lblock := make([]int, len(comps))
	included := make([]bool, len(comps))
	for c := range lblock {
		lblock[c] = 3
	}
	var pkts []testPacket
	seq := 0
	for l := range comps[0] {
		for c, layers := range comps {
			ld := layers[l]
			var pk testPacket
			if p.sop {
				var sop bytes.Buffer
				putSeg(&sop, codestream.SOP, uint16(seq))
				pk.sop = sop.Bytes()
			}
			seq++
			var hdr bytes.Buffer
			w := bio.NewPacketWriter(&hdr)
			if ld.passes == 0 {
				w.WriteBit(0)
			} else {
				w.WriteBit(1)
				if !included[c] {
					// inclusion tag tree: first included in layer l
					w.WriteBits(0, l)
					w.WriteBit(1)
					w.WriteBits(0, p.zbp)
					w.WriteBit(1)
					included[c] = true
				} else {
					w.WriteBit(1)
				}
				writePasses(w, ld.passes)
				nbits := lblock[c] + floorLog2(ld.passes)
				for ld.length >= 1<<nbits {
					w.WriteBit(1)
					lblock[c]++
					nbits++
				}
				w.WriteBit(0)
				w.WriteBits(ld.length, nbits)
				pk.data = fillComp(t, l, c, ld.length)
			}
			w.Flush()
			if p.eph {
				putMarker(&hdr, codestream.EPH)
			}
			pk.hdr = hdr.Bytes()
			pkts = append(pkts, pk)
		}
	}
	return pkts
}

func writePasses(w *bio.PacketWriter, n int) {
	switch {
	case n == 1:
		w.WriteBits(0, 1)
	case n == 2:
		w.WriteBits(0b10, 2)
	case n <= 5:
		w.WriteBits(0b11, 2)
		w.WriteBits(n-3, 2)
	case n <= 36:
		w.WriteBits(0b1111, 4)
		w.WriteBits(n-6, 5)
	default:
		w.WriteBits(0b1111, 4)
		w.WriteBits(0b11111, 5)
		w.WriteBits(n-37, 7)
	}
}

func floorLog2(v int) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// build writes the codestream.
func (p testStream) build() built {
	var b built
	var tiles bytes.Buffer
	var ppm bytes.Buffer
	parts := max(p.parts, 1)
	nt := ((p.w + p.tw - 1) / p.tw) * ((p.h + p.th - 1) / p.th)
	for t := 0; t < nt; t++ {
		pkts := p.packets(t)
		var lens, hls []int64
		for _, pk := range pkts {
			n := len(pk.sop) + len(pk.data)
			if !p.packed() {
				n += len(pk.hdr)
			}
			lens = append(lens, int64(n))
			hls = append(hls, int64(len(pk.hdr)))
		}
		b.packets = append(b.packets, lens)
		b.headers = append(b.headers, hls)

		per := (len(pkts) + parts - 1) / parts
		for tp := 0; tp < parts; tp++ {
			var hdrs, body bytes.Buffer
			for i := tp * per; i < min((tp+1)*per, len(pkts)); i++ {
				pk := pkts[i]
				body.Write(pk.sop)
				if p.packed() {
					hdrs.Write(pk.hdr)
				} else {
					body.Write(pk.hdr)
				}
				body.Write(pk.data)
			}
			var head bytes.Buffer
			switch {
			case p.ppt:
				putSeg(&head, codestream.PPT, uint8(0), hdrs.Bytes())
			case p.ppm:
				binary.Write(&ppm, binary.BigEndian, uint32(hdrs.Len()))
				ppm.Write(hdrs.Bytes())
			}
			putSeg(&tiles, codestream.SOT, uint16(t), uint32(sotLen+head.Len()+sodLen+body.Len()), uint8(tp), uint8(parts))
			tiles.Write(head.Bytes())
			putMarker(&tiles, codestream.SOD)
			tiles.Write(body.Bytes())
		}
	}
	buf := p.mainHeader()
	if p.ppm {
		putSeg(buf, codestream.PPM, uint8(0), ppm.Bytes())
	}
	b.mainLen = int64(buf.Len())
	buf.Write(tiles.Bytes())
	if !p.noEOC {
		putMarker(buf, codestream.EOC)
	}
	b.data = buf.Bytes()
	return b
}

// open opens data with cfg, logging to a test hook.
func open(t *testing.T, data []byte, cfg Config) (*Reader, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg.Logger = logger
	r, err := Open(bytes.NewReader(data), cfg)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, hook
}

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
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

// llBlock returns the code-block of the LL band of component 0 over the
// given layers.
func llBlock(t *testing.T, r *Reader, first, n int) *DecLyrdCBlk {
	t.Helper()
	sbs := r.Subbands(0)
	if len(sbs) == 0 {
		t.Fatal("Subbands(0) is empty")
	}
	cb, err := r.CodeBlock(0, 0, 0, sbs[0], first, n, nil)
	if err != nil {
		t.Fatalf("CodeBlock() error: %v", err)
	}
	return cb
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
