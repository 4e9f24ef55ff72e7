package tcd

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/mrjoshuak/go-j2kparse/internal/bio"
)

// tagTreeEncoder is the encoding counterpart of TagTree.
type tagTreeEncoder struct {
	t *TagTree
}

func newTagTreeEncoder(values [][]int) *tagTreeEncoder {
	h, w := len(values), len(values[0])
	t := NewTagTree(w, h)
	for k := range t.state {
		for i := range t.value[k] {
			t.value[k][i] = -1
		}
	}
	for m := 0; m < h; m++ {
		for n := 0; n < w; n++ {
			for k := 0; k < t.levels; k++ {
				idx := (m>>k)*t.levelWidth(k) + n>>k
				if cur := t.value[k][idx]; cur < 0 || values[m][n] < cur {
					t.value[k][idx] = values[m][n]
				}
			}
		}
	}
	return &tagTreeEncoder{t: t}
}

// encode writes the bits telling whether leaf (m, n) is below th.
func (e *tagTreeEncoder) encode(m, n, th int, w *bio.PacketWriter) {
	t := e.t
	k := t.levels - 1
	tmin := t.state[k][0]
	for {
		idx := (m>>k)*t.levelWidth(k) + n>>k
		ts, tv := t.state[k][idx], t.value[k][idx]
		if ts < tmin {
			ts = tmin
		}
		for th > ts {
			if tv > ts {
				w.WriteBit(0)
			} else if tv == ts {
				w.WriteBit(1)
			} else {
				ts = th
				break
			}
			ts++
		}
		t.state[k][idx] = ts
		if k == 0 {
			return
		}
		tmin = min(ts, tv)
		k--
	}
}

func TestNewTagTree_Levels(t *testing.T) {
	tests := []struct {
		w, h   int
		levels int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{2, 2, 2},
		{3, 3, 3},
		{4, 4, 3},
		{5, 1, 4},
		{16, 9, 5},
	}
	for _, tt := range tests {
		tree := NewTagTree(tt.w, tt.h)
		if tree.levels != tt.levels {
			t.Errorf("NewTagTree(%d, %d) levels = %d; want %d", tt.w, tt.h, tree.levels, tt.levels)
		}
		if tree.Width() != tt.w || tree.Height() != tt.h {
			t.Errorf("size = %dx%d; want %dx%d", tree.Width(), tree.Height(), tt.w, tt.h)
		}
	}
}

func TestTagTree_SingleLeaf(t *testing.T) {
	// Value 3: three 0 bits, then a 1.
	var buf bytes.Buffer
	w := bio.NewPacketWriter(&buf)
	w.WriteBits(0b0001, 4)
	w.Flush()

	tree := NewTagTree(1, 1)
	r := bio.NewPacketReader(bytes.NewReader(buf.Bytes()))
	for th := 1; th <= 3; th++ {
		v, err := tree.Update(0, 0, th, r)
		if err != nil {
			t.Fatalf("Update(th=%d) error: %v", th, err)
		}
		if v < th {
			t.Fatalf("Update(th=%d) = %d; want >= %d", th, v, th)
		}
	}
	v, err := tree.Update(0, 0, 4, r)
	if err != nil || v != 3 {
		t.Fatalf("Update(th=4) = %d, %v; want 3", v, err)
	}
	if tree.Value(0, 0) != 3 {
		t.Errorf("Value() = %d; want 3", tree.Value(0, 0))
	}
	// Already known: no more bits needed.
	if v, err := tree.Update(0, 0, 10, r); err != nil || v != 3 {
		t.Errorf("Update(th=10) = %d, %v; want 3", v, err)
	}
}

func TestTagTree_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := [][2]int{{1, 1}, {3, 2}, {4, 4}, {7, 5}, {13, 1}}
	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		values := make([][]int, h)
		for m := range values {
			values[m] = make([]int, w)
			for n := range values[m] {
				values[m][n] = rng.Intn(6)
			}
		}

		// Encode every leaf with growing thresholds, the way successive
		// layers query inclusion.
		var buf bytes.Buffer
		bw := bio.NewPacketWriter(&buf)
		enc := newTagTreeEncoder(values)
		for th := 1; th <= 7; th++ {
			for m := 0; m < h; m++ {
				for n := 0; n < w; n++ {
					enc.encode(m, n, th, bw)
				}
			}
		}
		bw.Flush()

		dec := NewTagTree(w, h)
		br := bio.NewPacketReader(bytes.NewReader(buf.Bytes()))
		for th := 1; th <= 7; th++ {
			for m := 0; m < h; m++ {
				for n := 0; n < w; n++ {
					v, err := dec.Update(m, n, th, br)
					if err != nil {
						t.Fatalf("%dx%d: Update(%d, %d, %d) error: %v", w, h, m, n, th, err)
					}
					want := values[m][n]
					if want < th && v != want {
						t.Errorf("%dx%d: Update(%d, %d, %d) = %d; want %d", w, h, m, n, th, v, want)
					}
					if want >= th && v < th {
						t.Errorf("%dx%d: Update(%d, %d, %d) = %d; want >= %d", w, h, m, n, th, v, th)
					}
				}
			}
		}
	}
}

func TestTagTree_ShortInput(t *testing.T) {
	tree := NewTagTree(2, 2)
	r := bio.NewPacketReader(bytes.NewReader(nil))
	if _, err := tree.Update(0, 0, 1, r); err == nil {
		t.Fatal("Update() on empty input: want error")
	}
}

func TestTagTree_Reset(t *testing.T) {
	tree := NewTagTree(1, 1)
	r := bio.NewPacketReader(bytes.NewReader([]byte{0x80}))
	if v, _ := tree.Update(0, 0, 1, r); v != 0 {
		t.Fatalf("Update() = %d; want 0", v)
	}
	tree.Reset()
	if v := tree.Value(0, 0); v < 1<<30 {
		t.Errorf("Value() after Reset = %d; want unknown", v)
	}
}
