package tcd

import (
	"errors"
	"testing"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// walkAll collects the packets of every progression change of tile.
func walkAll(t *testing.T, tile *Tile) []Packet {
	t.Helper()
	w := NewWalker(tile)
	var got []Packet
	for _, ch := range w.Changes() {
		_, err := w.Walk(ch, func(p Packet) (bool, error) {
			got = append(got, p)
			return false, nil
		})
		if err != nil {
			t.Fatalf("Walk() error: %v", err)
		}
	}
	return got
}

// expectedPackets counts the packets of tile.
func expectedPackets(tile *Tile) int {
	n := 0
	for _, tc := range tile.Components {
		for _, res := range tc.Resolutions {
			n += res.NumPrecincts()
		}
	}
	return n * tile.Layers
}

func checkComplete(t *testing.T, tile *Tile, got []Packet) {
	t.Helper()
	seen := make(map[Packet]bool)
	next := make(map[precKey]int)
	for _, p := range got {
		if seen[p] {
			t.Fatalf("packet %+v visited twice", p)
		}
		seen[p] = true
		k := precKey{p.Component, p.Resolution, p.Precinct}
		if p.Layer != next[k] {
			t.Fatalf("packet %+v: layer out of order, want %d", p, next[k])
		}
		next[k]++
		if p.Resolution > tile.Components[p.Component].Levels {
			t.Fatalf("packet %+v: resolution beyond component levels", p)
		}
	}
	if want := expectedPackets(tile); len(got) != want {
		t.Fatalf("visited %d packets; want %d", len(got), want)
	}
}

func TestWalker_Orders(t *testing.T) {
	base := tileParams{
		x0: 3, y0: 2, x1: 61, y1: 45,
		subs:      []int{1, 2, 1},
		levels:    2,
		layers:    3,
		precincts: []codestream.PrecinctSize{{WidthExp: 2, HeightExp: 2}, {WidthExp: 3, HeightExp: 2}, {WidthExp: 3, HeightExp: 3}},
	}

	// Monotone key per order: the outermost loop variable must never
	// decrease.
	outer := map[codestream.ProgressionOrder]func(Packet) int{
		codestream.LRCP: func(p Packet) int { return p.Layer },
		codestream.RLCP: func(p Packet) int { return p.Resolution },
		codestream.RPCL: func(p Packet) int { return p.Resolution },
		codestream.CPRL: func(p Packet) int { return p.Component },
	}

	sequences := make(map[codestream.ProgressionOrder][]Packet)
	for _, order := range []codestream.ProgressionOrder{codestream.LRCP, codestream.RLCP, codestream.RPCL, codestream.PCRL, codestream.CPRL} {
		t.Run(order.String(), func(t *testing.T) {
			p := base
			p.order = order
			tile := newTestTile(t, p)
			got := walkAll(t, tile)
			checkComplete(t, tile, got)
			if key, ok := outer[order]; ok {
				for i := 1; i < len(got); i++ {
					if key(got[i]) < key(got[i-1]) {
						t.Fatalf("packet %d %+v goes back after %+v", i, got[i], got[i-1])
					}
				}
			}
			sequences[order] = got
		})
	}

	same := func(a, b []Packet) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	if same(sequences[codestream.LRCP], sequences[codestream.RLCP]) {
		t.Error("LRCP and RLCP visit packets in the same order")
	}
	if same(sequences[codestream.RPCL], sequences[codestream.PCRL]) {
		t.Error("RPCL and PCRL visit packets in the same order")
	}
}

func TestWalker_LRCPSequence(t *testing.T) {
	tile := newTestTile(t, tileParams{x1: 16, y1: 16, subs: []int{1, 1}, levels: 1, layers: 2, order: codestream.LRCP})
	got := walkAll(t, tile)
	want := []Packet{
		{0, 0, 0, 0}, {0, 0, 1, 0}, {0, 1, 0, 0}, {0, 1, 1, 0},
		{1, 0, 0, 0}, {1, 0, 1, 0}, {1, 1, 0, 0}, {1, 1, 1, 0},
	}
	if len(got) != len(want) {
		t.Fatalf("visited %d packets; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("packet %d = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestWalker_ComponentsWithFewerLevels(t *testing.T) {
	p := tileParams{x1: 32, y1: 32, subs: []int{1, 1}, levels: 2, order: codestream.RPCL}.withDefaults()
	sp := p.spec()
	sp.DecompLevels.SetComp(1, 0)
	tile, err := NewTile(p.siz(), sp, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := walkAll(t, tile)
	checkComplete(t, tile, got)
	for _, pk := range got {
		if pk.Component == 1 && pk.Resolution > 0 {
			t.Errorf("visited %+v; component 1 has no such resolution", pk)
		}
	}
}

func TestWalker_ProgressionChanges(t *testing.T) {
	tile := newTestTile(t, tileParams{x1: 32, y1: 32, subs: []int{1, 1}, levels: 2, layers: 2})
	tile.Changes = []codestream.ProgressionChange{
		{Order: codestream.RLCP, LayerEnd: 1, ResEnd: 2, CompEnd: 2},
		{Order: codestream.CPRL, LayerEnd: 2, ResEnd: 3, CompEnd: 2},
	}
	got := walkAll(t, tile)
	checkComplete(t, tile, got)

	// The first change covers layer 0 of resolutions 0 and 1.
	for i := 0; i < 4; i++ {
		if got[i].Layer != 0 || got[i].Resolution > 1 {
			t.Errorf("packet %d = %+v; want layer 0 of resolution 0 or 1", i, got[i])
		}
	}
	// The second one only adds what the first left out.
	for _, pk := range got[4:] {
		if pk.Layer == 0 && pk.Resolution < 2 {
			t.Errorf("packet %+v visited again", pk)
		}
	}
}

func TestWalker_Stop(t *testing.T) {
	tile := newTestTile(t, tileParams{x1: 16, y1: 16, levels: 1, layers: 3})
	w := NewWalker(tile)
	n := 0
	done, err := w.Walk(w.Changes()[0], func(Packet) (bool, error) {
		n++
		return n == 2, nil
	})
	if !done || err != nil || n != 2 {
		t.Errorf("Walk() = %v, %v after %d packets; want true, nil after 2", done, err, n)
	}

	boom := errors.New("boom")
	w = NewWalker(tile)
	if _, err := w.Walk(w.Changes()[0], func(Packet) (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Errorf("Walk() error = %v; want %v", err, boom)
	}
}

func TestWalker_UnknownOrder(t *testing.T) {
	tile := newTestTile(t, tileParams{x1: 16, y1: 16})
	w := NewWalker(tile)
	_, err := w.Walk(codestream.ProgressionChange{Order: 9, LayerEnd: 1, ResEnd: 1, CompEnd: 1}, func(Packet) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, codestream.ErrCorrupted) {
		t.Errorf("Walk() error = %v; want ErrCorrupted", err)
	}
}
