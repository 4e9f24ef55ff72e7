package imgdata

import (
	"errors"
	"image"
	"testing"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

func newCanvas(t *testing.T, w, h int, comps ...Component) *Canvas {
	t.Helper()
	cv, err := NewCanvas(0, 0, w, h, comps)
	if err != nil {
		t.Fatal(err)
	}
	return cv
}

func TestCoord_String(t *testing.T) {
	if got := (Coord{3, -4}).String(); got != "(3,-4)" {
		t.Errorf("String() = %q, want (3,-4)", got)
	}
}

func TestCanvas(t *testing.T) {
	cv, err := NewCanvas(3, 1, 10, 7, []Component{{1, 1, 8}, {2, 2, 8}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"CompImgWidth(0)", cv.CompImgWidth(0), 10},
		{"CompImgWidth(1)", cv.CompImgWidth(1), 7 - 2}, // ceil(13/2) - ceil(3/2)
		{"CompImgHeight(1)", cv.CompImgHeight(1), 4 - 1},
		{"CompULX(1)", cv.CompULX(1), 2},
		{"NumTileCount", cv.NumTileCount(), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
	if err := cv.NextTile(); !errors.Is(err, ErrNoMoreTiles) {
		t.Errorf("NextTile() error = %v, want ErrNoMoreTiles", err)
	}
	if err := cv.SetTile(1, 0); !errors.Is(err, codestream.ErrInvalidParam) {
		t.Errorf("SetTile(1, 0) error = %v, want ErrInvalidParam", err)
	}
	if _, err := NewCanvas(0, 0, 4, 4, []Component{{0, 1, 8}}); !errors.Is(err, codestream.ErrInvalidParam) {
		t.Errorf("NewCanvas with zero subsampling error = %v, want ErrInvalidParam", err)
	}
}

func TestAdapter_Forwards(t *testing.T) {
	cv := newCanvas(t, 5, 6, Component{1, 1, 12})
	a := NewAdapter(cv)
	if a.ImgWidth() != 5 || a.ImgHeight() != 6 || a.NomRangeBits(0) != 12 {
		t.Errorf("Adapter did not forward: %dx%d, %d bits", a.ImgWidth(), a.ImgHeight(), a.NomRangeBits(0))
	}
	if a.Source() != ImgData(cv) {
		t.Error("Source() is not the adapted image")
	}
}

func TestNewTiler_Errors(t *testing.T) {
	cv := newCanvas(t, 16, 16, Component{1, 1, 8})
	tests := []struct {
		name                   string
		ax, ay, px, py, nw, nh int
	}{
		{"tiling origin right of image", 2, 2, 3, 0, 8, 8},
		{"tiling origin below image", 2, 2, 0, 3, 8, 8},
		{"first tile misses image", 10, 10, 0, 0, 8, 8},
		{"negative size", 0, 0, 0, 0, -1, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTiler(cv, tt.ax, tt.ay, tt.px, tt.py, tt.nw, tt.nh)
			if !errors.Is(err, codestream.ErrInvalidParam) {
				t.Errorf("NewTiler() error = %v, want ErrInvalidParam", err)
			}
		})
	}

	tiled, err := NewTiler(cv, 0, 0, 0, 0, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTiler(tiled, 0, 0, 0, 0, 2, 2); !errors.Is(err, codestream.ErrInvalidParam) {
		t.Errorf("NewTiler over tiled source error = %v, want ErrInvalidParam", err)
	}
}

func TestTiler_Partition(t *testing.T) {
	tests := []struct {
		name                   string
		w, h                   int
		ax, ay, px, py, nw, nh int
		comps                  []Component
	}{
		{"aligned", 64, 64, 0, 0, 0, 0, 32, 32, []Component{{1, 1, 8}}},
		{"offset image", 37, 23, 5, 3, 2, 1, 8, 7, []Component{{1, 1, 8}, {2, 2, 8}}},
		{"odd subsampling", 50, 41, 7, 9, 0, 4, 13, 11, []Component{{3, 1, 8}, {1, 3, 8}, {2, 5, 8}}},
		{"single tile", 9, 9, 4, 4, 0, 0, 0, 0, []Component{{2, 2, 8}}},
		{"tile larger than image", 9, 5, 1, 1, 1, 1, 100, 100, []Component{{1, 1, 8}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := newCanvas(t, tt.w, tt.h, tt.comps...)
			tl, err := NewTiler(cv, tt.ax, tt.ay, tt.px, tt.py, tt.nw, tt.nh)
			if err != nil {
				t.Fatalf("NewTiler() error: %v", err)
			}
			nt := tl.NumTiles()

			for c := range tt.comps {
				full := image.Rect(0, 0, tl.CompImgWidth(c), tl.CompImgHeight(c))
				covered := make([]int, full.Dx()*full.Dy())

				if err := tl.SetTile(0, 0); err != nil {
					t.Fatal(err)
				}
				rowWidth := make([]int, nt.Y)
				colHeight := make([]int, nt.X)
				for {
					win := tl.CompWindow(c)
					if !win.In(full) {
						t.Fatalf("tile %v component %d window %v outside %v", tl.Tile(), c, win, full)
					}
					if win.Dx() != tl.TileCompWidth(tl.TileIdx(), c) || win.Dy() != tl.TileCompHeight(tl.TileIdx(), c) {
						t.Errorf("tile %v component %d: window %v, size %dx%d", tl.Tile(), c, win,
							tl.TileCompWidth(tl.TileIdx(), c), tl.TileCompHeight(tl.TileIdx(), c))
					}
					for y := win.Min.Y; y < win.Max.Y; y++ {
						for x := win.Min.X; x < win.Max.X; x++ {
							covered[y*full.Dx()+x]++
						}
					}
					tc := tl.Tile()
					rowWidth[tc.Y] += win.Dx()
					colHeight[tc.X] += win.Dy()
					if err := tl.NextTile(); err != nil {
						if !errors.Is(err, ErrNoMoreTiles) {
							t.Fatal(err)
						}
						break
					}
				}
				for i, n := range covered {
					if n != 1 {
						t.Fatalf("component %d sample %d covered %d times", c, i, n)
					}
				}
				for y, w := range rowWidth {
					if w != full.Dx() {
						t.Errorf("component %d tile row %d width %d, want %d", c, y, w, full.Dx())
					}
				}
				for x, h := range colHeight {
					if h != full.Dy() {
						t.Errorf("component %d tile column %d height %d, want %d", c, x, h, full.Dy())
					}
				}
			}
		})
	}
}

func TestTiler_Navigation(t *testing.T) {
	cv := newCanvas(t, 20, 10, Component{1, 1, 8})
	tl, err := NewTiler(cv, 0, 0, 0, 0, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got := tl.NumTiles(); got != (Coord{3, 2}) {
		t.Fatalf("NumTiles() = %v, want (3,2)", got)
	}
	var seen []int
	for {
		seen = append(seen, tl.TileIdx())
		if err := tl.NextTile(); err != nil {
			break
		}
	}
	if len(seen) != 6 || seen[5] != 5 {
		t.Errorf("visited tiles %v, want 0..5", seen)
	}
	if err := tl.SetTile(2, 1); err != nil {
		t.Fatal(err)
	}
	if tl.TileWidth() != 4 || tl.TileHeight() != 2 {
		t.Errorf("last tile = %dx%d, want 4x2", tl.TileWidth(), tl.TileHeight())
	}
	if tl.CompULX(0) != 16 || tl.CompULY(0) != 8 {
		t.Errorf("last tile origin = (%d,%d), want (16,8)", tl.CompULX(0), tl.CompULY(0))
	}
	if err := tl.SetTile(3, 0); !errors.Is(err, codestream.ErrInvalidParam) {
		t.Errorf("SetTile(3, 0) error = %v, want ErrInvalidParam", err)
	}
}
