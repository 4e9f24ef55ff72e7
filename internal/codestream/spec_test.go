package codestream

import "testing"

func TestSpec_Resolve(t *testing.T) {
	s := NewSpec[int]("levels", 3, 2)
	s.SetDefault(5)
	s.SetComp(1, 4)
	s.SetTile(2, 3)
	s.SetTileComp(2, 1, 2)
	s.SetTileComp(0, 0, 1)

	tests := []struct {
		tile, comp int
		want       int
	}{
		{0, 0, 1}, // tile-component
		{0, 1, 4}, // component
		{1, 0, 5}, // default
		{1, 1, 4},
		{2, 0, 3}, // tile
		{2, 1, 2},
	}
	for _, tt := range tests {
		if got := s.Resolve(tt.tile, tt.comp); got != tt.want {
			t.Errorf("Resolve(%d, %d) = %d, want %d", tt.tile, tt.comp, got, tt.want)
		}
	}
	if got := MinInt(s); got != 1 {
		t.Errorf("MinInt() = %d, want 1", got)
	}
	if got := MaxInt(s); got != 5 {
		t.Errorf("MaxInt() = %d, want 5", got)
	}
}

func TestSpec_InForceIgnoresShadowedValues(t *testing.T) {
	s := NewSpec[int]("levels", 2, 1)
	s.SetDefault(7)
	s.SetTile(0, 3)
	s.SetTile(1, 4)
	if got := MaxInt(s); got != 4 {
		t.Errorf("MaxInt() = %d, want 4 (default shadowed by every tile)", got)
	}

	s.SetTileComp(1, 0, 2)
	if got := MaxInt(s); got != 3 {
		t.Errorf("MaxInt() = %d, want 3", got)
	}
	if got := MinInt(s); got != 2 {
		t.Errorf("MinInt() = %d, want 2", got)
	}
}

func TestSpec_ResolveWithoutDefaultPanics(t *testing.T) {
	s := NewSpec[bool]("SOP markers", 1, 1)
	defer func() {
		if recover() == nil {
			t.Error("Resolve() did not panic without a default")
		}
	}()
	s.Resolve(0, 0)
}

func TestDecoderSpec_CheckDefaults(t *testing.T) {
	d := NewDecoderSpec(1, 1)
	if err := d.checkDefaults(); err == nil {
		t.Fatal("checkDefaults() on empty spec returned nil")
	}

	hd, _, _, err := decodeHeader(t, createMinimalCodestream())
	if err != nil {
		t.Fatal(err)
	}
	if err := hd.Spec().checkDefaults(); err != nil {
		t.Errorf("checkDefaults() after main header = %v", err)
	}
	if got := hd.Spec().MinDecompLevels(); got != 5 {
		t.Errorf("MinDecompLevels() = %d, want 5", got)
	}
}
