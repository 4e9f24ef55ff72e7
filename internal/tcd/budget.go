package tcd

// RateBudget carries the byte accounting of a codestream read at a target
// rate. Target is the total budget, Accounted the bytes consumed so far
// and Tile the bytes still available to each tile's packet data.
type RateBudget struct {
	Target    int64
	Accounted int64
	Tile      []int64

	backup  []int64
	carry   []int64
	settled []bool
}

// NewRateBudget returns a budget of target bytes for nTiles tiles.
func NewRateBudget(target int64, nTiles int) *RateBudget {
	return &RateBudget{
		Target:  target,
		Tile:    make([]int64, nTiles),
		backup:  make([]int64, nTiles),
		carry:   make([]int64, nTiles),
		settled: make([]bool, nTiles),
	}
}

// Take charges n bytes to tile t. It returns false, leaving the budget
// untouched, when the tile has fewer than n bytes left.
func (b *RateBudget) Take(t int, n int64) bool {
	if n > b.Tile[t] {
		return false
	}
	b.Tile[t] -= n
	return true
}

// Backup records the per-tile budgets as allocated.
func (b *RateBudget) Backup() {
	copy(b.backup, b.Tile)
}

// Restore resets tile t to its allocated budget plus whatever the previous
// tile handed on, and returns it.
func (b *RateBudget) Restore(t int) int64 {
	b.Tile[t] = b.backup[t] + b.carry[t]
	return b.Tile[t]
}

// Allocated returns the budget allocated to tile t.
func (b *RateBudget) Allocated(t int) int64 { return b.backup[t] }

// Settle accounts the bytes tile t consumed out of its starting budget.
// Each tile is accounted once, however often it is parsed.
func (b *RateBudget) Settle(t int, start int64) {
	if b.settled[t] {
		return
	}
	b.settled[t] = true
	b.Accounted += start - b.Tile[t]
}

// CarryOver hands the unused budget of tile t to tile t+1.
func (b *RateBudget) CarryOver(t int) {
	if t+1 < len(b.carry) {
		b.carry[t+1] = b.Tile[t]
	}
}
