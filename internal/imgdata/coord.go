package imgdata

import "fmt"

// Coord is a pair of integer coordinates or dimensions.
type Coord struct {
	X, Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}
