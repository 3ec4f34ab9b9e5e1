// Package grid owns the N×N tile array of a room and the three tile
// mutations a player can make: place, remove and rotate. It knows nothing
// about prices; callers settle the ledger around each mutation.
package grid

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds  = errors.New("tile out of bounds")
	ErrTileOccupied = errors.New("tile occupied")
	ErrTileEmpty    = errors.New("tile empty")
)

// Empty is the occupant value of a free tile.
const Empty = ""

type Tile struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Occupant string `json:"occupant,omitempty"`
	Rotation int    `json:"rotation,omitempty"`

	Stacked         string `json:"stacked,omitempty"`
	StackedRotation int    `json:"stacked_rotation,omitempty"`
}

func (t Tile) IsEmpty() bool { return t.Occupant == Empty }

// Layer selects which item on a tile an operation addresses.
type Layer int

const (
	LayerBase Layer = iota
	LayerStacked
)

type Grid struct {
	size  int
	tiles []Tile // row-major, index = y*size + x
}

func New(size int) *Grid {
	if size <= 0 {
		panic(fmt.Sprintf("grid: bad size %d", size))
	}
	g := &Grid{size: size, tiles: make([]Tile, size*size)}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g.tiles[y*size+x] = Tile{X: x, Y: y}
		}
	}
	return g
}

// FromTiles rebuilds a grid from a saved tile list. Every coordinate must
// appear exactly once.
func FromTiles(size int, tiles []Tile) (*Grid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("grid: bad size %d", size)
	}
	if len(tiles) != size*size {
		return nil, fmt.Errorf("grid: have %d tiles, want %d", len(tiles), size*size)
	}
	g := &Grid{size: size, tiles: make([]Tile, size*size)}
	seen := make([]bool, size*size)
	for _, t := range tiles {
		if !g.InBounds(t.X, t.Y) {
			return nil, fmt.Errorf("grid: %w: (%d,%d)", ErrOutOfBounds, t.X, t.Y)
		}
		i := t.Y*size + t.X
		if seen[i] {
			return nil, fmt.Errorf("grid: duplicate tile (%d,%d)", t.X, t.Y)
		}
		if t.Rotation < 0 || t.Rotation > 3 || t.StackedRotation < 0 || t.StackedRotation > 3 {
			return nil, fmt.Errorf("grid: bad rotation at (%d,%d)", t.X, t.Y)
		}
		if t.Occupant == Empty && t.Stacked != Empty {
			return nil, fmt.Errorf("grid: stacked item without base at (%d,%d)", t.X, t.Y)
		}
		seen[i] = true
		g.tiles[i] = t
	}
	return g, nil
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.size && y < g.size
}

// Tile returns a copy of the tile at (x,y).
func (g *Grid) Tile(x, y int) (Tile, error) {
	t, err := g.at(x, y)
	if err != nil {
		return Tile{}, err
	}
	return *t, nil
}

// Tiles returns a row-major copy of every tile.
func (g *Grid) Tiles() []Tile {
	return append([]Tile(nil), g.tiles...)
}

// Each calls fn for every tile in row-major order without copying the slice.
func (g *Grid) Each(fn func(Tile)) {
	for _, t := range g.tiles {
		fn(t)
	}
}

func (g *Grid) Clone() *Grid {
	return &Grid{size: g.size, tiles: g.Tiles()}
}

// Place puts id on an empty tile with rotation 0.
func (g *Grid) Place(x, y int, id string) error {
	if id == Empty {
		return fmt.Errorf("grid: place empty occupant at (%d,%d)", x, y)
	}
	t, err := g.at(x, y)
	if err != nil {
		return err
	}
	if !t.IsEmpty() {
		return fmt.Errorf("%w: (%d,%d) holds %s", ErrTileOccupied, x, y, t.Occupant)
	}
	t.Occupant = id
	t.Rotation = 0
	return nil
}

// Stack puts id on top of the item occupying (x,y). Whether the pair is
// compatible is the caller's concern.
func (g *Grid) Stack(x, y int, id string) error {
	if id == Empty {
		return fmt.Errorf("grid: stack empty occupant at (%d,%d)", x, y)
	}
	t, err := g.at(x, y)
	if err != nil {
		return err
	}
	if t.IsEmpty() {
		return fmt.Errorf("%w: nothing to stack on at (%d,%d)", ErrTileEmpty, x, y)
	}
	if t.Stacked != Empty {
		return fmt.Errorf("%w: (%d,%d) already stacks %s", ErrTileOccupied, x, y, t.Stacked)
	}
	t.Stacked = id
	t.StackedRotation = 0
	return nil
}

// Remove clears the top-most item at (x,y) and returns its id. A stacked
// item comes off before the item beneath it.
func (g *Grid) Remove(x, y int) (string, error) {
	t, err := g.at(x, y)
	if err != nil {
		return "", err
	}
	if t.Stacked != Empty {
		id := t.Stacked
		t.Stacked = Empty
		t.StackedRotation = 0
		return id, nil
	}
	if t.IsEmpty() {
		return "", fmt.Errorf("%w: (%d,%d)", ErrTileEmpty, x, y)
	}
	id := t.Occupant
	t.Occupant = Empty
	t.Rotation = 0
	return id, nil
}

// Rotate turns the addressed item a quarter turn and returns the new rotation.
func (g *Grid) Rotate(x, y int, layer Layer) (int, error) {
	t, err := g.at(x, y)
	if err != nil {
		return 0, err
	}
	switch layer {
	case LayerStacked:
		if t.Stacked == Empty {
			return 0, fmt.Errorf("%w: no stacked item at (%d,%d)", ErrTileEmpty, x, y)
		}
		t.StackedRotation = (t.StackedRotation + 1) % 4
		return t.StackedRotation, nil
	default:
		if t.IsEmpty() {
			return 0, fmt.Errorf("%w: (%d,%d)", ErrTileEmpty, x, y)
		}
		t.Rotation = (t.Rotation + 1) % 4
		return t.Rotation, nil
	}
}

func (g *Grid) at(x, y int) (*Tile, error) {
	if !g.InBounds(x, y) {
		return nil, fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBounds, x, y, g.size, g.size)
	}
	return &g.tiles[y*g.size+x], nil
}
