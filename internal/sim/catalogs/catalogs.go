package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Eraser is the catalog id of the remove tool. It is registered with cost 0
// and is never stored on a tile.
const Eraser = "NONE"

// Placement classes.
type Class string

const (
	ClassEraser    Class = "eraser"
	ClassFloor     Class = "floor"
	ClassWall      Class = "wall"
	ClassSurface   Class = "surface"   // can host one stacked item
	ClassStackable Class = "stackable" // may sit on the floor or on a surface
)

var ErrUnknownFurniture = errors.New("unknown furniture")

//go:embed furniture.json
var defaultFurnitureJSON []byte

type FurnitureDef struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Cost         int    `json:"cost"`
	StyleYield   int    `json:"style_yield"`
	ComfortYield int    `json:"comfort_yield,omitempty"`
	Class        Class  `json:"class"`
}

func (d FurnitureDef) Surface() bool   { return d.Class == ClassSurface }
func (d FurnitureDef) Stackable() bool { return d.Class == ClassStackable }

// Catalog is read-only after construction.
type Catalog struct {
	Palette []string
	Defs    map[string]FurnitureDef
	Digest  string
}

// Default returns the catalog bundled with the binary.
func Default() *Catalog {
	c, err := Parse(defaultFurnitureJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded furniture.json: %v", err))
	}
	return c
}

// Load reads a furniture catalog from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var defs []FurnitureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("furniture.json: %w", err)
	}
	c := &Catalog{
		Defs:   make(map[string]FurnitureDef, len(defs)),
		Digest: sha256Hex(raw),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("furniture.json: empty id")
		}
		if d.Cost < 0 {
			return nil, fmt.Errorf("furniture.json: %s: negative cost", d.ID)
		}
		switch d.Class {
		case ClassEraser, ClassFloor, ClassWall, ClassSurface, ClassStackable:
		default:
			return nil, fmt.Errorf("furniture.json: %s: bad class %q", d.ID, d.Class)
		}
		if _, dup := c.Defs[d.ID]; dup {
			return nil, fmt.Errorf("furniture.json: duplicate id %s", d.ID)
		}
		c.Defs[d.ID] = d
	}

	// The eraser always exists and always costs nothing.
	c.Defs[Eraser] = FurnitureDef{ID: Eraser, Name: "Eraser", Class: ClassEraser}

	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		if id != Eraser {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	c.Palette = append([]string{Eraser}, ids...)
	return c, nil
}

// Lookup returns the definition registered under id.
func (c *Catalog) Lookup(id string) (FurnitureDef, error) {
	d, ok := c.Defs[id]
	if !ok {
		return FurnitureDef{}, fmt.Errorf("%w: %q", ErrUnknownFurniture, id)
	}
	return d, nil
}

// Placeable lists every id except the eraser, in palette order.
func (c *Catalog) Placeable() []string {
	return append([]string(nil), c.Palette[1:]...)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
