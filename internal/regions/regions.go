/**
 * Region Catalog - Screen regions of interest for frame analysis
 *
 * Declares the fixed set of data types a region may contain, the OCR
 * character whitelist per type, and the ordered catalogs of regions.
 */

package regions

import "fmt"

// NormalizedWidth and NormalizedHeight define the frame every region's
// bounds are expressed in. Frames are scaled to this size before cropping.
const (
	NormalizedWidth  = 1920
	NormalizedHeight = 1080
)

// DataType is the kind of value a region is expected to contain
type DataType string

const (
	DataTypeTime   DataType = "time"
	DataTypeNumber DataType = "number"
	DataTypeText   DataType = "text"
	DataTypeGold   DataType = "gold"
)

// DataTypes lists every supported data type
var DataTypes = []DataType{DataTypeTime, DataTypeNumber, DataTypeText, DataTypeGold}

var whitelists = map[DataType]string{
	DataTypeTime:   "1234567890:",
	DataTypeNumber: "1234567890",
	DataTypeText:   "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
	DataTypeGold:   "1234567890.k",
}

// Whitelist returns the characters the OCR engine may recognize for t.
// Unknown types get an empty whitelist, which leaves the engine unrestricted.
func Whitelist(t DataType) string {
	return whitelists[t]
}

// Valid reports whether t is one of the supported data types
func (t DataType) Valid() bool {
	_, ok := whitelists[t]
	return ok
}

// BoundingBox is a rectangle in the normalized frame
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Region is a named screen area expected to hold one piece of information
type Region struct {
	Name   string
	Bounds BoundingBox
	Type   DataType
}

// Catalog is an ordered, read-only list of regions.
// The order of Regions determines the order of analysis results.
type Catalog struct {
	name    string
	regions []Region
}

// NewCatalog builds a catalog from regions. The slice is copied, so later
// changes by the caller do not leak into the catalog.
func NewCatalog(name string, regions ...Region) *Catalog {
	copied := make([]Region, len(regions))
	copy(copied, regions)
	return &Catalog{name: name, regions: copied}
}

// Name returns the catalog's identifier
func (c *Catalog) Name() string {
	return c.name
}

// Len returns the number of regions
func (c *Catalog) Len() int {
	return len(c.regions)
}

// Regions returns a copy of the regions in catalog order
func (c *Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// LoLTournament is the League of Legends tournament broadcast overlay
var LoLTournament = NewCatalog("lol-tournament",
	Region{Name: "Time", Bounds: BoundingBox{X: 930, Y: 75, Width: 100, Height: 25}, Type: DataTypeTime},
	Region{Name: "Kills: Blue team", Bounds: BoundingBox{X: 910, Y: 5, Width: 40, Height: 60}, Type: DataTypeNumber},
	Region{Name: "Kills: Red team", Bounds: BoundingBox{X: 985, Y: 5, Width: 40, Height: 60}, Type: DataTypeNumber},
	Region{Name: "Gold: Blue team", Bounds: BoundingBox{X: 760, Y: 5, Width: 85, Height: 35}, Type: DataTypeGold},
	Region{Name: "Gold: Red team", Bounds: BoundingBox{X: 1140, Y: 5, Width: 85, Height: 35}, Type: DataTypeGold},
	Region{Name: "Name: Blue team", Bounds: BoundingBox{X: 450, Y: 5, Width: 120, Height: 35}, Type: DataTypeText},
	Region{Name: "Name: Red team", Bounds: BoundingBox{X: 1350, Y: 5, Width: 120, Height: 35}, Type: DataTypeText},
)

var catalogs = map[string]*Catalog{
	LoLTournament.Name(): LoLTournament,
}

// Lookup returns the built-in catalog with the given name
func Lookup(name string) (*Catalog, error) {
	c, ok := catalogs[name]
	if !ok {
		return nil, fmt.Errorf("unknown region catalog: %q", name)
	}
	return c, nil
}
