package office

import (
	"math/rand/v2"
	"slices"
	"unicode/utf8"
)

const (
	MapCols = 26
	MapRows = 18

	// ProximityRange is the Manhattan distance inside which peers count as nearby.
	ProximityRange = 3
	VideoRange     = 2

	PaletteCount = 12
)

// Tile kinds of the office floor plan.
const (
	TileFloor = iota
	TileWall
	TileDesk
	TileBigPlant
	TileMeeting
	TileKitchen
	TileSofa
	TileWhiteboard
	TileDoor
	TileServer
	TileBookshelf
	TileCarpet
	TileRug
	TileCoffee
	TileWaterCooler
	TilePrinter
	TileSmallPlant
	TileLamp
)

var floorPlan = [MapRows][MapCols]int{
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	{1, 11, 11, 11, 11, 11, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 12, 12, 12, 12, 0, 0, 1},
	{1, 11, 2, 0, 2, 11, 0, 1, 0, 16, 0, 0, 0, 0, 16, 0, 1, 0, 0, 4, 4, 4, 12, 0, 0, 1},
	{1, 11, 0, 0, 0, 11, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 8, 0, 0, 4, 4, 4, 12, 7, 0, 1},
	{1, 11, 2, 0, 2, 11, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 12, 12, 12, 12, 0, 0, 1},
	{1, 11, 11, 11, 11, 11, 3, 1, 0, 0, 17, 0, 0, 3, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 16, 1},
	{1, 1, 1, 8, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 8, 1, 1, 1, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 17, 0, 0, 0, 0, 0, 0, 0, 15, 0, 0, 0, 0, 0, 0, 0, 0, 17, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 1, 1, 8, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 8, 1, 1, 1, 1, 1, 1},
	{1, 12, 12, 12, 12, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 11, 11, 11, 11, 11, 0, 1},
	{1, 12, 6, 6, 12, 0, 0, 1, 0, 0, 16, 0, 0, 0, 16, 0, 1, 0, 0, 11, 5, 5, 13, 11, 0, 1},
	{1, 12, 6, 6, 12, 0, 10, 8, 0, 0, 0, 0, 3, 0, 0, 0, 8, 0, 0, 11, 5, 14, 0, 11, 0, 1},
	{1, 12, 12, 12, 12, 3, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 11, 0, 0, 9, 11, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1, 0, 17, 0, 0, 0, 0, 17, 0, 1, 0, 0, 11, 11, 11, 11, 11, 16, 1},
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
}

// Tile returns the tile kind at x,y and false when the point is off the map.
func Tile(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= MapCols || y >= MapRows {
		return 0, false
	}
	return floorPlan[y][x], true
}

// CanWalk reports whether a participant may stand on x,y.
func CanWalk(x, y int) bool {
	t, ok := Tile(x, y)
	if !ok {
		return false
	}
	switch t {
	case TileFloor, TileDoor, TileCarpet, TileRug:
		return true
	}
	return false
}

// Point is a tile coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance is the Manhattan distance between two tiles.
func Distance(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Area is a named rectangle of the floor plan.
type Area struct {
	Id    string
	Label string
	X, Y  int
	W, H  int
}

// Contains reports whether x,y falls inside the area.
func (a Area) Contains(x, y int) bool {
	return x >= a.X && x < a.X+a.W && y >= a.Y && y < a.Y+a.H
}

var Areas = []Area{
	{Id: "dev", Label: "Engenharia", X: 1, Y: 1, W: 6, H: 5},
	{Id: "open", Label: "Open Space", X: 8, Y: 1, W: 8, H: 5},
	{Id: "meeting", Label: "War Room", X: 17, Y: 1, W: 8, H: 5},
	{Id: "hall", Label: "Hall Central", X: 1, Y: 7, W: 24, H: 4},
	{Id: "lounge", Label: "Lounge", X: 1, Y: 12, W: 6, H: 5},
	{Id: "corridor2", Label: "Corredor Sul", X: 8, Y: 12, W: 8, H: 5},
	{Id: "kitchen", Label: "Copa & Infra", X: 17, Y: 12, W: 8, H: 5},
}

// AreaAt returns the first area containing x,y.
func AreaAt(x, y int) (Area, bool) {
	for _, a := range Areas {
		if a.Contains(x, y) {
			return a, true
		}
	}
	return Area{}, false
}

var SpawnPoints = []Point{
	{X: 12, Y: 8}, {X: 13, Y: 8}, {X: 11, Y: 9}, {X: 14, Y: 9}, {X: 10, Y: 8},
	{X: 15, Y: 8}, {X: 12, Y: 9}, {X: 13, Y: 9}, {X: 11, Y: 7}, {X: 14, Y: 7},
}

// RandomSpawn picks one of the spawn points.
func RandomSpawn() Point {
	return SpawnPoints[rand.IntN(len(SpawnPoints))]
}

// PaletteIndex derives a stable palette slot from a participant id.
func PaletteIndex(id string) int {
	r, _ := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return 0
	}
	return int(r) % PaletteCount
}

// Nearby returns the ids of peers within rng tiles of self. It is a display
// filter; proximity chat is still delivered to the whole room.
func Nearby(self Point, peers map[string]Snapshot, rng int) []string {
	var ids []string
	for id, p := range peers {
		if Distance(self, Point{X: p.X, Y: p.Y}) <= rng {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
