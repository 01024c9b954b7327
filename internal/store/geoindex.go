package store

import (
	"math"

	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
	"github.com/mmcloughlin/geohash"
)

const (
	maxCellPrecision = 7
	kmPerDegree      = utils.EarthRadiusKm * math.Pi / 180
)

// cellIndex buckets ids into geohash cells at every precision from 1 to
// maxCellPrecision. A radius query reads the center cell and its eight
// neighbours at the finest precision whose cells are at least as large as
// the radius, so no point within the radius can be missed.
// Not safe for concurrent use; owners guard it with their own mutex.
type cellIndex struct {
	cells map[uint]map[string]map[string]struct{}
}

func newCellIndex() *cellIndex {
	ix := &cellIndex{cells: make(map[uint]map[string]map[string]struct{}, maxCellPrecision)}
	for p := uint(1); p <= maxCellPrecision; p++ {
		ix.cells[p] = make(map[string]map[string]struct{})
	}
	return ix
}

func (ix *cellIndex) add(id string, lat, lng float64) {
	hash := geohash.EncodeWithPrecision(lat, lng, maxCellPrecision)
	for p := uint(1); p <= maxCellPrecision; p++ {
		cell := hash[:p]
		ids, ok := ix.cells[p][cell]
		if !ok {
			ids = make(map[string]struct{})
			ix.cells[p][cell] = ids
		}
		ids[id] = struct{}{}
	}
}

func (ix *cellIndex) remove(id string, lat, lng float64) {
	hash := geohash.EncodeWithPrecision(lat, lng, maxCellPrecision)
	for p := uint(1); p <= maxCellPrecision; p++ {
		cell := hash[:p]
		if ids, ok := ix.cells[p][cell]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(ix.cells[p], cell)
			}
		}
	}
}

// candidates returns the ids that may lie within radiusKm of the center.
// ok is false when no precision covers the radius and the caller has to
// scan everything instead.
func (ix *cellIndex) candidates(lat, lng, radiusKm float64) (ids map[string]struct{}, ok bool) {
	p, ok := precisionFor(lat, radiusKm)
	if !ok {
		return nil, false
	}

	center := geohash.EncodeWithPrecision(lat, lng, p)
	ids = make(map[string]struct{})
	for _, cell := range append(geohash.Neighbors(center), center) {
		for id := range ix.cells[p][cell] {
			ids[id] = struct{}{}
		}
	}
	return ids, true
}

func precisionFor(lat, radiusKm float64) (uint, bool) {
	if radiusKm < 0 || math.IsNaN(radiusKm) {
		return 0, false
	}
	// the search circle reaches over a pole, neighbours stop being adjacent
	if math.Abs(lat)+radiusKm/kmPerDegree >= 90 {
		return 0, false
	}

	for p := uint(maxCellPrecision); p >= 1; p-- {
		heightKm, widthKm := cellSizeKm(p, lat)
		if math.Min(heightKm, widthKm) >= radiusKm {
			return p, true
		}
	}
	return 0, false
}

// cellSizeKm returns the size of a geohash cell of precision p at lat.
func cellSizeKm(p uint, lat float64) (heightKm, widthKm float64) {
	bits := 5 * p
	latBits := bits / 2
	lngBits := bits - latBits

	latDeg := 180 / math.Pow(2, float64(latBits))
	lngDeg := 360 / math.Pow(2, float64(lngBits))

	// cells are narrowest on their poleward edge
	edgeLat := math.Min(90, math.Abs(lat)+latDeg)
	return latDeg * kmPerDegree, lngDeg * kmPerDegree * math.Cos(edgeLat*math.Pi/180)
}
