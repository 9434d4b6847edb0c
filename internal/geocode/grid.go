// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package geocode

import (
	"math"
	"strconv"
)

// DefaultGridPrecision keeps two decimal places, roughly 1.1km cells.
const DefaultGridPrecision = 2

// Grid quantizes coordinates into cells so that nearby points share one
// geocode lookup.
type Grid struct {
	precision int
	scale     float64
}

// NewGrid returns a grid keeping precision decimal places.
func NewGrid(precision int) Grid {
	if precision < 0 {
		precision = DefaultGridPrecision
	}
	return Grid{precision: precision, scale: math.Pow(10, float64(precision))}
}

// Cell returns the cell coordinates of (lat, lon).
func (g Grid) Cell(lat, lon float64) (gridLat, gridLon float64) {
	return g.round(lat), g.round(lon)
}

// Key returns the cache key "<gridLat>,<gridLon>" of the cell holding (lat, lon).
func (g Grid) Key(lat, lon float64) string {
	gl, gn := g.Cell(lat, lon)
	return g.CellKey(gl, gn)
}

// CellKey formats already quantized cell coordinates.
func (g Grid) CellKey(gridLat, gridLon float64) string {
	return strconv.FormatFloat(gridLat, 'f', g.precision, 64) + "," +
		strconv.FormatFloat(gridLon, 'f', g.precision, 64)
}

func (g Grid) round(v float64) float64 {
	return math.Round(v*g.scale) / g.scale
}

// ValidCoordinate reports whether (lat, lon) is a usable WGS84 point. The
// TeslaMate API reports 0,0 for positions it never resolved.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
