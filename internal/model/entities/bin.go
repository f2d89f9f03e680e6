package entities

import "math"

// Bin is the fixed geometry of the dustbin the node is mounted on.
type Bin struct {
	HeightCM       float64 `json:"height_cm"`        // sensor to bottom
	DefaultFillPct float64 `json:"default_fill_pct"` // published when no valid reading exists
}

// FillPercent converts a free-air distance into a fill percentage.
// ok is false when d is not inside (0, HeightCM] and the caller must fall back to DefaultFillPct.
func (b Bin) FillPercent(d float64) (pct float64, ok bool) {
	if b.HeightCM <= 0 || d <= 0 || d > b.HeightCM || math.IsNaN(d) {
		return b.DefaultFillPct, false
	}
	pct = (b.HeightCM - d) / b.HeightCM * 100
	return math.Min(100, math.Max(0, pct)), true
}
