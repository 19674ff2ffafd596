package netatmo

import (
	"math"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
)

// edgeEpsilon absorbs float error when a region is an exact multiple of the
// window size. It matches the precision of domain.RoundCoordinate.
const edgeEpsilon = 1e-7

// GridWindows tiles a region into square windows of Size degrees, row by row
// from the south-west corner. Tiles on the north and east edges are clipped
// to the region. Neighbouring tiles share their edges, which are rounded the
// same way station coordinates are.
type GridWindows struct {
	Size float64
}

// Windows implements pipeline.WindowCalculator.
func (g GridWindows) Windows(region domain.Region) []domain.Window {
	if g.Size <= 0 {
		return []domain.Window{region}
	}

	rows := steps(region.North-region.South, g.Size)
	cols := steps(region.East-region.West, g.Size)

	windows := make([]domain.Window, 0, rows*cols)
	for r := range rows {
		south := edge(region.South, r, g.Size, region.North)
		north := edge(region.South, r+1, g.Size, region.North)
		for c := range cols {
			windows = append(windows, domain.Window{
				North: north,
				South: south,
				West:  edge(region.West, c, g.Size, region.East),
				East:  edge(region.West, c+1, g.Size, region.East),
			})
		}
	}
	return windows
}

func steps(span, size float64) int {
	n := int(math.Ceil(span/size - edgeEpsilon))
	return max(n, 1)
}

func edge(origin float64, i int, size, limit float64) float64 {
	v := origin + float64(i)*size
	if v >= limit-edgeEpsilon {
		return limit
	}
	return domain.RoundCoordinate(v)
}
