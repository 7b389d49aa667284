package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Regular Grid Spatial Partition
//
// An uniformely sub-divided grid holding horizontal quads.
// The particularities are:
//  - the grid has a resolution that defines how large a cell is. For example,
//    a resolution of 1 will make each cell hold a 1x1 meter subdivision of the terrain.
//  - Because we are currently only holding horizontal planes, this becomes a 2D partition
//    over x and z. Quads are referenced by every cell they cover.
//  - The grid grows to fit inserted quads; it never shrinks.

const MergeEpsilon = 0.6

// DebugInfo describes the grid layout and occupancy.
type DebugInfo struct {
	Resolution float64    `json:"resolution"`
	RowCount   int        `json:"row_count"`
	ColCount   int        `json:"col_count"`
	PlaneCount uint32     `json:"plane_count"`
	MergeCount uint32     `json:"merge_count"`
	MinPoint   mgl64.Vec3 `json:"min_point"`
	MaxPoint   mgl64.Vec3 `json:"max_point"`
	Occupancy  []int      `json:"occupancy"`
}

type RegularGrid struct {
	Resolution float64
	PlaneCount uint32
	MergeCount uint32
	Min        mgl64.Vec3
	Max        mgl64.Vec3

	// Grid is indexed by row (z) then column (x).
	Grid [][][]*Quad
}

func NewRegularGrid(numCols, numRows int, resolution float64) *RegularGrid {
	if numCols <= 0 {
		numCols = 1
	}
	if numRows <= 0 {
		numRows = 1
	}
	if resolution <= 0 {
		resolution = 1
	}

	grid := &RegularGrid{
		Resolution: resolution,
		Min:        mgl64.Vec3{0, 0, 0},
		Max:        mgl64.Vec3{float64(numCols) * resolution, 0, float64(numRows) * resolution},
		Grid:       make([][][]*Quad, numRows),
	}

	for i := range grid.Grid {
		grid.Grid[i] = make([][]*Quad, numCols)
	}
	return grid
}

func (grid *RegularGrid) rows() int {
	return len(grid.Grid)
}

func (grid *RegularGrid) cols() int {
	return len(grid.Grid[0])
}

// cellOf returns the unclamped column and row containing p.
func (grid *RegularGrid) cellOf(p mgl64.Vec3) (int, int) {
	col := int(math.Floor((p.X() - grid.Min.X()) / grid.Resolution))
	row := int(math.Floor((p.Z() - grid.Min.Z()) / grid.Resolution))
	return col, row
}

func (grid *RegularGrid) clampCell(col, row int) (int, int) {
	return min(max(col, 0), grid.cols()-1), min(max(row, 0), grid.rows()-1)
}

// cellRange returns the clamped cell bounds covering [minPoint, maxPoint].
func (grid *RegularGrid) cellRange(minPoint, maxPoint mgl64.Vec3) (minCol, minRow, maxCol, maxRow int) {
	minCol, minRow = grid.clampCell(grid.cellOf(minPoint))
	maxCol, maxRow = grid.clampCell(grid.cellOf(maxPoint))
	return minCol, minRow, maxCol, maxRow
}

// InsertQuad adds q to the grid and returns the stored quad. When an existing
// quad overlaps q horizontally and lies within MergeEpsilon vertically, q is
// merged into it instead.
func (grid *RegularGrid) InsertQuad(q Quad) *Quad {
	if q.Normal == (mgl64.Vec3{}) {
		q.Normal = calculateNormal(q.Center, q.Extents)
	}

	// fit the min & max:
	minPoint, maxPoint := q.Min(), q.Max()
	grid.ExpandToFitPoint(minPoint)
	grid.ExpandToFitPoint(maxPoint)

	if existing := grid.mergeCandidate(q); existing != nil {
		grid.mergeQuads(existing, q)
		return existing
	}

	stored := &q
	grid.link(stored)
	grid.PlaneCount++
	return stored
}

// mergeCandidate returns the closest quad, in y, that q should be merged into.
func (grid *RegularGrid) mergeCandidate(q Quad) *Quad {
	var candidate *Quad
	bestDelta := math.Inf(1)

	minCol, minRow, maxCol, maxRow := grid.cellRange(q.Min(), q.Max())
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, existing := range grid.Grid[row][col] {
				delta := math.Abs(existing.Center.Y() - q.Center.Y())
				if delta > MergeEpsilon || delta >= bestDelta {
					continue
				}
				if !doHorizontalPlanesOverlap(*existing, q) {
					continue
				}
				candidate = existing
				bestDelta = delta
			}
		}
	}
	return candidate
}

func (grid *RegularGrid) link(q *Quad) {
	minCol, minRow, maxCol, maxRow := grid.cellRange(q.Min(), q.Max())
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			grid.Grid[row][col] = append(grid.Grid[row][col], q)
		}
	}
}

func (grid *RegularGrid) unlink(q *Quad) {
	minCol, minRow, maxCol, maxRow := grid.cellRange(q.Min(), q.Max())
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			grid.removeQuadFromCell(q, col, row)
		}
	}
}

func (grid *RegularGrid) removeQuadFromCell(toRemove *Quad, col, row int) {
	cell := grid.Grid[row][col]
	for i, q := range cell {
		if q == toRemove {
			cell[i] = cell[len(cell)-1]
			cell[len(cell)-1] = nil
			grid.Grid[row][col] = cell[:len(cell)-1]
			return
		}
	}
}

// mergeQuads moves the existing quad a fifth of the way towards the new one.
func (grid *RegularGrid) mergeQuads(existing *Quad, newQuad Quad) {
	grid.unlink(existing)

	centerDiff := newQuad.Center.Sub(existing.Center)
	extentsDiff := newQuad.Extents.Sub(existing.Extents)
	existing.Center = existing.Center.Add(centerDiff.Mul(0.2))
	existing.Extents = existing.Extents.Add(extentsDiff.Mul(0.2))
	existing.Normal = calculateNormal(existing.Center, existing.Extents)

	grid.ExpandToFitPoint(existing.Min())
	grid.ExpandToFitPoint(existing.Max())
	grid.link(existing)

	existing.MergeCount++
	grid.MergeCount++
}

// IntersectQuad returns the first quad hit by r in the first cell holding a
// hit, with the ray parameter of the hit. It returns nil and -1 when nothing
// is hit.
func (grid *RegularGrid) IntersectQuad(r Ray) (*Quad, float64) {
	for _, c := range grid.traversedCells(r) {
		tMin := math.Inf(1)
		var resultQuad *Quad

		for _, q := range grid.Grid[c[1]][c[0]] {
			hit, t := IntersectQuad(r, *q)
			if hit && t < tMin {
				tMin = t
				resultQuad = q
			}
		}

		if resultQuad != nil {
			return resultQuad, tMin
		}
	}
	return nil, -1
}

// traversedCells returns, in ray order, the in-bounds cells crossed by the
// horizontal projection of r.
func (grid *RegularGrid) traversedCells(r Ray) [][2]int {
	// discard y for a simplified cast:
	from := mgl64.Vec3{r.From.X(), 0, r.From.Z()}
	to := mgl64.Vec3{r.To.X(), 0, r.To.Z()}
	length := to.Sub(from).Len()

	// check for single cell hit to avoid the extra computations:
	steps := int(math.Ceil(length/(grid.Resolution/4))) + 1
	if length == 0 {
		steps = 1
	}

	var cells [][2]int
	last := [2]int{-1, -1}
	for i := 0; i < steps; i++ {
		t := 0.0
		if steps > 1 {
			t = float64(i) / float64(steps-1)
		}

		p := from.Add(to.Sub(from).Mul(t))
		col, row := grid.cellOf(p)
		if col < 0 || row < 0 || col >= grid.cols() || row >= grid.rows() {
			continue
		}

		if c := [2]int{col, row}; c != last {
			cells = append(cells, c)
			last = c
		}
	}
	return cells
}

// GetRegion returns the quads covering the horizontal region between
// minPoint and maxPoint, in discovery order.
func (grid *RegularGrid) GetRegion(minPoint, maxPoint mgl64.Vec3) []*Quad {
	seen := make(map[*Quad]struct{})
	var quads []*Quad

	minCol, minRow, maxCol, maxRow := grid.cellRange(minPoint, maxPoint)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, q := range grid.Grid[row][col] {
				if _, ok := seen[q]; ok {
					continue
				}
				seen[q] = struct{}{}
				quads = append(quads, q)
			}
		}
	}
	return quads
}

func (grid *RegularGrid) GetDebugInfo() DebugInfo {
	info := DebugInfo{
		Resolution: grid.Resolution,
		RowCount:   grid.rows(),
		ColCount:   grid.cols(),
		PlaneCount: grid.PlaneCount,
		MergeCount: grid.MergeCount,
		MinPoint:   grid.Min,
		MaxPoint:   grid.Max,
		Occupancy:  make([]int, grid.rows()*grid.cols()),
	}

	for row := range grid.Grid {
		for col := range grid.Grid[row] {
			info.Occupancy[row*info.ColCount+col] = len(grid.Grid[row][col])
		}
	}
	return info
}

// NOTE(jhenriques): the cells limits are in the range [0..1[
// meaning, for a resolution of 1, the "unit 1" is in "cell index" 1
func (grid *RegularGrid) ExpandToFitPoint(p mgl64.Vec3) {
	if p.X() >= grid.Min.X() && p.Z() >= grid.Min.Z() && p.X() < grid.Max.X() && p.Z() < grid.Max.Z() {
		return
	}

	// amount of cells to add on each side:
	var left, right, top, bottom int
	if p.X() < grid.Min.X() {
		left = int(math.Ceil((grid.Min.X() - p.X()) / grid.Resolution))
	} else if p.X() >= grid.Max.X() {
		right = int(math.Floor((p.X()-grid.Max.X())/grid.Resolution)) + 1
	}
	if p.Z() < grid.Min.Z() {
		top = int(math.Ceil((grid.Min.Z() - p.Z()) / grid.Resolution))
	} else if p.Z() >= grid.Max.Z() {
		bottom = int(math.Floor((p.Z()-grid.Max.Z())/grid.Resolution)) + 1
	}

	// add columns:
	if left > 0 || right > 0 {
		for i := range grid.Grid {
			row := make([][]*Quad, left, left+len(grid.Grid[i])+right)
			row = append(row, grid.Grid[i]...)
			grid.Grid[i] = append(row, make([][]*Quad, right)...)
		}
		grid.Min[0] -= float64(left) * grid.Resolution
		grid.Max[0] += float64(right) * grid.Resolution
	}

	// add rows:
	if top > 0 || bottom > 0 {
		cols := grid.cols()
		rows := make([][][]*Quad, 0, top+len(grid.Grid)+bottom)
		for i := 0; i < top; i++ {
			rows = append(rows, make([][]*Quad, cols))
		}
		rows = append(rows, grid.Grid...)
		for i := 0; i < bottom; i++ {
			rows = append(rows, make([][]*Quad, cols))
		}
		grid.Grid = rows
		grid.Min[2] -= float64(top) * grid.Resolution
		grid.Max[2] += float64(bottom) * grid.Resolution
	}
}
