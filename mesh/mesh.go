package mesh

import (
	"github.com/notargets/gofv/utils"
)

/*
	Mesh is the read only per epoch view of an unstructured volume mesh
	consumed by the gradient engine. Cells 0..NCells-1 are owned by the
	local rank; indices NCells..NCells+NGhosts-1 are ghost images of
	cells owned elsewhere (or periodic images), kept consistent through
	the Halo.

	Interior faces are oriented: FaceNormal points from FaceCells[0]
	toward FaceCells[1] and carries the face area. Boundary face
	normals point out of the domain.

	FaceGroups and BFaceGroups partition the face ordering into ranges
	such that no two faces inside one range share a cell. Groups are a
	scheduling hint supplied here and consumed opaquely by the engine:
	faces within a group may be processed concurrently, groups are
	processed in order with a barrier between them.
*/
type Mesh struct {
	NCells  int
	NGhosts int

	// Interior faces
	FaceCells  [][2]int
	FaceNormal []utils.Vec3
	FaceCenter []utils.Vec3
	Weight     []float64    // α in v_f ≈ α·v0 + (1-α)·v1
	DOfij      []utils.Vec3 // xf − (α·x0 + (1-α)·x1), skewness offset

	// Boundary faces
	BFaceCell   []int
	BFaceNormal []utils.Vec3
	BFaceCenter []utils.Vec3
	DiipB       []utils.Vec3 // cell center projection to face centroid
	BDist       []float64    // cell center to face distance along the normal

	// Cells
	CellCenter []utils.Vec3 // length NCells+NGhosts
	CellVol    []float64    // length NCells
	Disabled   []bool       // length NCells, solid / porous-excluded

	FaceGroups  [][2]int
	BFaceGroups [][2]int

	// CSR adjacency over owned cells
	CellCellIdx []int
	CellCell    []int
	CellFaceIdx []int
	CellFace    []int // encoded 2*face+side, side 0 when the cell is FaceCells[0]
	CellBFIdx   []int
	CellBF      []int

	// Second ring neighborhood, built on demand by ExtendedNeighbors
	extIdx []int
	ext    []int

	Epoch int

	Halo Halo
	Comm Collective
}

// NTotal is the owned plus ghost cell count, the length of every cell
// indexed value array
func (m *Mesh) NTotal() int { return m.NCells + m.NGhosts }

func (m *Mesh) NFaces() int  { return len(m.FaceCells) }
func (m *Mesh) NBFaces() int { return len(m.BFaceCell) }

// EncodeCellFace packs a face index and the side of the cell in it
func EncodeCellFace(face, side int) int { return 2*face + side }

func DecodeCellFace(code int) (face, side int) {
	return code / 2, code % 2
}

// BuildAdjacency fills the CSR cell to cell, cell to face and cell to
// boundary face maps over owned cells. Ghost neighbors appear in
// CellCell; ghost cells have no rows of their own
func (m *Mesh) BuildAdjacency() {
	var (
		nc     = m.NCells
		counts = make([]int, nc)
	)
	for _, fc := range m.FaceCells {
		if fc[0] < nc {
			counts[fc[0]]++
		}
		if fc[1] < nc {
			counts[fc[1]]++
		}
	}
	m.CellCellIdx = make([]int, nc+1)
	m.CellFaceIdx = make([]int, nc+1)
	for c := 0; c < nc; c++ {
		m.CellCellIdx[c+1] = m.CellCellIdx[c] + counts[c]
		m.CellFaceIdx[c+1] = m.CellFaceIdx[c] + counts[c]
	}
	m.CellCell = make([]int, m.CellCellIdx[nc])
	m.CellFace = make([]int, m.CellFaceIdx[nc])
	pos := make([]int, nc)
	for f, fc := range m.FaceCells {
		if fc[0] < nc {
			p := m.CellCellIdx[fc[0]] + pos[fc[0]]
			m.CellCell[p] = fc[1]
			m.CellFace[p] = EncodeCellFace(f, 0)
			pos[fc[0]]++
		}
		if fc[1] < nc {
			p := m.CellCellIdx[fc[1]] + pos[fc[1]]
			m.CellCell[p] = fc[0]
			m.CellFace[p] = EncodeCellFace(f, 1)
			pos[fc[1]]++
		}
	}
	// Boundary faces
	bCounts := make([]int, nc)
	for _, c := range m.BFaceCell {
		bCounts[c]++
	}
	m.CellBFIdx = make([]int, nc+1)
	for c := 0; c < nc; c++ {
		m.CellBFIdx[c+1] = m.CellBFIdx[c] + bCounts[c]
	}
	m.CellBF = make([]int, m.CellBFIdx[nc])
	bPos := make([]int, nc)
	for f, c := range m.BFaceCell {
		m.CellBF[m.CellBFIdx[c]+bPos[c]] = f
		bPos[c]++
	}
}

// BuildFaceGroups reorders the interior and boundary faces into race
// free groups and records the group ranges. Greedy first-fit: a face
// joins the earliest group in which neither of its cells appears yet
func (m *Mesh) BuildFaceGroups() {
	order, groups := groupFaces(len(m.FaceCells), m.NTotal(), func(f int) (int, int) {
		return m.FaceCells[f][0], m.FaceCells[f][1]
	})
	m.permuteFaces(order)
	m.FaceGroups = groups

	bOrder, bGroups := groupFaces(len(m.BFaceCell), m.NCells, func(f int) (int, int) {
		return m.BFaceCell[f], m.BFaceCell[f]
	})
	m.permuteBFaces(bOrder)
	m.BFaceGroups = bGroups
}

func groupFaces(nFaces, nCells int, cells func(int) (int, int)) (order []int, groups [][2]int) {
	var (
		assigned = make([]bool, nFaces)
		nDone    int
	)
	order = make([]int, 0, nFaces)
	for nDone < nFaces {
		var (
			used  = make([]bool, nCells)
			start = len(order)
		)
		for f := 0; f < nFaces; f++ {
			if assigned[f] {
				continue
			}
			c0, c1 := cells(f)
			if used[c0] || used[c1] {
				continue
			}
			used[c0], used[c1] = true, true
			assigned[f] = true
			order = append(order, f)
			nDone++
		}
		groups = append(groups, [2]int{start, len(order)})
	}
	return
}

func (m *Mesh) permuteFaces(order []int) {
	var (
		fc = make([][2]int, len(order))
		fn = make([]utils.Vec3, len(order))
		fx = make([]utils.Vec3, len(order))
		w  = make([]float64, len(order))
		do = make([]utils.Vec3, len(order))
	)
	for i, f := range order {
		fc[i] = m.FaceCells[f]
		fn[i] = m.FaceNormal[f]
		fx[i] = m.FaceCenter[f]
		w[i] = m.Weight[f]
		do[i] = m.DOfij[f]
	}
	m.FaceCells, m.FaceNormal, m.FaceCenter, m.Weight, m.DOfij = fc, fn, fx, w, do
}

func (m *Mesh) permuteBFaces(order []int) {
	var (
		bc = make([]int, len(order))
		bn = make([]utils.Vec3, len(order))
		bx = make([]utils.Vec3, len(order))
		di = make([]utils.Vec3, len(order))
		bd = make([]float64, len(order))
	)
	for i, f := range order {
		bc[i] = m.BFaceCell[f]
		bn[i] = m.BFaceNormal[f]
		bx[i] = m.BFaceCenter[f]
		di[i] = m.DiipB[f]
		bd[i] = m.BDist[f]
	}
	m.BFaceCell, m.BFaceNormal, m.BFaceCenter, m.DiipB, m.BDist = bc, bn, bx, di, bd
}
