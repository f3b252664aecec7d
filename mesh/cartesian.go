package mesh

import (
	"math"

	"github.com/notargets/gofv/utils"
)

/*
	Hexahedral box mesh builders for the tests and the bench command.

	Skew applies a per layer shear: every node in the z = const plane
	is shifted in x and y by a smooth function of z. All faces remain
	planar (the four nodes of any lateral face span a parallelogram),
	so the triangle decomposed geometry below is exact, while cell
	centers fall off the line joining face centroids - the mesh is
	genuinely non orthogonal and skewed for any Skew != 0.

	StretchZ grades the layer spacing so that face interpolation
	weights differ from one half.
*/
type CartesianOpts struct {
	Lx, Ly, Lz float64
	Skew       float64 // shear amplitude, units of length
	StretchZ   float64 // 0 = uniform, |s| < 1 keeps the map monotone
	PeriodicZ  bool
}

func NewCartesian3D(nx, ny, nz int, opts CartesianOpts) (m *Mesh) {
	var (
		lx, ly, lz = opts.Lx, opts.Ly, opts.Lz
	)
	if lx == 0 {
		lx, ly, lz = 1, 1, 1
	}
	var (
		nnx, nny  = nx + 1, ny + 1
		nodeCoord = make([]utils.Vec3, nnx*nny*(nz+1))
	)
	zOf := func(k int) float64 {
		t := float64(k) / float64(nz)
		return lz * (t + opts.StretchZ*t*(1-t)*(0.5-t))
	}
	for k := 0; k <= nz; k++ {
		z := zOf(k)
		sx := opts.Skew * math.Sin(math.Pi*z/lz)
		sy := 0.5 * opts.Skew * math.Sin(2*math.Pi*z/lz)
		for j := 0; j <= ny; j++ {
			y := ly * float64(j) / float64(ny)
			for i := 0; i <= nx; i++ {
				x := lx * float64(i) / float64(nx)
				nodeCoord[i+nnx*(j+nny*k)] = utils.Vec3{x + sx, y + sy, z}
			}
		}
	}
	node := func(i, j, k int) utils.Vec3 { return nodeCoord[i+nnx*(j+nny*k)] }
	cellID := func(i, j, k int) int { return i + nx*(j+ny*k) }

	m = &Mesh{
		NCells: nx * ny * nz,
		Halo:   NoHalo{},
		Comm:   SingleRank{},
		Epoch:  1,
	}

	// Cell volumes and centroids by tet decomposition of the six faces
	m.CellVol = make([]float64, m.NCells)
	m.Disabled = make([]bool, m.NCells)
	centers := make([]utils.Vec3, 0, m.NCells)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				corners := [8]utils.Vec3{
					node(i, j, k), node(i+1, j, k), node(i+1, j+1, k), node(i, j+1, k),
					node(i, j, k+1), node(i+1, j, k+1), node(i+1, j+1, k+1), node(i, j+1, k+1),
				}
				vol, ctr := hexVolumeCentroid(corners)
				m.CellVol[cellID(i, j, k)] = vol
				centers = append(centers, ctr)
			}
		}
	}
	m.CellCenter = centers

	addInterior := func(q [4]utils.Vec3, c0, c1 int) {
		nrm, ctr := quadNormalCentroid(q)
		m.FaceCells = append(m.FaceCells, [2]int{c0, c1})
		m.FaceNormal = append(m.FaceNormal, nrm)
		m.FaceCenter = append(m.FaceCenter, ctr)
	}
	addBoundary := func(q [4]utils.Vec3, c int) {
		nrm, ctr := quadNormalCentroid(q)
		m.BFaceCell = append(m.BFaceCell, c)
		m.BFaceNormal = append(m.BFaceNormal, nrm)
		m.BFaceCenter = append(m.BFaceCenter, ctr)
	}

	// x oriented faces: quad normal points +x
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i <= nx; i++ {
				q := [4]utils.Vec3{node(i, j, k), node(i, j+1, k), node(i, j+1, k+1), node(i, j, k+1)}
				switch {
				case i == 0:
					addBoundary([4]utils.Vec3{q[0], q[3], q[2], q[1]}, cellID(0, j, k))
				case i == nx:
					addBoundary(q, cellID(nx-1, j, k))
				default:
					addInterior(q, cellID(i-1, j, k), cellID(i, j, k))
				}
			}
		}
	}
	// y oriented faces: +y
	for k := 0; k < nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i < nx; i++ {
				q := [4]utils.Vec3{node(i, j, k), node(i, j, k+1), node(i+1, j, k+1), node(i+1, j, k)}
				switch {
				case j == 0:
					addBoundary([4]utils.Vec3{q[0], q[3], q[2], q[1]}, cellID(i, 0, k))
				case j == ny:
					addBoundary(q, cellID(i, ny-1, k))
				default:
					addInterior(q, cellID(i, j-1, k), cellID(i, j, k))
				}
			}
		}
	}
	// z oriented faces: +z
	var ghosts []GhostRef
	ghostOf := map[[2]int]int{} // (srcCell, ±1 shift) -> ghost index
	ghostCell := func(src, shift int) int {
		key := [2]int{src, shift}
		if g, ok := ghostOf[key]; ok {
			return g
		}
		g := m.NCells + len(ghosts)
		ghosts = append(ghosts, GhostRef{SrcIdx: src, Rot: -1})
		ctr := m.CellCenter[src]
		ctr[2] += float64(shift) * lz
		m.CellCenter = append(m.CellCenter, ctr)
		ghostOf[key] = g
		return g
	}
	for k := 0; k <= nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				q := [4]utils.Vec3{node(i, j, k), node(i+1, j, k), node(i+1, j+1, k), node(i, j+1, k)}
				switch {
				case k == 0 && opts.PeriodicZ:
					// Image of the top cell sits below the domain
					addInterior(q, ghostCell(cellID(i, j, nz-1), -1), cellID(i, j, 0))
				case k == nz && opts.PeriodicZ:
					addInterior(q, cellID(i, j, nz-1), ghostCell(cellID(i, j, 0), +1))
				case k == 0:
					addBoundary([4]utils.Vec3{q[0], q[3], q[2], q[1]}, cellID(i, j, 0))
				case k == nz:
					addBoundary(q, cellID(i, j, nz-1))
				default:
					addInterior(q, cellID(i, j, k-1), cellID(i, j, k))
				}
			}
		}
	}
	m.NGhosts = len(ghosts)
	if m.NGhosts > 0 {
		m.Halo = &PeriodicHalo{NCells: m.NCells, Ghosts: ghosts}
	}

	m.ComputeFaceMetrics()
	m.BuildFaceGroups()
	m.BuildAdjacency()
	return
}

// ComputeFaceMetrics derives the interpolation weights and the
// skewness/reconstruction offsets from centers, centroids and normals
func (m *Mesh) ComputeFaceMetrics() {
	m.Weight = make([]float64, len(m.FaceCells))
	m.DOfij = make([]utils.Vec3, len(m.FaceCells))
	for f, fc := range m.FaceCells {
		var (
			x0, x1 = m.CellCenter[fc[0]], m.CellCenter[fc[1]]
			xf     = m.FaceCenter[f]
			nHat   = m.FaceNormal[f].Scale(1. / m.FaceNormal[f].Norm())
			alpha  = x1.Sub(xf).Dot(nHat) / x1.Sub(x0).Dot(nHat)
		)
		m.Weight[f] = alpha
		m.DOfij[f] = xf.Sub(x0.Scale(alpha)).Sub(x1.Scale(1 - alpha))
	}
	m.DiipB = make([]utils.Vec3, len(m.BFaceCell))
	m.BDist = make([]float64, len(m.BFaceCell))
	for f, c := range m.BFaceCell {
		var (
			xc   = m.CellCenter[c]
			xf   = m.BFaceCenter[f]
			nHat = m.BFaceNormal[f].Scale(1. / m.BFaceNormal[f].Norm())
			d    = xf.Sub(xc).Dot(nHat)
		)
		m.BDist[f] = d
		m.DiipB[f] = xf.Sub(xc).Sub(nHat.Scale(d))
	}
}

func quadNormalCentroid(q [4]utils.Vec3) (nrm, ctr utils.Vec3) {
	var (
		n1 = triNormal(q[0], q[1], q[2])
		n2 = triNormal(q[0], q[2], q[3])
		c1 = q[0].Add(q[1]).Add(q[2]).Scale(1. / 3.)
		c2 = q[0].Add(q[2]).Add(q[3]).Scale(1. / 3.)
		a1 = n1.Norm()
		a2 = n2.Norm()
	)
	nrm = n1.Add(n2)
	ctr = c1.Scale(a1).Add(c2.Scale(a2)).Scale(1. / (a1 + a2))
	return
}

func triNormal(a, b, c utils.Vec3) utils.Vec3 {
	var (
		u = b.Sub(a)
		v = c.Sub(a)
	)
	return utils.Vec3{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}.Scale(0.5)
}

// hexVolumeCentroid integrates over the triangulated closed surface,
// exact for planar faces. Corner order: bottom quad 0..3 CCW seen from
// below (+z normal convention as in the face builders), top quad 4..7
func hexVolumeCentroid(c [8]utils.Vec3) (vol float64, ctr utils.Vec3) {
	faces := [6][4]int{
		{0, 3, 2, 1}, // bottom, outward -z
		{4, 5, 6, 7}, // top, outward +z
		{0, 4, 7, 3}, // -x
		{1, 2, 6, 5}, // +x
		{0, 1, 5, 4}, // -y
		{3, 7, 6, 2}, // +y
	}
	for _, fq := range faces {
		quads := [2][3]int{{fq[0], fq[1], fq[2]}, {fq[0], fq[2], fq[3]}}
		for _, t := range quads {
			var (
				a, b, cc = c[t[0]], c[t[1]], c[t[2]]
				cross    = utils.Vec3{
					b[1]*cc[2] - b[2]*cc[1],
					b[2]*cc[0] - b[0]*cc[2],
					b[0]*cc[1] - b[1]*cc[0],
				}
				vt = a.Dot(cross) / 6.
			)
			vol += vt
			ctr = ctr.Add(a.Add(b).Add(cc).Scale(vt / 4.))
		}
	}
	ctr = ctr.Scale(1. / vol)
	return
}
