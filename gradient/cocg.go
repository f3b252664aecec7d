package gradient

import (
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	COCG matrices are the per cell inverses of accumulated geometric
	covariances:

	Iterative scheme (full 3x3, inverted once per build):
		C = I − (1/2V)·Σ_int s·Nf⊗DOfij − (b/V)·Σ_bnd Nb⊗DiipB
	with s = ±1 for the cell's side of the face. The boundary term
	carries the field's linear BC coefficient, so interior only values
	are retained per boundary cell and the boundary contribution is
	re-accumulated alone when a call arrives for a different field or
	increment mode (the cache key is epoch + field identity + increment
	flag - never "the previous call happened to match").

	Least squares scheme (packed symmetric, pre-inverted):
		A = Σ_nb w·d⊗d  (+ second ring when extended)
		  + Σ_bnd w·e⊗e,  e = (xf−xc) − b·DiipB
	The e vectors fold the boundary reconstruction into the normal
	equations; only they depend on the field, giving the same interior
	retention and boundary-only refresh structure.

	Matrices are SPD for non degenerate geometry; inversion of a
	degenerate (flat) cell is a documented precondition violation and
	is not checked.
*/
type iterCOCG struct {
	Inv      []utils.Mat3 // per owned cell, inverted
	interior []utils.Mat3 // pre-boundary values of boundary cells
	bCells   []int
	last     fieldKey
	hasLast  bool
}

type lsqCOCG struct {
	Inv      []utils.Sym6
	interior []utils.Sym6
	bCells   []int
	last     fieldKey
	hasLast  bool
}

// boundaryCells lists owned cells with at least one boundary face
func boundaryCells(m *mesh.Mesh) (bc []int) {
	for c := 0; c < m.NCells; c++ {
		if m.CellBFIdx[c+1] > m.CellBFIdx[c] {
			bc = append(bc, c)
		}
	}
	return
}

// getIterCOCG returns the iterative COCG inverse for the mesh epoch,
// refreshing the boundary cell contribution when the field key does
// not match the cached accumulation. bCoeff yields the (isotropic)
// linear BC coefficient per boundary face
func (ctx *Context) getIterCOCG(m *mesh.Mesh, fk fieldKey, cpl Coupling,
	bCoeff func(f int) float64) (cc *iterCOCG) {
	var (
		key = cocgKey{Epoch: m.Epoch, Extent: EXTENT_Standard, Coupling: couplingID(cpl)}
		ok  bool
	)
	if cc, ok = ctx.it[key]; ok {
		if cc.hasLast && cc.last == fk {
			return
		}
		ctx.refreshIterBoundary(m, cc, cpl, bCoeff)
		cc.last, cc.hasLast = fk, true
		return
	}
	cc = &iterCOCG{
		Inv:    make([]utils.Mat3, m.NCells),
		bCells: boundaryCells(m),
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			cc.Inv[c] = utils.IdentityMat3()
		}
	})
	// Interior face accumulation, race free over groups
	ctx.parallelGroups(m.FaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				fc   = m.FaceCells[f]
				term = m.FaceNormal[f].Outer(m.DOfij[f])
			)
			if c0 := fc[0]; c0 < m.NCells {
				cc.Inv[c0] = cc.Inv[c0].Sub(term.Scale(0.5 / m.CellVol[c0]))
			}
			if c1 := fc[1]; c1 < m.NCells {
				cc.Inv[c1] = cc.Inv[c1].Add(term.Scale(0.5 / m.CellVol[c1]))
			}
		}
	})
	cc.interior = make([]utils.Mat3, len(cc.bCells))
	for i, c := range cc.bCells {
		cc.interior[i] = cc.Inv[c]
	}
	ctx.refreshIterBoundary(m, cc, cpl, bCoeff)
	// Interior cells are inverted once here; refresh already inverted
	// the boundary cells
	isB := make([]bool, m.NCells)
	for _, c := range cc.bCells {
		isB[c] = true
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			if !isB[c] {
				cc.Inv[c] = cc.Inv[c].Inverse()
			}
		}
	})
	cc.last, cc.hasLast = fk, true
	ctx.it[key] = cc
	return
}

// refreshIterBoundary restores the interior only accumulation for
// boundary cells, re-adds the boundary face terms with the current BC
// and re-inverts those cells only
func (ctx *Context) refreshIterBoundary(m *mesh.Mesh, cc *iterCOCG, cpl Coupling,
	bCoeff func(f int) float64) {
	ctx.parallelCells(len(cc.bCells), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			var (
				c = cc.bCells[i]
				C = cc.interior[i]
			)
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				f := m.CellBF[p]
				if cpl != nil && cpl.IsCoupled(f) {
					continue
				}
				term := m.BFaceNormal[f].Outer(m.DiipB[f])
				C = C.Sub(term.Scale(bCoeff(f) / m.CellVol[c]))
			}
			cc.Inv[c] = C.Inverse()
		}
	})
}

// getLSQCOCG returns the pre-inverted least squares covariance for the
// mesh epoch and halo extent, with the same boundary refresh contract
// as getIterCOCG
func (ctx *Context) getLSQCOCG(m *mesh.Mesh, extent Extent, fk fieldKey, cpl Coupling,
	bCoeff func(f int) float64) (cc *lsqCOCG) {
	var (
		key = cocgKey{Epoch: m.Epoch, Extent: extent, Coupling: couplingID(cpl)}
		ok  bool
	)
	if cc, ok = ctx.lsq[key]; ok {
		if cc.hasLast && cc.last == fk {
			return
		}
		ctx.refreshLSQBoundary(m, cc, cpl, bCoeff)
		cc.last, cc.hasLast = fk, true
		return
	}
	cc = &lsqCOCG{
		Inv:    make([]utils.Sym6, m.NCells),
		bCells: boundaryCells(m),
	}
	var extIdx, ext []int
	if extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			var A utils.Sym6
			accum := func(n int) {
				d := m.CellCenter[n].Sub(m.CellCenter[c])
				w := 1. / d.Norm2()
				A[utils.XX] += w * d[0] * d[0]
				A[utils.YY] += w * d[1] * d[1]
				A[utils.ZZ] += w * d[2] * d[2]
				A[utils.XY] += w * d[0] * d[1]
				A[utils.YZ] += w * d[1] * d[2]
				A[utils.XZ] += w * d[0] * d[2]
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				accum(m.CellCell[p])
			}
			if extent == EXTENT_Extended {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					accum(ext[p])
				}
			}
			cc.Inv[c] = A
		}
	})
	cc.interior = make([]utils.Sym6, len(cc.bCells))
	for i, c := range cc.bCells {
		cc.interior[i] = cc.Inv[c]
	}
	ctx.refreshLSQBoundary(m, cc, cpl, bCoeff)
	isB := make([]bool, m.NCells)
	for _, c := range cc.bCells {
		isB[c] = true
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			if !isB[c] {
				cc.Inv[c] = cc.Inv[c].Inverse()
			}
		}
	})
	cc.last, cc.hasLast = fk, true
	ctx.lsq[key] = cc
	return
}

func (ctx *Context) refreshLSQBoundary(m *mesh.Mesh, cc *lsqCOCG, cpl Coupling,
	bCoeff func(f int) float64) {
	ctx.parallelCells(len(cc.bCells), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			var (
				c = cc.bCells[i]
				A = cc.interior[i]
			)
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				var (
					f = m.CellBF[p]
					e utils.Vec3
					w float64
				)
				if cpl != nil && cpl.IsCoupled(f) {
					e = cpl.NeighborOffset(f)
					w = 1. / e.Norm2()
				} else {
					dd := m.BFaceCenter[f].Sub(m.CellCenter[c])
					e = dd.Sub(m.DiipB[f].Scale(bCoeff(f)))
					w = 1. / dd.Norm2()
				}
				A[utils.XX] += w * e[0] * e[0]
				A[utils.YY] += w * e[1] * e[1]
				A[utils.ZZ] += w * e[2] * e[2]
				A[utils.XY] += w * e[0] * e[1]
				A[utils.YZ] += w * e[1] * e[2]
				A[utils.XZ] += w * e[0] * e[2]
			}
			cc.Inv[c] = A.Inverse()
		}
	})
}
