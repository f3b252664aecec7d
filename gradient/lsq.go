package gradient

import (
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	Least squares drivers. Each cell solves a weighted normal equation
	system built from its face neighbors (plus the second ring when the
	extent is extended) and from boundary pseudo neighbor rows derived
	from the affine BC:
		interior:  g·d = Δv,          d = xn − xc,  w = 1/|d|²
		boundary:  g·e = a + (b−1)·vc, e = dd − b·DiipB, dd = xf − xc
	The e vector reduces to dd for Dirichlet and to the normal offset
	BDist·n̂ for Neumann, which is exactly the statement g·n̂ = 0.

	With a hydrostatic force the system is solved for the deviation
	g̃ = g − F_c, with interior deltas taken against the midpoint
	profile, Δṽ = Δv − ½(Fc+Fn)·d, and boundary rows shifted by F_c·e.

	The isotropic path uses the cached packed inverse; the scalar
	weighted and anisotropic paths build fresh per cell systems.
	Vector and tensor fields first solve component wise against the
	isotropic trace approximation of the BC matrix, then boundary cells
	are corrected exactly through a dense 9x9 / 18x18 LDLᵗ solve that
	carries the full BC coupling between components.
*/

func sym6Accum(A *utils.Sym6, w float64, d utils.Vec3) {
	A[utils.XX] += w * d[0] * d[0]
	A[utils.YY] += w * d[1] * d[1]
	A[utils.ZZ] += w * d[2] * d[2]
	A[utils.XY] += w * d[0] * d[1]
	A[utils.YZ] += w * d[1] * d[2]
	A[utils.XZ] += w * d[0] * d[2]
}

// scalarPairDelta is the interior neighbor value delta, taken against
// the hydrostatic midpoint profile when a force is present
func scalarPairDelta(m *mesh.Mesh, F []utils.Vec3, v []float64, c, n int) (dv float64, d utils.Vec3, w float64) {
	d = m.CellCenter[n].Sub(m.CellCenter[c])
	w = 1. / d.Norm2()
	dv = v[n] - v[c]
	if F != nil {
		dv -= 0.5 * F[c].Add(F[n]).Dot(d)
	}
	return
}

// scalarBoundaryDelta is the boundary pseudo neighbor row for cell c
// through boundary face f
func scalarBoundaryDelta(m *mesh.Mesh, opt *Options, bc *ScalarBC, v []float64,
	c, f int) (dv float64, e utils.Vec3, w float64) {
	var F = opt.HydrostaticForce
	if cpl := opt.Coupling; cpl != nil && cpl.IsCoupled(f) {
		e = cpl.NeighborOffset(f)
		w = 1. / e.Norm2()
		dv = cpl.NeighborValue(f, v[c]) - v[c]
		if F != nil {
			dv -= F[c].Dot(e)
		}
		return
	}
	var (
		a, b = bc.at(f)
		dd   = m.BFaceCenter[f].Sub(m.CellCenter[c])
	)
	e = dd.Sub(m.DiipB[f].Scale(b))
	w = 1. / dd.Norm2()
	dv = a + (b-1)*v[c]
	if F != nil {
		dv -= F[c].Dot(e)
	}
	return
}

// lsqScalarRHS accumulates the scalar right hand side with the
// configured assembly strategy. The scatter strategies exploit that
// the interior contribution w·Δv·d is identical from both sides of a
// face (both the delta and the direction flip sign)
func (ctx *Context) lsqScalarRHS(m *mesh.Mesh, opt *Options, v []float64,
	bc *ScalarBC, rhs []utils.Vec3) {
	var F = opt.HydrostaticForce
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			rhs[c] = utils.Vec3{}
		}
	})
	switch opt.Assembly {
	case ASSEMBLY_Gather:
		// Store-then-gather walks the cell's own faces, keeping per face
		// data (interpolation weights, offsets) reachable from the loop
		ctx.parallelCells(m.NCells, func(lo, hi int) {
			for c := lo; c < hi; c++ {
				var acc utils.Vec3
				for p := m.CellFaceIdx[c]; p < m.CellFaceIdx[c+1]; p++ {
					f, side := mesh.DecodeCellFace(m.CellFace[p])
					dv, d, w := scalarPairDelta(m, F, v, c, m.FaceCells[f][1-side])
					acc = acc.Add(d.Scale(w * dv))
				}
				for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
					dv, e, w := scalarBoundaryDelta(m, opt, bc, v, c, m.CellBF[p])
					acc = acc.Add(e.Scale(w * dv))
				}
				rhs[c] = acc
			}
		})
	case ASSEMBLY_Scatter:
		ctx.parallelGroups(m.FaceGroups, func(lo, hi int) {
			for f := lo; f < hi; f++ {
				var (
					fc     = m.FaceCells[f]
					c0, c1 = fc[0], fc[1]
				)
				if c0 < m.NCells {
					dv, d, w := scalarPairDelta(m, F, v, c0, c1)
					rhs[c0] = rhs[c0].Add(d.Scale(w * dv))
				}
				if c1 < m.NCells {
					dv, d, w := scalarPairDelta(m, F, v, c1, c0)
					rhs[c1] = rhs[c1].Add(d.Scale(w * dv))
				}
			}
		})
		ctx.parallelGroups(m.BFaceGroups, func(lo, hi int) {
			for f := lo; f < hi; f++ {
				c := m.BFaceCell[f]
				dv, e, w := scalarBoundaryDelta(m, opt, bc, v, c, f)
				rhs[c] = rhs[c].Add(e.Scale(w * dv))
			}
		})
	case ASSEMBLY_AtomicScatter:
		af := utils.NewAtomicFloats(3 * m.NCells)
		ctx.parallelCells(m.NFaces(), func(lo, hi int) {
			for f := lo; f < hi; f++ {
				var (
					fc     = m.FaceCells[f]
					c0, c1 = fc[0], fc[1]
				)
				dv, d, w := scalarPairDelta(m, F, v, c0, c1)
				t := d.Scale(w * dv)
				if c0 < m.NCells {
					af.Add(3*c0+0, t[0])
					af.Add(3*c0+1, t[1])
					af.Add(3*c0+2, t[2])
				}
				if c1 < m.NCells {
					af.Add(3*c1+0, t[0])
					af.Add(3*c1+1, t[1])
					af.Add(3*c1+2, t[2])
				}
			}
		})
		ctx.parallelCells(m.NBFaces(), func(lo, hi int) {
			for f := lo; f < hi; f++ {
				c := m.BFaceCell[f]
				dv, e, w := scalarBoundaryDelta(m, opt, bc, v, c, f)
				t := e.Scale(w * dv)
				af.Add(3*c+0, t[0])
				af.Add(3*c+1, t[1])
				af.Add(3*c+2, t[2])
			}
		})
		ctx.parallelCells(m.NCells, func(lo, hi int) {
			for c := lo; c < hi; c++ {
				rhs[c] = utils.Vec3{af.Load(3 * c), af.Load(3*c + 1), af.Load(3*c + 2)}
			}
		})
	}
	// Second ring contributions are cell local in every strategy
	if opt.Extent == EXTENT_Extended {
		extIdx, ext := m.ExtendedNeighbors()
		ctx.parallelCells(m.NCells, func(lo, hi int) {
			for c := lo; c < hi; c++ {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					dv, d, w := scalarPairDelta(m, F, v, c, ext[p])
					rhs[c] = rhs[c].Add(d.Scale(w * dv))
				}
			}
		})
	}
}

func (ctx *Context) lsqScalarGradient(m *mesh.Mesh, name string, opt *Options,
	v []float64, bc *ScalarBC, grad []utils.Vec3) {
	if opt.Weight != nil || opt.TensorWeight != nil {
		ctx.lsqScalarFresh(m, opt, v, bc, grad)
		return
	}
	var (
		fk     = fieldKey{Name: name, Increment: opt.Increment, BC: bc}
		bCoeff = func(f int) float64 { _, b := bc.at(f); return b }
		cc     = ctx.getLSQCOCG(m, opt.Extent, fk, opt.Coupling, bCoeff)
		rhs    = make([]utils.Vec3, m.NCells)
		F      = opt.HydrostaticForce
	)
	ctx.lsqScalarRHS(m, opt, v, bc, rhs)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			g := cc.Inv[c].MulVec(rhs[c])
			if F != nil {
				g = g.Add(F[c])
			}
			grad[c] = g
		}
	})
	m.Halo.SyncVec3s(grad)
}

// lsqScalarFresh serves the scalar weighted and anisotropic weight
// variants, which make the covariance field dependent and therefore
// uncacheable: each call builds and inverts per cell systems
func (ctx *Context) lsqScalarFresh(m *mesh.Mesh, opt *Options,
	v []float64, bc *ScalarBC, grad []utils.Vec3) {
	var (
		F  = opt.HydrostaticForce
		tw []utils.Mat3
	)
	if opt.TensorWeight != nil {
		tw = make([]utils.Mat3, m.NTotal())
		for c := range opt.TensorWeight {
			tw[c] = opt.TensorWeight[c].ToMat3()
		}
	}
	var extIdx, ext []int
	if opt.Extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			var (
				A   utils.Sym6
				acc utils.Vec3
			)
			pair := func(n int) {
				dv, d, w := scalarPairDelta(m, F, v, c, n)
				if tw != nil {
					// Mean conductivity tensor turns the direction
					// into a flux weighted one
					d = tw[c].Add(tw[n]).Scale(0.5).MulVec(d)
				} else if opt.Weight != nil {
					w *= 2 * opt.Weight[n] / (opt.Weight[c] + opt.Weight[n])
				}
				sym6Accum(&A, w, d)
				acc = acc.Add(d.Scale(w * dv))
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				pair(m.CellCell[p])
			}
			if extIdx != nil {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					pair(ext[p])
				}
			}
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				dv, e, w := scalarBoundaryDelta(m, opt, bc, v, c, m.CellBF[p])
				if tw != nil {
					e = tw[c].MulVec(e)
				}
				sym6Accum(&A, w, e)
				acc = acc.Add(e.Scale(w * dv))
			}
			g := A.Inverse().MulVec(acc)
			if F != nil {
				g = g.Add(F[c])
			}
			grad[c] = g
		}
	})
	m.Halo.SyncVec3s(grad)
}

func (ctx *Context) lsqVectorGradient(m *mesh.Mesh, name string, opt *Options,
	v []utils.Vec3, bc *VectorBC, grad []utils.Mat3) {
	var (
		fk     = fieldKey{Name: name, Increment: opt.Increment, BC: bc}
		bCoeff = func(f int) float64 { _, b := bc.at(f); return traceThird(b) }
		cc     = ctx.getLSQCOCG(m, opt.Extent, fk, opt.Coupling, bCoeff)
	)
	var extIdx, ext []int
	if opt.Extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			var rhs utils.Mat3
			pair := func(n int) {
				d := m.CellCenter[n].Sub(m.CellCenter[c])
				w := 1. / d.Norm2()
				dv := v[n].Sub(v[c])
				for i := 0; i < 3; i++ {
					for k := 0; k < 3; k++ {
						rhs[i][k] += w * dv[i] * d[k]
					}
				}
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				pair(m.CellCell[p])
			}
			if extIdx != nil {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					pair(ext[p])
				}
			}
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				var (
					f  = m.CellBF[p]
					dv utils.Vec3
					e  utils.Vec3
					w  float64
				)
				if cpl := opt.Coupling; cpl != nil && cpl.IsCoupled(f) {
					e = cpl.NeighborOffset(f)
					w = 1. / e.Norm2()
					for i := 0; i < 3; i++ {
						dv[i] = cpl.NeighborValue(f, v[c][i]) - v[c][i]
					}
				} else {
					a, b := bc.at(f)
					dd := m.BFaceCenter[f].Sub(m.CellCenter[c])
					e = dd.Sub(m.DiipB[f].Scale(traceThird(b)))
					w = 1. / dd.Norm2()
					dv = a.Add(b.MulVec(v[c])).Sub(v[c])
				}
				for i := 0; i < 3; i++ {
					for k := 0; k < 3; k++ {
						rhs[i][k] += w * dv[i] * e[k]
					}
				}
			}
			// Row wise solve in the derivative index
			for i := 0; i < 3; i++ {
				row := cc.Inv[c].MulVec(utils.Vec3{rhs[i][0], rhs[i][1], rhs[i][2]})
				grad[c][i] = row
			}
		}
	})
	if bc != nil {
		ctx.lsqVectorBoundaryExact(m, opt, v, bc, cc.bCells, grad)
	}
	m.Halo.SyncMat3s(grad)
}

/*
	Exact boundary correction for the vector field: the trace
	approximation above decouples the components, but a full BC matrix
	couples them through the boundary rows
		residual_i = Δ_i − Σ_j C_ij·g_j,  C_ij = δ_ij·dd − B_ij·DiipB
	with Δ_i = a_i + (B·vc)_i − vc_i. Each boundary cell re-solves its
	9 unknowns (3 gradient rows) from the dense normal equations of all
	its rows, factored in place by LDLᵗ.
*/
func (ctx *Context) lsqVectorBoundaryExact(m *mesh.Mesh, opt *Options,
	v []utils.Vec3, bc *VectorBC, bCells []int, grad []utils.Mat3) {
	var extIdx, ext []int
	if opt.Extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(len(bCells), func(lo, hi int) {
		var (
			A [81]float64
			b [9]float64
		)
		for ci := lo; ci < hi; ci++ {
			var c = bCells[ci]
			for i := range A {
				A[i] = 0
			}
			for i := range b {
				b[i] = 0
			}
			pair := func(n int) {
				d := m.CellCenter[n].Sub(m.CellCenter[c])
				w := 1. / d.Norm2()
				dv := v[n].Sub(v[c])
				// Rows decouple: block diagonal contribution
				for i := 0; i < 3; i++ {
					for k := 0; k < 3; k++ {
						b[3*i+k] += w * dv[i] * d[k]
						for l := 0; l < 3; l++ {
							A[(3*i+k)*9+(3*i+l)] += w * d[k] * d[l]
						}
					}
				}
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				pair(m.CellCell[p])
			}
			if extIdx != nil {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					pair(ext[p])
				}
			}
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				var f = m.CellBF[p]
				if cpl := opt.Coupling; cpl != nil && cpl.IsCoupled(f) {
					e := cpl.NeighborOffset(f)
					w := 1. / e.Norm2()
					for i := 0; i < 3; i++ {
						dv := cpl.NeighborValue(f, v[c][i]) - v[c][i]
						for k := 0; k < 3; k++ {
							b[3*i+k] += w * dv * e[k]
							for l := 0; l < 3; l++ {
								A[(3*i+k)*9+(3*i+l)] += w * e[k] * e[l]
							}
						}
					}
					continue
				}
				var (
					av, bm = bc.at(f)
					dd     = m.BFaceCenter[f].Sub(m.CellCenter[c])
					di     = m.DiipB[f]
					w      = 1. / dd.Norm2()
					C      [3][3]utils.Vec3
					delta  utils.Vec3
				)
				for i := 0; i < 3; i++ {
					delta[i] = av[i] + bm.MulVec(v[c])[i] - v[c][i]
					for j := 0; j < 3; j++ {
						C[i][j] = di.Scale(-bm[i][j])
						if i == j {
							C[i][j] = C[i][j].Add(dd)
						}
					}
				}
				for i := 0; i < 3; i++ {
					for j := 0; j < 3; j++ {
						for k := 0; k < 3; k++ {
							b[3*j+k] += w * delta[i] * C[i][j][k]
							for jj := 0; jj < 3; jj++ {
								for l := 0; l < 3; l++ {
									A[(3*j+k)*9+(3*jj+l)] += w * C[i][j][k] * C[i][jj][l]
								}
							}
						}
					}
				}
			}
			utils.FactorLDL(A[:], 9)
			utils.SolveLDL(A[:], 9, b[:])
			for i := 0; i < 3; i++ {
				grad[c][i] = utils.Vec3{b[3*i], b[3*i+1], b[3*i+2]}
			}
		}
	})
}

func (ctx *Context) lsqTensorGradient(m *mesh.Mesh, name string, opt *Options,
	v []utils.Sym6, bc *TensorBC, grad []utils.SymGrad) {
	var (
		fk     = fieldKey{Name: name, Increment: opt.Increment, BC: bc}
		bCoeff = func(f int) float64 { _, b := bc.at(f); return traceSixth(b) }
		cc     = ctx.getLSQCOCG(m, opt.Extent, fk, opt.Coupling, bCoeff)
	)
	var extIdx, ext []int
	if opt.Extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			var rhs utils.SymGrad
			pair := func(n int) {
				d := m.CellCenter[n].Sub(m.CellCenter[c])
				w := 1. / d.Norm2()
				for i := 0; i < 6; i++ {
					rhs[i] = rhs[i].Add(d.Scale(w * (v[n][i] - v[c][i])))
				}
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				pair(m.CellCell[p])
			}
			if extIdx != nil {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					pair(ext[p])
				}
			}
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				var f = m.CellBF[p]
				if cpl := opt.Coupling; cpl != nil && cpl.IsCoupled(f) {
					e := cpl.NeighborOffset(f)
					w := 1. / e.Norm2()
					for i := 0; i < 6; i++ {
						dv := cpl.NeighborValue(f, v[c][i]) - v[c][i]
						rhs[i] = rhs[i].Add(e.Scale(w * dv))
					}
					continue
				}
				var (
					av, bm = bc.at(f)
					dd     = m.BFaceCenter[f].Sub(m.CellCenter[c])
					e      = dd.Sub(m.DiipB[f].Scale(traceSixth(bm)))
					w      = 1. / dd.Norm2()
				)
				for i := 0; i < 6; i++ {
					dv := av[i] - v[c][i]
					for j := 0; j < 6; j++ {
						dv += bm[i][j] * v[c][j]
					}
					rhs[i] = rhs[i].Add(e.Scale(w * dv))
				}
			}
			for i := 0; i < 6; i++ {
				grad[c][i] = cc.Inv[c].MulVec(rhs[i])
			}
		}
	})
	if bc != nil {
		ctx.lsqTensorBoundaryExact(m, opt, v, bc, cc.bCells, grad)
	}
	m.Halo.SyncSymGrads(grad)
}

// lsqTensorBoundaryExact is the 18 unknown analogue of the vector
// correction: 6 gradient rows coupled through the [6][6] BC matrix
func (ctx *Context) lsqTensorBoundaryExact(m *mesh.Mesh, opt *Options,
	v []utils.Sym6, bc *TensorBC, bCells []int, grad []utils.SymGrad) {
	var extIdx, ext []int
	if opt.Extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(len(bCells), func(lo, hi int) {
		var (
			A [324]float64
			b [18]float64
		)
		for ci := lo; ci < hi; ci++ {
			var c = bCells[ci]
			for i := range A {
				A[i] = 0
			}
			for i := range b {
				b[i] = 0
			}
			pair := func(n int) {
				d := m.CellCenter[n].Sub(m.CellCenter[c])
				w := 1. / d.Norm2()
				for i := 0; i < 6; i++ {
					dv := v[n][i] - v[c][i]
					for k := 0; k < 3; k++ {
						b[3*i+k] += w * dv * d[k]
						for l := 0; l < 3; l++ {
							A[(3*i+k)*18+(3*i+l)] += w * d[k] * d[l]
						}
					}
				}
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				pair(m.CellCell[p])
			}
			if extIdx != nil {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					pair(ext[p])
				}
			}
			for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
				var f = m.CellBF[p]
				if cpl := opt.Coupling; cpl != nil && cpl.IsCoupled(f) {
					e := cpl.NeighborOffset(f)
					w := 1. / e.Norm2()
					for i := 0; i < 6; i++ {
						dv := cpl.NeighborValue(f, v[c][i]) - v[c][i]
						for k := 0; k < 3; k++ {
							b[3*i+k] += w * dv * e[k]
							for l := 0; l < 3; l++ {
								A[(3*i+k)*18+(3*i+l)] += w * e[k] * e[l]
							}
						}
					}
					continue
				}
				var (
					av, bm = bc.at(f)
					dd     = m.BFaceCenter[f].Sub(m.CellCenter[c])
					di     = m.DiipB[f]
					w      = 1. / dd.Norm2()
					C      [6][6]utils.Vec3
					delta  [6]float64
				)
				for i := 0; i < 6; i++ {
					delta[i] = av[i] - v[c][i]
					for j := 0; j < 6; j++ {
						delta[i] += bm[i][j] * v[c][j]
						C[i][j] = di.Scale(-bm[i][j])
						if i == j {
							C[i][j] = C[i][j].Add(dd)
						}
					}
				}
				for i := 0; i < 6; i++ {
					for j := 0; j < 6; j++ {
						for k := 0; k < 3; k++ {
							b[3*j+k] += w * delta[i] * C[i][j][k]
							for jj := 0; jj < 6; jj++ {
								for l := 0; l < 3; l++ {
									A[(3*j+k)*18+(3*jj+l)] += w * C[i][j][k] * C[i][jj][l]
								}
							}
						}
					}
				}
			}
			utils.FactorLDL(A[:], 18)
			utils.SolveLDL(A[:], 18, b[:])
			for i := 0; i < 6; i++ {
				grad[c][i] = utils.Vec3{b[3*i], b[3*i+1], b[3*i+2]}
			}
		}
	})
}

// ScalarGradientAtCell computes the least squares gradient of a scalar
// field at a single cell without a mesh wide pass, for local
// extrapolation use. The field's ghost entries must already be valid
func (ctx *Context) ScalarGradientAtCell(m *mesh.Mesh, c int,
	v []float64, bc *ScalarBC) (g utils.Vec3) {
	var (
		A   utils.Sym6
		acc utils.Vec3
	)
	for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
		n := m.CellCell[p]
		d := m.CellCenter[n].Sub(m.CellCenter[c])
		w := 1. / d.Norm2()
		sym6Accum(&A, w, d)
		acc = acc.Add(d.Scale(w * (v[n] - v[c])))
	}
	for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
		var (
			f    = m.CellBF[p]
			a, b = bc.at(f)
			dd   = m.BFaceCenter[f].Sub(m.CellCenter[c])
			e    = dd.Sub(m.DiipB[f].Scale(b))
			w    = 1. / dd.Norm2()
		)
		sym6Accum(&A, w, e)
		acc = acc.Add(e.Scale(w * (a + (b-1)*v[c])))
	}
	g = A.Inverse().MulVec(acc)
	return
}

// VectorGradientAtCell is the single cell vector variant, using the
// isotropic trace approximation of the BC matrix
func (ctx *Context) VectorGradientAtCell(m *mesh.Mesh, c int,
	v []utils.Vec3, bc *VectorBC) (g utils.Mat3) {
	var (
		A   utils.Sym6
		rhs utils.Mat3
	)
	for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
		n := m.CellCell[p]
		d := m.CellCenter[n].Sub(m.CellCenter[c])
		w := 1. / d.Norm2()
		sym6Accum(&A, w, d)
		dv := v[n].Sub(v[c])
		for i := 0; i < 3; i++ {
			for k := 0; k < 3; k++ {
				rhs[i][k] += w * dv[i] * d[k]
			}
		}
	}
	for p := m.CellBFIdx[c]; p < m.CellBFIdx[c+1]; p++ {
		var (
			f    = m.CellBF[p]
			a, b = bc.at(f)
			dd   = m.BFaceCenter[f].Sub(m.CellCenter[c])
			e    = dd.Sub(m.DiipB[f].Scale(traceThird(b)))
			w    = 1. / dd.Norm2()
			dv   = a.Add(b.MulVec(v[c])).Sub(v[c])
		)
		sym6Accum(&A, w, e)
		for i := 0; i < 3; i++ {
			for k := 0; k < 3; k++ {
				rhs[i][k] += w * dv[i] * e[k]
			}
		}
	}
	Ainv := A.Inverse()
	for i := 0; i < 3; i++ {
		g[i] = Ainv.MulVec(utils.Vec3{rhs[i][0], rhs[i][1], rhs[i][2]})
	}
	return
}
