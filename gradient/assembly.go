package gradient

import (
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	Green-Gauss face loop kernels. Interior faces are walked group by
	group (race free partition from the mesh), boundary faces likewise;
	contributions accumulate per cell with the sign of the cell's side
	of the face. Ghost cell accumulations are written and discarded -
	the next halo sync overwrites them with the owner's values.

	The reconstruction argument, when enabled, supplies the gradient
	used for the non orthogonality correction: the half sum of the two
	adjacent cells' gradients dotted with the face offset vector on
	interior faces, and the DiipB extrapolation on boundary faces.

	With a hydrostatic force the face value is rebuilt from both sides'
	hydrostatic profiles,
		ffac = α·F0·(xf−x0) + (1−α)·F1·(xf−x1)
	which reduces to F·DOfij for a uniform force, and the
	reconstruction correction is taken on the force deviation g−F.
*/

// weightedAlpha folds the optional diffusivity style cell weight into
// the face interpolation factor
func weightedAlpha(alpha float64, w []float64, c0, c1 int) float64 {
	if w == nil {
		return alpha
	}
	return alpha * w[c0] / (alpha*w[c0] + (1-alpha)*w[c1])
}

func (ctx *Context) ggScalarAccumulate(m *mesh.Mesh, opt *Options, v []float64,
	bc *ScalarBC, recon []utils.Vec3, useRecon bool, out []utils.Vec3) {
	var (
		F = opt.HydrostaticForce
	)
	ctx.parallelCells(len(out), func(lo, hi int) {
		for c := lo; c < hi; c++ {
			out[c] = utils.Vec3{}
		}
	})
	ctx.parallelGroups(m.FaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				fc     = m.FaceCells[f]
				c0, c1 = fc[0], fc[1]
				alpha  = weightedAlpha(m.Weight[f], opt.Weight, c0, c1)
				pfac   = alpha*v[c0] + (1-alpha)*v[c1]
			)
			if F != nil {
				xf := m.FaceCenter[f]
				pfac += alpha*F[c0].Dot(xf.Sub(m.CellCenter[c0])) +
					(1-alpha)*F[c1].Dot(xf.Sub(m.CellCenter[c1]))
				if useRecon {
					g0 := recon[c0].Sub(F[c0])
					g1 := recon[c1].Sub(F[c1])
					pfac += 0.5 * g0.Add(g1).Dot(m.DOfij[f])
				}
			} else if useRecon {
				pfac += 0.5 * recon[c0].Add(recon[c1]).Dot(m.DOfij[f])
			}
			out[c0] = out[c0].Add(m.FaceNormal[f].Scale(pfac))
			out[c1] = out[c1].Sub(m.FaceNormal[f].Scale(pfac))
		}
	})
	ctx.parallelGroups(m.BFaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				c    = m.BFaceCell[f]
				pfac float64
			)
			if opt.Coupling != nil && opt.Coupling.IsCoupled(f) {
				pfac = opt.Coupling.FaceValue(f, v[c])
			} else {
				a, b := bc.at(f)
				rec := 0.
				switch {
				case useRecon:
					rec = recon[c].Dot(m.DiipB[f])
				case F != nil:
					rec = F[c].Dot(m.DiipB[f])
				}
				pfac = a + b*(v[c]+rec)
			}
			out[c] = out[c].Add(m.BFaceNormal[f].Scale(pfac))
		}
	})
}

func (ctx *Context) ggVectorAccumulate(m *mesh.Mesh, opt *Options, v []utils.Vec3,
	bc *VectorBC, recon []utils.Mat3, useRecon bool, out []utils.Mat3) {
	ctx.parallelCells(len(out), func(lo, hi int) {
		for c := lo; c < hi; c++ {
			out[c] = utils.Mat3{}
		}
	})
	ctx.parallelGroups(m.FaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				fc     = m.FaceCells[f]
				c0, c1 = fc[0], fc[1]
				alpha  = weightedAlpha(m.Weight[f], opt.Weight, c0, c1)
				pfac   = v[c0].Scale(alpha).Add(v[c1].Scale(1 - alpha))
			)
			if useRecon {
				do := m.DOfij[f]
				corr := recon[c0].MulVec(do).Add(recon[c1].MulVec(do)).Scale(0.5)
				pfac = pfac.Add(corr)
			}
			term := pfac.Outer(m.FaceNormal[f])
			out[c0] = out[c0].Add(term)
			out[c1] = out[c1].Sub(term)
		}
	})
	ctx.parallelGroups(m.BFaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				c    = m.BFaceCell[f]
				pfac utils.Vec3
			)
			if opt.Coupling != nil && opt.Coupling.IsCoupled(f) {
				for i := 0; i < 3; i++ {
					pfac[i] = opt.Coupling.FaceValue(f, v[c][i])
				}
			} else {
				a, b := bc.at(f)
				vc := v[c]
				if useRecon {
					vc = vc.Add(recon[c].MulVec(m.DiipB[f]))
				}
				pfac = a.Add(b.MulVec(vc))
			}
			out[c] = out[c].Add(pfac.Outer(m.BFaceNormal[f]))
		}
	})
}

func (ctx *Context) ggTensorAccumulate(m *mesh.Mesh, opt *Options, v []utils.Sym6,
	bc *TensorBC, recon []utils.SymGrad, useRecon bool, out []utils.SymGrad) {
	ctx.parallelCells(len(out), func(lo, hi int) {
		for c := lo; c < hi; c++ {
			out[c] = utils.SymGrad{}
		}
	})
	ctx.parallelGroups(m.FaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				fc     = m.FaceCells[f]
				c0, c1 = fc[0], fc[1]
				alpha  = weightedAlpha(m.Weight[f], opt.Weight, c0, c1)
				nrm    = m.FaceNormal[f]
			)
			for i := 0; i < 6; i++ {
				pfac := alpha*v[c0][i] + (1-alpha)*v[c1][i]
				if useRecon {
					pfac += 0.5 * recon[c0][i].Add(recon[c1][i]).Dot(m.DOfij[f])
				}
				out[c0][i] = out[c0][i].Add(nrm.Scale(pfac))
				out[c1][i] = out[c1][i].Sub(nrm.Scale(pfac))
			}
		}
	})
	ctx.parallelGroups(m.BFaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var c = m.BFaceCell[f]
			if opt.Coupling != nil && opt.Coupling.IsCoupled(f) {
				for i := 0; i < 6; i++ {
					pfac := opt.Coupling.FaceValue(f, v[c][i])
					out[c][i] = out[c][i].Add(m.BFaceNormal[f].Scale(pfac))
				}
				continue
			}
			var (
				a, b = bc.at(f)
				vc   utils.Sym6
			)
			for i := 0; i < 6; i++ {
				vc[i] = v[c][i]
				if useRecon {
					vc[i] += recon[c][i].Dot(m.DiipB[f])
				}
			}
			for i := 0; i < 6; i++ {
				pfac := a[i]
				for j := 0; j < 6; j++ {
					pfac += b[i][j] * vc[j]
				}
				out[c][i] = out[c][i].Add(m.BFaceNormal[f].Scale(pfac))
			}
		}
	})
}
