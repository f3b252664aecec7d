package gradient

import (
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	Hybrid scheme: a full least squares pass (clip included) provides
	the reconstruction basis for a single Green-Gauss face pass, giving
	the conservative face weighted form the benefit of the least
	squares skewness correction without sweeping. An optional per cell
	correction matrix then compensates badly warped cells; it acts on
	the derivative index and is identity elsewhere.
*/

func applyWarp(W utils.Mat3, g utils.Vec3) utils.Vec3 { return W.MulVec(g) }

func (ctx *Context) hybridScalarGradient(m *mesh.Mesh, name string, opt *Options,
	v []float64, bc *ScalarBC, grad []utils.Vec3) {
	ctx.lsqScalarGradient(m, name, opt, v, bc, grad)
	ctx.clipScalar(m, name, opt, v, grad)

	acc := make([]utils.Vec3, m.NTotal())
	ctx.ggScalarAccumulate(m, opt, v, bc, grad, true, acc)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			g := acc[c].Scale(inverseVolume(m, c))
			if opt.WarpCorrection != nil {
				g = applyWarp(opt.WarpCorrection[c], g)
			}
			grad[c] = g
		}
	})
	m.Halo.SyncVec3s(grad)
}

func (ctx *Context) hybridVectorGradient(m *mesh.Mesh, name string, opt *Options,
	v []utils.Vec3, bc *VectorBC, grad []utils.Mat3) {
	ctx.lsqVectorGradient(m, name, opt, v, bc, grad)
	ctx.clipVector(m, name, opt, v, grad)

	acc := make([]utils.Mat3, m.NTotal())
	ctx.ggVectorAccumulate(m, opt, v, bc, grad, true, acc)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			g := acc[c].Scale(inverseVolume(m, c))
			if opt.WarpCorrection != nil {
				// Rows transform in the derivative index
				g = g.Mul(opt.WarpCorrection[c].Transpose())
			}
			grad[c] = g
		}
	})
	m.Halo.SyncMat3s(grad)
}

func (ctx *Context) hybridTensorGradient(m *mesh.Mesh, name string, opt *Options,
	v []utils.Sym6, bc *TensorBC, grad []utils.SymGrad) {
	ctx.lsqTensorGradient(m, name, opt, v, bc, grad)
	ctx.clipTensor(m, name, opt, v, grad)

	acc := make([]utils.SymGrad, m.NTotal())
	ctx.ggTensorAccumulate(m, opt, v, bc, grad, true, acc)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			iv := inverseVolume(m, c)
			for i := 0; i < 6; i++ {
				g := acc[c][i].Scale(iv)
				if opt.WarpCorrection != nil {
					g = applyWarp(opt.WarpCorrection[c], g)
				}
				grad[c][i] = g
			}
		}
	})
	m.Halo.SyncSymGrads(grad)
}
