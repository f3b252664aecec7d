package gradient

import (
	"fmt"
	"math"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	Iterative Green-Gauss drivers. INIT builds the non reconstructed
	face weighted estimate and divides by volume; each sweep then
	re-accumulates the face sum with the current gradient's skewness
	reconstruction, forms rhs = acc/V − grad and takes the Newton step
	grad += C⁻¹·rhs with the cached COCG inverse. Sweeps stop when the
	global L2 residual falls under Epsilon times the first sweep's
	residual, or at the NSweeps cap with a warning. A first residual at
	the roundoff floor of the field scale exits immediately, so a
	constant field costs one sweep instead of the full cap.

	Vector and tensor fields are component wise copies of the scalar
	fixed point: every gradient row is an independent scalar system in
	the derivative index, sharing one COCG matrix per cell.
*/

// inverseVolume is zero for disabled cells, freezing their gradient at
// whatever the accumulation left (zero after INIT)
func inverseVolume(m *mesh.Mesh, c int) float64 {
	if m.Disabled != nil && m.Disabled[c] {
		return 0
	}
	return 1 / m.CellVol[c]
}

func cappedWarning(name string, nSweeps int, residual, initNorm float64) {
	fmt.Printf("gradient of %s: not converged after %d sweeps, residual %g (initial %g)\n",
		name, nSweeps, residual, initNorm)
}

// fieldScale is the global L2 magnitude used to recognize a first
// residual that is pure roundoff
func (ctx *Context) fieldScale(m *mesh.Mesh, norm2 func(c int) float64) float64 {
	var (
		red reduction
		sum float64
	)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		var local float64
		for c := lo; c < hi; c++ {
			local += norm2(c)
		}
		red.merge(func() { sum += local })
	})
	return math.Sqrt(m.Comm.SumFloat64(sum))
}

func roundoffResidual(rNorm, fScale float64) bool {
	return rNorm <= 1.e-12*(fScale+1)
}

func (ctx *Context) iterScalarGradient(m *mesh.Mesh, name string, opt *Options,
	v []float64, bc *ScalarBC, grad []utils.Vec3) (sweeps int) {
	var (
		fk     = fieldKey{Name: name, Increment: opt.Increment, BC: bc}
		bCoeff = func(f int) float64 { _, b := bc.at(f); return b }
		cc     = ctx.getIterCOCG(m, fk, opt.Coupling, bCoeff)
		acc    = make([]utils.Vec3, m.NTotal())
		red    reduction
	)
	ctx.ggScalarAccumulate(m, opt, v, bc, nil, false, acc)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			grad[c] = acc[c].Scale(inverseVolume(m, c))
		}
	})
	m.Halo.SyncVec3s(grad)

	var (
		fScale          = ctx.fieldScale(m, func(c int) float64 { return v[c] * v[c] })
		initNorm, rNorm float64
	)
	for sweeps = 1; sweeps <= opt.NSweeps; sweeps++ {
		ctx.ggScalarAccumulate(m, opt, v, bc, grad, true, acc)
		var rSq float64
		ctx.parallelCells(m.NCells, func(lo, hi int) {
			var local float64
			for c := lo; c < hi; c++ {
				rhs := acc[c].Scale(inverseVolume(m, c)).Sub(grad[c])
				local += rhs.Norm2()
				grad[c] = grad[c].Add(cc.Inv[c].MulVec(rhs))
			}
			red.merge(func() { rSq += local })
		})
		m.Halo.SyncVec3s(grad)
		rNorm = math.Sqrt(m.Comm.SumFloat64(rSq))
		if opt.SweepResiduals != nil {
			*opt.SweepResiduals = append(*opt.SweepResiduals, rNorm)
		}
		if sweeps == 1 {
			initNorm = rNorm
			if roundoffResidual(initNorm, fScale) {
				return
			}
		}
		if rNorm <= opt.Epsilon*initNorm {
			if opt.Verbosity > 1 {
				fmt.Printf("gradient of %s: converged in %d sweeps, residual %g\n",
					name, sweeps, rNorm)
			}
			return
		}
	}
	sweeps = opt.NSweeps
	cappedWarning(name, sweeps, rNorm, initNorm)
	return
}

func (ctx *Context) iterVectorGradient(m *mesh.Mesh, name string, opt *Options,
	v []utils.Vec3, bc *VectorBC, grad []utils.Mat3) (sweeps int) {
	var (
		fk     = fieldKey{Name: name, Increment: opt.Increment, BC: bc}
		bCoeff = func(f int) float64 { _, b := bc.at(f); return traceThird(b) }
		cc     = ctx.getIterCOCG(m, fk, opt.Coupling, bCoeff)
		acc    = make([]utils.Mat3, m.NTotal())
		red    reduction
	)
	ctx.ggVectorAccumulate(m, opt, v, bc, nil, false, acc)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			grad[c] = acc[c].Scale(inverseVolume(m, c))
		}
	})
	m.Halo.SyncMat3s(grad)

	var (
		fScale          = ctx.fieldScale(m, func(c int) float64 { return v[c].Norm2() })
		initNorm, rNorm float64
	)
	for sweeps = 1; sweeps <= opt.NSweeps; sweeps++ {
		ctx.ggVectorAccumulate(m, opt, v, bc, grad, true, acc)
		var rSq float64
		ctx.parallelCells(m.NCells, func(lo, hi int) {
			var local float64
			for c := lo; c < hi; c++ {
				rhs := acc[c].Scale(inverseVolume(m, c)).Sub(grad[c])
				fn := rhs.FrobeniusNorm()
				local += fn * fn
				// Each gradient row takes the step in the derivative
				// index, rhs·(C⁻¹)ᵀ
				grad[c] = grad[c].Add(rhs.Mul(cc.Inv[c].Transpose()))
			}
			red.merge(func() { rSq += local })
		})
		m.Halo.SyncMat3s(grad)
		rNorm = math.Sqrt(m.Comm.SumFloat64(rSq))
		if opt.SweepResiduals != nil {
			*opt.SweepResiduals = append(*opt.SweepResiduals, rNorm)
		}
		if sweeps == 1 {
			initNorm = rNorm
			if roundoffResidual(initNorm, fScale) {
				return
			}
		}
		if rNorm <= opt.Epsilon*initNorm {
			if opt.Verbosity > 1 {
				fmt.Printf("gradient of %s: converged in %d sweeps, residual %g\n",
					name, sweeps, rNorm)
			}
			return
		}
	}
	sweeps = opt.NSweeps
	cappedWarning(name, sweeps, rNorm, initNorm)
	return
}

func (ctx *Context) iterTensorGradient(m *mesh.Mesh, name string, opt *Options,
	v []utils.Sym6, bc *TensorBC, grad []utils.SymGrad) (sweeps int) {
	var (
		fk     = fieldKey{Name: name, Increment: opt.Increment, BC: bc}
		bCoeff = func(f int) float64 { _, b := bc.at(f); return traceSixth(b) }
		cc     = ctx.getIterCOCG(m, fk, opt.Coupling, bCoeff)
		acc    = make([]utils.SymGrad, m.NTotal())
		red    reduction
	)
	ctx.ggTensorAccumulate(m, opt, v, bc, nil, false, acc)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			grad[c] = acc[c].Scale(inverseVolume(m, c))
		}
	})
	m.Halo.SyncSymGrads(grad)

	var (
		fScale = ctx.fieldScale(m, func(c int) float64 {
			var s float64
			for i := 0; i < 6; i++ {
				s += v[c][i] * v[c][i]
			}
			return s
		})
		initNorm, rNorm float64
	)
	for sweeps = 1; sweeps <= opt.NSweeps; sweeps++ {
		ctx.ggTensorAccumulate(m, opt, v, bc, grad, true, acc)
		var rSq float64
		ctx.parallelCells(m.NCells, func(lo, hi int) {
			var local float64
			for c := lo; c < hi; c++ {
				iv := inverseVolume(m, c)
				for i := 0; i < 6; i++ {
					rhs := acc[c][i].Scale(iv).Sub(grad[c][i])
					local += rhs.Norm2()
					grad[c][i] = grad[c][i].Add(cc.Inv[c].MulVec(rhs))
				}
			}
			red.merge(func() { rSq += local })
		})
		m.Halo.SyncSymGrads(grad)
		rNorm = math.Sqrt(m.Comm.SumFloat64(rSq))
		if opt.SweepResiduals != nil {
			*opt.SweepResiduals = append(*opt.SweepResiduals, rNorm)
		}
		if sweeps == 1 {
			initNorm = rNorm
			if roundoffResidual(initNorm, fScale) {
				return
			}
		}
		if rNorm <= opt.Epsilon*initNorm {
			if opt.Verbosity > 1 {
				fmt.Printf("gradient of %s: converged in %d sweeps, residual %g\n",
					name, sweeps, rNorm)
			}
			return
		}
	}
	sweeps = opt.NSweeps
	cappedWarning(name, sweeps, rNorm, initNorm)
	return
}
