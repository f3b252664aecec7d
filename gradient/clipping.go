package gradient

import (
	"fmt"
	"math"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	Gradient limiting. Cell based: compare the largest face projected
	gradient variation against the largest actual field variation over
	the neighborhood and scale the whole cell gradient down by
	coeff·Δv/Δproj when the projection overshoots. Face based: one
	sided factors per face, folded into a per cell minimum and
	min-combined across the halo before application, so both images of
	a partition boundary cell scale identically.

	Factors lie in (0,1]; a clipped gradient never grows. The reduced
	statistics are reporting only.
*/

type clipStats struct {
	nClipped   int
	minF, maxF float64
}

func (ctx *Context) clipCellBased(m *mesh.Mesh, opt *Options,
	proj func(c int, d utils.Vec3) float64,
	diff func(n, c int) float64,
	apply func(c int, fac float64)) (st clipStats) {
	var (
		red         reduction
		extIdx, ext []int
	)
	st.minF = math.Inf(1)
	if opt.Extent == EXTENT_Extended {
		extIdx, ext = m.ExtendedNeighbors()
	}
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		var local clipStats
		local.minF = math.Inf(1)
		for c := lo; c < hi; c++ {
			var denum, denom float64
			visit := func(n int) {
				d := m.CellCenter[n].Sub(m.CellCenter[c])
				if p := proj(c, d); p > denum {
					denum = p
				}
				if dv := diff(n, c); dv > denom {
					denom = dv
				}
			}
			for p := m.CellCellIdx[c]; p < m.CellCellIdx[c+1]; p++ {
				visit(m.CellCell[p])
			}
			if extIdx != nil {
				for p := extIdx[c]; p < extIdx[c+1]; p++ {
					visit(ext[p])
				}
			}
			if denum > opt.ClipCoeff*denom && denum > 0 {
				fac := opt.ClipCoeff * denom / denum
				apply(c, fac)
				local.nClipped++
				if fac < local.minF {
					local.minF = fac
				}
				if fac > local.maxF {
					local.maxF = fac
				}
			}
		}
		red.merge(func() {
			st.nClipped += local.nClipped
			if local.minF < st.minF {
				st.minF = local.minF
			}
			if local.maxF > st.maxF {
				st.maxF = local.maxF
			}
		})
	})
	return
}

func (ctx *Context) clipFaceBased(m *mesh.Mesh, opt *Options,
	proj func(c int, d utils.Vec3) float64,
	diff func(n, c int) float64,
	apply func(c int, fac float64)) (st clipStats) {
	var (
		fac = make([]float64, m.NTotal())
		red reduction
	)
	st.minF = math.Inf(1)
	for c := range fac {
		fac[c] = 1
	}
	ctx.parallelGroups(m.FaceGroups, func(lo, hi int) {
		for f := lo; f < hi; f++ {
			var (
				fc     = m.FaceCells[f]
				c0, c1 = fc[0], fc[1]
				d      = m.CellCenter[c1].Sub(m.CellCenter[c0])
				dv     = diff(c1, c0)
				bound  = opt.ClipCoeff * dv
			)
			if p := proj(c0, d); p > bound && p > 0 {
				if g := bound / p; g < fac[c0] {
					fac[c0] = g
				}
			}
			if p := proj(c1, d); p > bound && p > 0 {
				if g := bound / p; g < fac[c1] {
					fac[c1] = g
				}
			}
		}
	})
	// Both images of a halo cell must end with the same factor
	m.Halo.MinScalars(fac)
	ctx.parallelCells(m.NCells, func(lo, hi int) {
		var local clipStats
		local.minF = math.Inf(1)
		for c := lo; c < hi; c++ {
			if fac[c] < 1 {
				apply(c, fac[c])
				local.nClipped++
				if fac[c] < local.minF {
					local.minF = fac[c]
				}
				if fac[c] > local.maxF {
					local.maxF = fac[c]
				}
			}
		}
		red.merge(func() {
			st.nClipped += local.nClipped
			if local.minF < st.minF {
				st.minF = local.minF
			}
			if local.maxF > st.maxF {
				st.maxF = local.maxF
			}
		})
	})
	return
}

func (ctx *Context) reportClip(m *mesh.Mesh, opt *Options, name string, st clipStats) {
	var (
		n    = m.Comm.SumInt(st.nClipped)
		gMin = m.Comm.MinFloat64(st.minF)
		gMax = m.Comm.MaxFloat64(st.maxF)
	)
	if n > 0 && opt.Verbosity > 0 {
		fmt.Printf("gradient of %s: clipped %d cells, factor range [%g, %g]\n",
			name, n, gMin, gMax)
	}
}

func (ctx *Context) clipScalar(m *mesh.Mesh, name string, opt *Options,
	v []float64, grad []utils.Vec3) {
	if opt.ClipMode == CLIP_Off {
		return
	}
	var (
		proj  = func(c int, d utils.Vec3) float64 { return math.Abs(grad[c].Dot(d)) }
		diff  = func(n, c int) float64 { return math.Abs(v[n] - v[c]) }
		apply = func(c int, f float64) { grad[c] = grad[c].Scale(f) }
		st    clipStats
	)
	if opt.ClipMode == CLIP_CellBased {
		st = ctx.clipCellBased(m, opt, proj, diff, apply)
	} else {
		st = ctx.clipFaceBased(m, opt, proj, diff, apply)
	}
	m.Halo.SyncVec3s(grad)
	ctx.reportClip(m, opt, name, st)
}

func (ctx *Context) clipVector(m *mesh.Mesh, name string, opt *Options,
	v []utils.Vec3, grad []utils.Mat3) {
	if opt.ClipMode == CLIP_Off {
		return
	}
	var (
		proj  = func(c int, d utils.Vec3) float64 { return grad[c].MulVec(d).Norm() }
		diff  = func(n, c int) float64 { return v[n].Sub(v[c]).Norm() }
		apply = func(c int, f float64) { grad[c] = grad[c].Scale(f) }
		st    clipStats
	)
	if opt.ClipMode == CLIP_CellBased {
		st = ctx.clipCellBased(m, opt, proj, diff, apply)
	} else {
		st = ctx.clipFaceBased(m, opt, proj, diff, apply)
	}
	m.Halo.SyncMat3s(grad)
	ctx.reportClip(m, opt, name, st)
}

// clipTensor is cell based only; the face based mode is rejected for
// tensor fields at option validation
func (ctx *Context) clipTensor(m *mesh.Mesh, name string, opt *Options,
	v []utils.Sym6, grad []utils.SymGrad) {
	if opt.ClipMode == CLIP_Off {
		return
	}
	var (
		proj = func(c int, d utils.Vec3) float64 {
			var s float64
			for i := 0; i < 6; i++ {
				p := grad[c][i].Dot(d)
				s += p * p
			}
			return math.Sqrt(s)
		}
		diff = func(n, c int) float64 {
			var s float64
			for i := 0; i < 6; i++ {
				dv := v[n][i] - v[c][i]
				s += dv * dv
			}
			return math.Sqrt(s)
		}
		apply = func(c int, f float64) { grad[c] = grad[c].Scale(f) }
	)
	st := ctx.clipCellBased(m, opt, proj, diff, apply)
	m.Halo.SyncSymGrads(grad)
	ctx.reportClip(m, opt, name, st)
}
