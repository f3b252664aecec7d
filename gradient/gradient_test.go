package gradient

import (
	"math"
	"testing"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skewedMesh() *mesh.Mesh {
	return mesh.NewCartesian3D(6, 5, 4,
		mesh.CartesianOpts{Lx: 1, Ly: 1.2, Lz: 0.9, Skew: 0.12, StretchZ: 0.3})
}

func affineScalar(m *mesh.Mesh, g utils.Vec3, a float64) (v []float64) {
	v = make([]float64, m.NTotal())
	for c := range v {
		v[c] = a + g.Dot(m.CellCenter[c])
	}
	return
}

// dirichletScalar prescribes exact face values of fn: A = fn(xf), B = 0
func dirichletScalar(m *mesh.Mesh, fn func(utils.Vec3) float64) (bc *ScalarBC) {
	bc = &ScalarBC{
		A: make([]float64, m.NBFaces()),
		B: make([]float64, m.NBFaces()),
	}
	for f := range bc.A {
		bc.A[f] = fn(m.BFaceCenter[f])
	}
	return
}

func maxVecErr(grad []utils.Vec3, exact utils.Vec3, n int) (e float64) {
	for c := 0; c < n; c++ {
		if d := grad[c].Sub(exact).Norm(); d > e {
			e = d
		}
	}
	return
}

func TestScalarExactnessAffine(t *testing.T) {
	var (
		m     = skewedMesh()
		gex   = utils.Vec3{1.5, -2, 0.75}
		v     = affineScalar(m, gex, 3)
		bc    = dirichletScalar(m, func(x utils.Vec3) float64 { return 3 + gex.Dot(x) })
		grad  = make([]utils.Vec3, m.NTotal())
		cases = []Options{
			{Scheme: SCHEME_LeastSquares},
			{Scheme: SCHEME_LeastSquares, Extent: EXTENT_Extended},
			{Scheme: SCHEME_Iterative, NSweeps: 100, Epsilon: 1.e-12},
			{Scheme: SCHEME_Hybrid},
		}
	)
	for _, opt := range cases {
		ctx := NewContext(4)
		ctx.ScalarGradient(m, "p", opt, v, bc, grad)
		assert.Less(t, maxVecErr(grad, gex, m.NCells), 1.e-8,
			opt.Scheme.Print()+" / "+opt.Extent.Print())
	}
}

func TestScalarConstantNeumann(t *testing.T) {
	// Constant field, nil BC (homogeneous Neumann): all schemes return
	// zero; the iterative scheme exits after the first sweep on a zero
	// residual norm
	var (
		m    = skewedMesh()
		ctx  = NewContext(4)
		v    = affineScalar(m, utils.Vec3{}, 42)
		grad = make([]utils.Vec3, m.NTotal())
	)
	for _, opt := range []Options{
		{Scheme: SCHEME_LeastSquares},
		{Scheme: SCHEME_Iterative, NSweeps: 50, Epsilon: 1.e-10},
		{Scheme: SCHEME_Hybrid},
	} {
		ctx.ScalarGradient(m, "rho", opt, v, nil, grad)
		assert.Less(t, maxVecErr(grad, utils.Vec3{}, m.NCells), 1.e-12)
	}
	e := ctx.Diags.Lookup("rho", SCHEME_Iterative)
	assert.Equal(t, 1, e.MaxSweeps)
}

func TestSingleCellBoundaryAffine(t *testing.T) {
	// One cube, six Dirichlet faces: the gradient comes entirely from
	// the boundary pseudo neighbor rows
	var (
		m    = mesh.NewCartesian3D(1, 1, 1, mesh.CartesianOpts{Lx: 1, Ly: 1, Lz: 1})
		gex  = utils.Vec3{0.3, -1.1, 2.2}
		v    = affineScalar(m, gex, -1)
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return -1 + gex.Dot(x) })
		ctx  = NewContext(1)
		grad = make([]utils.Vec3, m.NTotal())
	)
	ctx.ScalarGradient(m, "phi", Options{Scheme: SCHEME_LeastSquares}, v, bc, grad)
	assert.Less(t, grad[0].Sub(gex).Norm(), 1.e-10)

	ctx.ScalarGradient(m, "phi",
		Options{Scheme: SCHEME_Iterative, NSweeps: 50, Epsilon: 1.e-12}, v, bc, grad)
	assert.Less(t, grad[0].Sub(gex).Norm(), 1.e-10)
}

func TestIterativeConvergenceSinusoidal(t *testing.T) {
	var (
		m = mesh.NewCartesian3D(10, 10, 8,
			mesh.CartesianOpts{Lx: 1, Ly: 1, Lz: 1, Skew: 0.08, StretchZ: 0.2})
		fn = func(x utils.Vec3) float64 {
			return math.Sin(2*math.Pi*x[0]) * math.Cos(2*math.Pi*x[1])
		}
		v    = make([]float64, m.NTotal())
		bc   = dirichletScalar(m, fn)
		ctx  = NewContext(4)
		grad = make([]utils.Vec3, m.NTotal())
	)
	for c := range v {
		v[c] = fn(m.CellCenter[c])
	}
	var hist []float64
	opt := Defaults()
	opt.NSweeps = 20
	opt.Epsilon = 1.e-5
	opt.SweepResiduals = &hist
	ctx.ScalarGradient(m, "T", opt, v, bc, grad)
	e := ctx.Diags.Lookup("T", SCHEME_Iterative)
	require.Equal(t, 1, e.Calls)
	assert.Less(t, e.MaxSweeps, opt.NSweeps) // converged, not capped
	// The residual history never grows sweep over sweep and ends below
	// the relative tolerance
	require.NotEmpty(t, hist)
	for i := 1; i < len(hist); i++ {
		assert.LessOrEqual(t, hist[i], hist[i-1]*(1+1.e-12))
	}
	assert.LessOrEqual(t, hist[len(hist)-1], opt.Epsilon*hist[0])
	// Discretization level accuracy against the analytic gradient
	var num, den float64
	for c := 0; c < m.NCells; c++ {
		x := m.CellCenter[c]
		ex := utils.Vec3{
			2 * math.Pi * math.Cos(2*math.Pi*x[0]) * math.Cos(2*math.Pi*x[1]),
			-2 * math.Pi * math.Sin(2*math.Pi*x[0]) * math.Sin(2*math.Pi*x[1]),
			0,
		}
		num += grad[c].Sub(ex).Norm2()
		den += ex.Norm2()
	}
	assert.Less(t, math.Sqrt(num/den), 0.2)
}

func TestVectorExactBoundaryCoupling(t *testing.T) {
	// Affine vector field with a BC matrix that couples the components;
	// only the dense boundary cell correction can recover the exact
	// gradient here, the trace approximation cannot
	var (
		m  = skewedMesh()
		G  = utils.Mat3{{1, 0.5, 0}, {-0.3, 2, 0.1}, {0, 0.4, -1}}
		v0 = utils.Vec3{1, -2, 0.5}
		vf = func(x utils.Vec3) utils.Vec3 { return v0.Add(G.MulVec(x)) }
		B  = utils.Mat3{{0.6, 0.3, 0}, {0.2, 0.7, 0.1}, {0, 0.2, 0.9}}
	)
	v := make([]utils.Vec3, m.NTotal())
	for c := range v {
		v[c] = vf(m.CellCenter[c])
	}
	bc := &VectorBC{
		A: make([]utils.Vec3, m.NBFaces()),
		B: make([]utils.Mat3, m.NBFaces()),
	}
	for f := range bc.A {
		// Face value = A + B·(value at the foot of the face normal),
		// solved for A so the exact field satisfies the relation
		c := m.BFaceCell[f]
		xI := m.CellCenter[c].Add(m.DiipB[f])
		bc.A[f] = vf(m.BFaceCenter[f]).Sub(B.MulVec(vf(xI)))
		bc.B[f] = B
	}
	var (
		ctx  = NewContext(4)
		grad = make([]utils.Mat3, m.NTotal())
	)
	ctx.VectorGradient(m, "U", Options{Scheme: SCHEME_LeastSquares}, v, bc, grad)
	for c := 0; c < m.NCells; c++ {
		assert.Less(t, grad[c].Sub(G).FrobeniusNorm(), 1.e-9)
	}
}

func TestTensorExactnessAffine(t *testing.T) {
	var (
		m  = skewedMesh()
		G  utils.SymGrad
		s0 = utils.Sym6{1, 2, -1, 0.5, 0, -0.25}
	)
	G[utils.XX] = utils.Vec3{1, 0, 0.5}
	G[utils.YY] = utils.Vec3{0, -1, 0}
	G[utils.ZZ] = utils.Vec3{0.2, 0.3, 0.4}
	G[utils.XY] = utils.Vec3{-0.5, 1, 0}
	G[utils.YZ] = utils.Vec3{0, 0, 1}
	G[utils.XZ] = utils.Vec3{0.1, -0.1, 0.1}
	var (
		sf = func(x utils.Vec3) (s utils.Sym6) {
			for i := 0; i < 6; i++ {
				s[i] = s0[i] + G[i].Dot(x)
			}
			return
		}
		v = make([]utils.Sym6, m.NTotal())
	)
	for c := range v {
		v[c] = sf(m.CellCenter[c])
	}
	// BC with off diagonal coupling between components, A solved so the
	// exact field satisfies the affine relation
	var B [6][6]float64
	for i := 0; i < 6; i++ {
		B[i][i] = 0.8
		B[i][(i+1)%6] = 0.15
	}
	bc := &TensorBC{
		A: make([]utils.Sym6, m.NBFaces()),
		B: make([][6][6]float64, m.NBFaces()),
	}
	for f := range bc.A {
		var (
			c  = m.BFaceCell[f]
			xI = m.CellCenter[c].Add(m.DiipB[f])
			sI = sf(xI)
			sF = sf(m.BFaceCenter[f])
		)
		for i := 0; i < 6; i++ {
			bc.A[f][i] = sF[i]
			for j := 0; j < 6; j++ {
				bc.A[f][i] -= B[i][j] * sI[j]
			}
		}
		bc.B[f] = B
	}
	var (
		ctx  = NewContext(4)
		grad = make([]utils.SymGrad, m.NTotal())
	)
	ctx.TensorGradient(m, "Rij", Options{Scheme: SCHEME_LeastSquares}, v, bc, grad)
	for c := 0; c < m.NCells; c++ {
		for i := 0; i < 6; i++ {
			assert.Less(t, grad[c][i].Sub(G[i]).Norm(), 1.e-9)
		}
	}
}

func TestHydrostaticExactness(t *testing.T) {
	// A field matching a uniform hydrostatic profile: the deviation
	// system is identically zero and the gradient equals the force
	var (
		m    = skewedMesh()
		F0   = utils.Vec3{0, 0, -9.81}
		v    = affineScalar(m, F0, 1)
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return 1 + F0.Dot(x) })
		fext = make([]utils.Vec3, m.NTotal())
		ctx  = NewContext(4)
	)
	for c := range fext {
		fext[c] = F0
	}
	var (
		grad  = make([]utils.Vec3, m.NTotal())
		plain = make([]utils.Vec3, m.NTotal())
	)
	for _, opt := range []Options{
		{Scheme: SCHEME_LeastSquares, HydrostaticForce: fext},
		{Scheme: SCHEME_Iterative, NSweeps: 100, Epsilon: 1.e-12, HydrostaticForce: fext},
	} {
		ctx.ScalarGradient(m, "p_hyd", opt, v, bc, grad)
		assert.Less(t, maxVecErr(grad, F0, m.NCells), 1.e-8, opt.Scheme.Print())

		// And it agrees with the uncorrected gradient of the same field
		opt.HydrostaticForce = nil
		ctx.ScalarGradient(m, "p_plain", opt, v, bc, plain)
		for c := 0; c < m.NCells; c++ {
			assert.Less(t, grad[c].Sub(plain[c]).Norm(), 1.e-8)
		}
	}
}

func TestAssemblyStrategiesAgree(t *testing.T) {
	// The three RHS orderings are numerically consistent on a skewed
	// mesh with a nonuniform force and a rough field
	var (
		m    = skewedMesh()
		v    = make([]float64, m.NTotal())
		fext = make([]utils.Vec3, m.NTotal())
	)
	for c := range v {
		x := m.CellCenter[c]
		v[c] = math.Sin(5*x[0]) + x[1]*x[1] - 0.3*x[2]
		fext[c] = utils.Vec3{x[1], -x[0], 1 + 0.1*x[2]}
	}
	var (
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return math.Sin(5*x[0]) + x[1]*x[1] - 0.3*x[2] })
		out  [3][]utils.Vec3
		strs = []AssemblyStrategy{ASSEMBLY_Scatter, ASSEMBLY_AtomicScatter, ASSEMBLY_Gather}
	)
	for i, s := range strs {
		ctx := NewContext(4)
		out[i] = make([]utils.Vec3, m.NTotal())
		opt := Options{Scheme: SCHEME_LeastSquares, HydrostaticForce: fext, Assembly: s}
		ctx.ScalarGradient(m, "p", opt, v, bc, out[i])
	}
	for c := 0; c < m.NCells; c++ {
		assert.Less(t, out[0][c].Sub(out[1][c]).Norm(), 1.e-11)
		assert.Less(t, out[0][c].Sub(out[2][c]).Norm(), 1.e-11)
	}
}

func TestClippingLimits(t *testing.T) {
	// A step field: clipping may only shrink gradients, never grow or
	// flip them
	var (
		m = mesh.NewCartesian3D(8, 4, 4, mesh.CartesianOpts{Lx: 1, Ly: 1, Lz: 1})
		v = make([]float64, m.NTotal())
	)
	for c := range v {
		if m.CellCenter[c][0] > 0.5 {
			v[c] = 100
		}
	}
	for _, mode := range []ClipMode{CLIP_CellBased, CLIP_FaceBased} {
		var (
			ctx  = NewContext(4)
			base = make([]utils.Vec3, m.NTotal())
			clip = make([]utils.Vec3, m.NTotal())
		)
		// A tight coefficient guarantees the step cells exceed the bound
		ctx.ScalarGradient(m, "alpha", Options{Scheme: SCHEME_LeastSquares}, v, nil, base)
		ctx.ScalarGradient(m, "alpha",
			Options{Scheme: SCHEME_LeastSquares, ClipMode: mode, ClipCoeff: 0.1}, v, nil, clip)
		var clipped bool
		for c := 0; c < m.NCells; c++ {
			assert.LessOrEqual(t, clip[c].Norm(), base[c].Norm()*(1+1.e-12), mode.Print())
			if clip[c].Norm() < base[c].Norm()*(1-1.e-12) {
				clipped = true
				// A clipped gradient is a pure scaling of the original
				cross := clip[c].Sub(base[c].Scale(clip[c].Norm() / base[c].Norm()))
				assert.Less(t, cross.Norm(), 1.e-10)
			}
		}
		assert.True(t, clipped, mode.Print())
	}
}

func TestClippingLeavesAffineAlone(t *testing.T) {
	// On an affine field the projected variation equals the actual one,
	// so no cell may be clipped
	var (
		m    = skewedMesh()
		gex  = utils.Vec3{2, 1, -1}
		v    = affineScalar(m, gex, 0)
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return gex.Dot(x) })
		ctx  = NewContext(4)
		grad = make([]utils.Vec3, m.NTotal())
	)
	opt := Options{Scheme: SCHEME_LeastSquares, ClipMode: CLIP_CellBased, ClipCoeff: 1.5}
	ctx.ScalarGradient(m, "p", opt, v, bc, grad)
	assert.Less(t, maxVecErr(grad, gex, m.NCells), 1.e-9)
}

func TestBoundaryRefreshAcrossBCChanges(t *testing.T) {
	// Same context, same field name, different BC coefficients: the
	// cached boundary contribution must be refreshed, giving the same
	// answer as a cold context
	var (
		m    = skewedMesh()
		gex  = utils.Vec3{1, 1, 1}
		v    = affineScalar(m, gex, 0)
		bcD  = dirichletScalar(m, func(x utils.Vec3) float64 { return gex.Dot(x) })
		warm = NewContext(4)
		cold = NewContext(4)
	)
	var (
		g1 = make([]utils.Vec3, m.NTotal())
		g2 = make([]utils.Vec3, m.NTotal())
		g3 = make([]utils.Vec3, m.NTotal())
	)
	opt := Options{Scheme: SCHEME_LeastSquares}
	warm.ScalarGradient(m, "p", opt, v, nil, g1) // Neumann pass primes the cache
	warm.ScalarGradient(m, "p", opt, v, bcD, g2) // same name, new BC
	cold.ScalarGradient(m, "p", opt, v, bcD, g3)
	for c := 0; c < m.NCells; c++ {
		assert.Less(t, g2[c].Sub(g3[c]).Norm(), 1.e-13)
	}

	// Iterative scheme, same contract
	optIt := Options{Scheme: SCHEME_Iterative, NSweeps: 60, Epsilon: 1.e-12}
	warm.ScalarGradient(m, "p", optIt, v, nil, g1)
	warm.ScalarGradient(m, "p", optIt, v, bcD, g2)
	cold.ScalarGradient(m, "p", optIt, v, bcD, g3)
	for c := 0; c < m.NCells; c++ {
		assert.Less(t, g2[c].Sub(g3[c]).Norm(), 1.e-13)
	}
}

func TestGradientAtCell(t *testing.T) {
	var (
		m    = skewedMesh()
		gex  = utils.Vec3{0.5, 2, -1.5}
		v    = affineScalar(m, gex, 1)
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return 1 + gex.Dot(x) })
		ctx  = NewContext(2)
		grad = make([]utils.Vec3, m.NTotal())
	)
	ctx.ScalarGradient(m, "p", Options{Scheme: SCHEME_LeastSquares}, v, bc, grad)
	for _, c := range []int{0, m.NCells / 2, m.NCells - 1} {
		g := ctx.ScalarGradientAtCell(m, c, v, bc)
		assert.Less(t, g.Sub(grad[c]).Norm(), 1.e-12)
	}

	vv := make([]utils.Vec3, m.NTotal())
	for c := range vv {
		x := m.CellCenter[c]
		vv[c] = utils.Vec3{2 * x[0], -x[1], x[2]}
	}
	// An interior cell (no boundary faces) of the 6x5x4 box: the affine
	// field is recovered exactly regardless of the BC
	interior := 2 + 6*(2+5*1)
	require.Equal(t, m.CellBFIdx[interior], m.CellBFIdx[interior+1])
	gv := ctx.VectorGradientAtCell(m, interior, vv, nil)
	exact := utils.Mat3{{2, 0, 0}, {0, -1, 0}, {0, 0, 1}}
	assert.Less(t, gv.Sub(exact).FrobeniusNorm(), 1.e-9)
}

func TestOptionCodes(t *testing.T) {
	for _, tc := range []struct {
		code   int
		scheme Scheme
		extent Extent
	}{
		{0, SCHEME_Iterative, EXTENT_Standard},
		{1, SCHEME_LeastSquares, EXTENT_Standard},
		{2, SCHEME_LeastSquares, EXTENT_Extended},
		{3, SCHEME_LeastSquares, EXTENT_Extended},
		{4, SCHEME_Hybrid, EXTENT_Standard},
		{5, SCHEME_Hybrid, EXTENT_Extended},
		{6, SCHEME_Hybrid, EXTENT_Extended},
	} {
		s, e := OptionCode(tc.code)
		assert.Equal(t, tc.scheme, s)
		assert.Equal(t, tc.extent, e)
	}
	assert.Panics(t, func() { OptionCode(7) })
	assert.Panics(t, func() { NewScheme("upwind") })
	assert.Equal(t, SCHEME_Hybrid, NewScheme("HYBRID"))
}

func TestOptionValidation(t *testing.T) {
	var (
		m    = mesh.NewCartesian3D(2, 2, 2, mesh.CartesianOpts{})
		ctx  = NewContext(1)
		v    = make([]utils.Sym6, m.NTotal())
		grad = make([]utils.SymGrad, m.NTotal())
	)
	assert.Panics(t, func() {
		ctx.TensorGradient(m, "Rij",
			Options{Scheme: SCHEME_LeastSquares, ClipMode: CLIP_FaceBased}, v, nil, grad)
	})
	assert.Panics(t, func() {
		sv := make([]float64, m.NTotal())
		sg := make([]utils.Vec3, m.NTotal())
		ctx.ScalarGradient(m, "p",
			Options{Scheme: SCHEME_Iterative, NSweeps: 1,
				TensorWeight: make([]utils.Sym6, m.NTotal())}, sv, nil, sg)
	})
}

// mirrorCoupling presents every boundary face as an internal coupling
// to a pseudo neighbor mirrored across the face, carrying exact values
// of an affine field
type mirrorCoupling struct {
	m *mesh.Mesh
	g utils.Vec3
}

func (mc *mirrorCoupling) ID() int              { return 7 }
func (mc *mirrorCoupling) IsCoupled(f int) bool { return true }

func (mc *mirrorCoupling) NeighborOffset(f int) utils.Vec3 {
	c := mc.m.BFaceCell[f]
	return mc.m.BFaceCenter[f].Sub(mc.m.CellCenter[c]).Scale(2)
}

func (mc *mirrorCoupling) FaceValue(f int, cellValue float64) float64 {
	c := mc.m.BFaceCell[f]
	return cellValue + mc.g.Dot(mc.m.BFaceCenter[f].Sub(mc.m.CellCenter[c]))
}

func (mc *mirrorCoupling) NeighborValue(f int, cellValue float64) float64 {
	return cellValue + mc.g.Dot(mc.NeighborOffset(f))
}

func TestInternalCoupling(t *testing.T) {
	var (
		m    = skewedMesh()
		gex  = utils.Vec3{-1, 0.5, 2}
		v    = affineScalar(m, gex, 5)
		cpl  = &mirrorCoupling{m: m, g: gex}
		grad = make([]utils.Vec3, m.NTotal())
	)
	for _, opt := range []Options{
		{Scheme: SCHEME_LeastSquares, Coupling: cpl},
		{Scheme: SCHEME_Iterative, NSweeps: 100, Epsilon: 1.e-12, Coupling: cpl},
	} {
		ctx := NewContext(4)
		ctx.ScalarGradient(m, "p", opt, v, nil, grad)
		assert.Less(t, maxVecErr(grad, gex, m.NCells), 1.e-8, opt.Scheme.Print())
	}
}

func TestDiagnosticsRegistry(t *testing.T) {
	r := &Registry{}
	e := r.Lookup("p", SCHEME_Iterative)
	e.Record(5, 0)
	e.Record(2, 0)
	e.Record(9, 0)
	assert.Same(t, e, r.Lookup("p", SCHEME_Iterative))
	assert.Equal(t, 3, e.Calls)
	assert.Equal(t, 2, e.MinSweeps)
	assert.Equal(t, 9, e.MaxSweeps)
	assert.Equal(t, 16, e.TotalSweeps)
	// Distinct entries per scheme and per field
	assert.NotSame(t, e, r.Lookup("p", SCHEME_LeastSquares))
	assert.NotSame(t, e, r.Lookup("U", SCHEME_Iterative))
}

func TestIterativeVectorAffine(t *testing.T) {
	// The sweep drivers are component wise copies of the scalar fixed
	// point; an affine field with Dirichlet faces is recovered exactly
	var (
		m = mesh.NewCartesian3D(5, 4, 4,
			mesh.CartesianOpts{Lx: 1, Ly: 1, Lz: 1, Skew: 0.1, StretchZ: 0.25})
		G  = utils.Mat3{{1, 0.5, 0}, {-0.3, 2, 0.1}, {0, 0.4, -1}}
		v0 = utils.Vec3{1, -2, 0.5}
		vf = func(x utils.Vec3) utils.Vec3 { return v0.Add(G.MulVec(x)) }
		v  = make([]utils.Vec3, m.NTotal())
		bc = &VectorBC{
			A: make([]utils.Vec3, m.NBFaces()),
			B: make([]utils.Mat3, m.NBFaces()),
		}
	)
	for c := range v {
		v[c] = vf(m.CellCenter[c])
	}
	for f := range bc.A {
		bc.A[f] = vf(m.BFaceCenter[f])
	}
	var (
		ctx  = NewContext(4)
		grad = make([]utils.Mat3, m.NTotal())
	)
	ctx.VectorGradient(m, "U",
		Options{Scheme: SCHEME_Iterative, NSweeps: 100, Epsilon: 1.e-12}, v, bc, grad)
	for c := 0; c < m.NCells; c++ {
		assert.Less(t, grad[c].Sub(G).FrobeniusNorm(), 1.e-8)
	}
}

func TestIterativeTensorAffine(t *testing.T) {
	var (
		m = mesh.NewCartesian3D(5, 4, 4,
			mesh.CartesianOpts{Lx: 1, Ly: 1, Lz: 1, Skew: 0.1, StretchZ: 0.25})
		G  utils.SymGrad
		s0 = utils.Sym6{1, 2, -1, 0.5, 0, -0.25}
	)
	G[utils.XX] = utils.Vec3{1, 0, 0.5}
	G[utils.YY] = utils.Vec3{0, -1, 0}
	G[utils.ZZ] = utils.Vec3{0.2, 0.3, 0.4}
	G[utils.XY] = utils.Vec3{-0.5, 1, 0}
	G[utils.YZ] = utils.Vec3{0, 0, 1}
	G[utils.XZ] = utils.Vec3{0.1, -0.1, 0.1}
	var (
		sf = func(x utils.Vec3) (s utils.Sym6) {
			for i := 0; i < 6; i++ {
				s[i] = s0[i] + G[i].Dot(x)
			}
			return
		}
		v  = make([]utils.Sym6, m.NTotal())
		bc = &TensorBC{
			A: make([]utils.Sym6, m.NBFaces()),
			B: make([][6][6]float64, m.NBFaces()),
		}
	)
	for c := range v {
		v[c] = sf(m.CellCenter[c])
	}
	for f := range bc.A {
		bc.A[f] = sf(m.BFaceCenter[f])
	}
	var (
		ctx  = NewContext(4)
		grad = make([]utils.SymGrad, m.NTotal())
	)
	ctx.TensorGradient(m, "Rij",
		Options{Scheme: SCHEME_Iterative, NSweeps: 100, Epsilon: 1.e-12}, v, bc, grad)
	for c := 0; c < m.NCells; c++ {
		for i := 0; i < 6; i++ {
			assert.Less(t, grad[c][i].Sub(G[i]).Norm(), 1.e-8)
		}
	}
}

func TestUniformWeightNeutral(t *testing.T) {
	// A spatially constant diffusivity weight cancels out of both the
	// weighted interpolation factor and the weighted normal equations
	var (
		m  = skewedMesh()
		fn = func(x utils.Vec3) float64 {
			return math.Sin(3*x[0])*x[1] + x[2]*x[2]
		}
		v  = make([]float64, m.NTotal())
		bc = dirichletScalar(m, fn)
		w  = make([]float64, m.NTotal())
	)
	for c := range v {
		v[c] = fn(m.CellCenter[c])
		w[c] = 2.5
	}
	for _, opt := range []Options{
		{Scheme: SCHEME_LeastSquares},
		{Scheme: SCHEME_Iterative, NSweeps: 60, Epsilon: 1.e-10},
	} {
		var (
			base     = make([]utils.Vec3, m.NTotal())
			weighted = make([]utils.Vec3, m.NTotal())
		)
		NewContext(4).ScalarGradient(m, "T", opt, v, bc, base)
		opt.Weight = w
		NewContext(4).ScalarGradient(m, "T", opt, v, bc, weighted)
		for c := 0; c < m.NCells; c++ {
			assert.Less(t, weighted[c].Sub(base[c]).Norm(), 1.e-10, opt.Scheme.Print())
		}
	}
}

func TestIsotropicTensorWeight(t *testing.T) {
	// An identity conductivity tensor leaves every direction untouched,
	// so the anisotropic path reproduces the plain least squares answer
	var (
		m    = skewedMesh()
		gex  = utils.Vec3{1.5, -2, 0.75}
		v    = affineScalar(m, gex, 3)
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return 3 + gex.Dot(x) })
		tw   = make([]utils.Sym6, m.NTotal())
		base = make([]utils.Vec3, m.NTotal())
		grad = make([]utils.Vec3, m.NTotal())
	)
	for c := range tw {
		tw[c][utils.XX], tw[c][utils.YY], tw[c][utils.ZZ] = 1, 1, 1
	}
	NewContext(4).ScalarGradient(m, "T", Options{Scheme: SCHEME_LeastSquares}, v, bc, base)
	NewContext(4).ScalarGradient(m, "T",
		Options{Scheme: SCHEME_LeastSquares, TensorWeight: tw}, v, bc, grad)
	assert.Less(t, maxVecErr(grad, gex, m.NCells), 1.e-9)
	for c := 0; c < m.NCells; c++ {
		assert.Less(t, grad[c].Sub(base[c]).Norm(), 1.e-10)
	}
}

func TestHybridWarpCorrection(t *testing.T) {
	var (
		m    = skewedMesh()
		gex  = utils.Vec3{1.5, -2, 0.75}
		v    = affineScalar(m, gex, 3)
		bc   = dirichletScalar(m, func(x utils.Vec3) float64 { return 3 + gex.Dot(x) })
		base = make([]utils.Vec3, m.NTotal())
		grad = make([]utils.Vec3, m.NTotal())
		W    = make([]utils.Mat3, m.NCells)
	)
	NewContext(4).ScalarGradient(m, "p", Options{Scheme: SCHEME_Hybrid}, v, bc, base)

	{ // Identity correction changes nothing
		for c := range W {
			W[c] = utils.IdentityMat3()
		}
		NewContext(4).ScalarGradient(m, "p",
			Options{Scheme: SCHEME_Hybrid, WarpCorrection: W}, v, bc, grad)
		for c := 0; c < m.NCells; c++ {
			assert.Less(t, grad[c].Sub(base[c]).Norm(), 1.e-14)
		}
	}
	Wd := utils.Mat3{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}}
	{ // A known matrix acts on the derivative index of the result
		for c := range W {
			W[c] = Wd
		}
		NewContext(4).ScalarGradient(m, "p",
			Options{Scheme: SCHEME_Hybrid, WarpCorrection: W}, v, bc, grad)
		assert.Less(t, maxVecErr(grad, Wd.MulVec(gex), m.NCells), 1.e-8)
	}
	{ // Vector field: every gradient row transforms the same way
		var (
			G  = utils.Mat3{{1, 0.5, 0}, {-0.3, 2, 0.1}, {0, 0.4, -1}}
			vv = make([]utils.Vec3, m.NTotal())
			gv = make([]utils.Mat3, m.NTotal())
			vb = &VectorBC{
				A: make([]utils.Vec3, m.NBFaces()),
				B: make([]utils.Mat3, m.NBFaces()),
			}
			want utils.Mat3
		)
		for c := range vv {
			vv[c] = G.MulVec(m.CellCenter[c])
		}
		for f := range vb.A {
			vb.A[f] = G.MulVec(m.BFaceCenter[f])
		}
		for i := 0; i < 3; i++ {
			want[i] = Wd.MulVec(G[i])
		}
		NewContext(4).VectorGradient(m, "U",
			Options{Scheme: SCHEME_Hybrid, WarpCorrection: W}, vv, vb, gv)
		for c := 0; c < m.NCells; c++ {
			assert.Less(t, gv[c].Sub(want).FrobeniusNorm(), 1.e-8)
		}
	}
}

func TestInternalCouplingVectorTensor(t *testing.T) {
	// Components sharing one affine map let the scalar valued coupling
	// hooks serve every component; the coupled boundary faces must be
	// consulted by the vector and tensor kernels exactly as the scalar
	// ones do
	var (
		m   = skewedMesh()
		gex = utils.Vec3{-1, 0.5, 2}
		cpl = &mirrorCoupling{m: m, g: gex}
		v   = make([]utils.Vec3, m.NTotal())
		s   = make([]utils.Sym6, m.NTotal())
		a   = utils.Sym6{1, 2, -1, 0.5, 0, -0.25}
	)
	for c := range v {
		x := gex.Dot(m.CellCenter[c])
		v[c] = utils.Vec3{1 + x, -2 + x, 0.5 + x}
		for i := 0; i < 6; i++ {
			s[c][i] = a[i] + x
		}
	}
	for _, opt := range []Options{
		{Scheme: SCHEME_LeastSquares, Coupling: cpl},
		{Scheme: SCHEME_Iterative, NSweeps: 100, Epsilon: 1.e-12, Coupling: cpl},
	} {
		var (
			gv = make([]utils.Mat3, m.NTotal())
			gs = make([]utils.SymGrad, m.NTotal())
		)
		NewContext(4).VectorGradient(m, "U", opt, v, nil, gv)
		for c := 0; c < m.NCells; c++ {
			for i := 0; i < 3; i++ {
				assert.Less(t, utils.Vec3(gv[c][i]).Sub(gex).Norm(), 1.e-8,
					opt.Scheme.Print())
			}
		}
		NewContext(4).TensorGradient(m, "Rij", opt, s, nil, gs)
		for c := 0; c < m.NCells; c++ {
			for i := 0; i < 6; i++ {
				assert.Less(t, gs[c][i].Sub(gex).Norm(), 1.e-8, opt.Scheme.Print())
			}
		}
	}
}
