// Package gradient reconstructs cell centered gradients of scalar,
// vector and packed symmetric tensor fields on unstructured volume
// meshes, with iterative Green-Gauss, weighted least squares and
// hybrid schemes, optional limiting, boundary condition and internal
// coupling hooks, and transparent halo synchronization.
package gradient

import (
	"time"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

/*
	Entry point contract: on return the gradient is written for every
	owned cell, ghost entries are synchronized (with periodic rotation)
	and the diagnostics entry for (name, scheme) is updated. The plain
	entry points first synchronize the input field's ghosts; the Synced
	variants trust the caller's ghosts.

	A nil BC is homogeneous Neumann on every boundary face.
*/

func (ctx *Context) ScalarGradient(m *mesh.Mesh, name string, opt Options,
	v []float64, bc *ScalarBC, grad []utils.Vec3) {
	m.Halo.SyncScalars(v)
	ctx.ScalarGradientSynced(m, name, opt, v, bc, grad)
}

func (ctx *Context) ScalarGradientSynced(m *mesh.Mesh, name string, opt Options,
	v []float64, bc *ScalarBC, grad []utils.Vec3) {
	opt.validate(name, 1)
	var (
		start  = time.Now()
		sweeps = 1
	)
	switch opt.Scheme {
	case SCHEME_Iterative:
		sweeps = ctx.iterScalarGradient(m, name, &opt, v, bc, grad)
		ctx.clipScalar(m, name, &opt, v, grad)
	case SCHEME_LeastSquares:
		ctx.lsqScalarGradient(m, name, &opt, v, bc, grad)
		ctx.clipScalar(m, name, &opt, v, grad)
	case SCHEME_Hybrid:
		ctx.hybridScalarGradient(m, name, &opt, v, bc, grad)
	}
	ctx.Diags.Lookup(name, opt.Scheme).Record(sweeps, time.Since(start))
}

func (ctx *Context) VectorGradient(m *mesh.Mesh, name string, opt Options,
	v []utils.Vec3, bc *VectorBC, grad []utils.Mat3) {
	m.Halo.SyncVec3s(v)
	ctx.VectorGradientSynced(m, name, opt, v, bc, grad)
}

func (ctx *Context) VectorGradientSynced(m *mesh.Mesh, name string, opt Options,
	v []utils.Vec3, bc *VectorBC, grad []utils.Mat3) {
	opt.validate(name, 3)
	var (
		start  = time.Now()
		sweeps = 1
	)
	switch opt.Scheme {
	case SCHEME_Iterative:
		sweeps = ctx.iterVectorGradient(m, name, &opt, v, bc, grad)
		ctx.clipVector(m, name, &opt, v, grad)
	case SCHEME_LeastSquares:
		ctx.lsqVectorGradient(m, name, &opt, v, bc, grad)
		ctx.clipVector(m, name, &opt, v, grad)
	case SCHEME_Hybrid:
		ctx.hybridVectorGradient(m, name, &opt, v, bc, grad)
	}
	ctx.Diags.Lookup(name, opt.Scheme).Record(sweeps, time.Since(start))
}

func (ctx *Context) TensorGradient(m *mesh.Mesh, name string, opt Options,
	v []utils.Sym6, bc *TensorBC, grad []utils.SymGrad) {
	m.Halo.SyncSym6s(v)
	ctx.TensorGradientSynced(m, name, opt, v, bc, grad)
}

func (ctx *Context) TensorGradientSynced(m *mesh.Mesh, name string, opt Options,
	v []utils.Sym6, bc *TensorBC, grad []utils.SymGrad) {
	opt.validate(name, 6)
	var (
		start  = time.Now()
		sweeps = 1
	)
	switch opt.Scheme {
	case SCHEME_Iterative:
		sweeps = ctx.iterTensorGradient(m, name, &opt, v, bc, grad)
		ctx.clipTensor(m, name, &opt, v, grad)
	case SCHEME_LeastSquares:
		ctx.lsqTensorGradient(m, name, &opt, v, bc, grad)
		ctx.clipTensor(m, name, &opt, v, grad)
	case SCHEME_Hybrid:
		ctx.hybridTensorGradient(m, name, &opt, v, bc, grad)
	}
	ctx.Diags.Lookup(name, opt.Scheme).Record(sweeps, time.Since(start))
}
