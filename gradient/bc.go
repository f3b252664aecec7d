package gradient

import (
	"github.com/notargets/gofv/utils"
)

/*
	Boundary coefficients encode the affine relation
		face_value = A + B·cell_value
	per boundary face. A nil BC means homogeneous Neumann: A = 0,
	B = identity, and the kernels synthesize those values inline
	instead of allocating default arrays.
*/
type ScalarBC struct {
	A []float64
	B []float64
}

type VectorBC struct {
	A []utils.Vec3
	B []utils.Mat3
}

type TensorBC struct {
	A []utils.Sym6
	B [][6][6]float64
}

func (bc *ScalarBC) at(f int) (a, b float64) {
	if bc == nil {
		return 0, 1
	}
	return bc.A[f], bc.B[f]
}

func (bc *VectorBC) at(f int) (a utils.Vec3, b utils.Mat3) {
	if bc == nil {
		return utils.Vec3{}, utils.IdentityMat3()
	}
	return bc.A[f], bc.B[f]
}

func (bc *TensorBC) at(f int) (a utils.Sym6, b [6][6]float64) {
	if bc == nil {
		var ident [6][6]float64
		for i := 0; i < 6; i++ {
			ident[i][i] = 1
		}
		return utils.Sym6{}, ident
	}
	return bc.A[f], bc.B[f]
}

// traceThird is the isotropic approximation of a full linear boundary
// coefficient used by the cached gradient paths; boundary cells of
// least squares vector/tensor calls are afterwards corrected exactly
func traceThird(b utils.Mat3) float64 {
	return (b[0][0] + b[1][1] + b[2][2]) / 3.
}

func traceSixth(b [6][6]float64) float64 {
	var t float64
	for i := 0; i < 6; i++ {
		t += b[i][i]
	}
	return t / 6.
}

/*
	Coupling joins two otherwise separate mesh regions through their
	boundary faces without topological merging. For a coupled boundary
	face the assembly kernels consult the coupling instead of the
	affine BC: Green-Gauss takes FaceValue, least squares takes the
	pseudo neighbor at NeighborOffset with NeighborValue. The offset is
	purely geometric so COCG matrices can be cached per coupling ID.
*/
type Coupling interface {
	ID() int
	IsCoupled(bface int) bool
	NeighborOffset(bface int) utils.Vec3
	FaceValue(bface int, cellValue float64) float64
	NeighborValue(bface int, cellValue float64) float64
}

func couplingID(c Coupling) int {
	if c == nil {
		return -1
	}
	return c.ID()
}
