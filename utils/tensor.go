package utils

import "math"

/*
	Fixed size value types for cell centered finite volume quantities:
		- Vec3:    a point, area normal or scalar gradient
		- Mat3:    a vector gradient or a small dense 3x3 system
		- Sym6:    a symmetric 3x3 tensor in packed storage
		- SymGrad: the gradient of a Sym6 field, one Vec3 per component

	Packed Sym6 component order is [XX, YY, ZZ, XY, YZ, XZ].
*/

const (
	XX = iota
	YY
	ZZ
	XY
	YZ
	XZ
)

type Vec3 [3]float64

func (v Vec3) Add(w Vec3) Vec3      { return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]} }
func (v Vec3) Sub(w Vec3) Vec3      { return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{s * v[0], s * v[1], s * v[2]} }
func (v Vec3) Dot(w Vec3) float64   { return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] }
func (v Vec3) Norm() float64        { return math.Sqrt(v.Dot(v)) }
func (v Vec3) Norm2() float64       { return v.Dot(v) }

// Outer forms the tensor product v ⊗ w
func (v Vec3) Outer(w Vec3) (O Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			O[i][j] = v[i] * w[j]
		}
	}
	return
}

type Mat3 [3][3]float64

func IdentityMat3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func (m Mat3) Add(a Mat3) (O Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			O[i][j] = m[i][j] + a[i][j]
		}
	}
	return
}

func (m Mat3) Sub(a Mat3) (O Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			O[i][j] = m[i][j] - a[i][j]
		}
	}
	return
}

func (m Mat3) Scale(s float64) (O Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			O[i][j] = s * m[i][j]
		}
	}
	return
}

func (m Mat3) MulVec(v Vec3) (o Vec3) {
	for i := 0; i < 3; i++ {
		o[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return
}

// TransMulVec computes mᵀ·v
func (m Mat3) TransMulVec(v Vec3) (o Vec3) {
	for j := 0; j < 3; j++ {
		o[j] = m[0][j]*v[0] + m[1][j]*v[1] + m[2][j]*v[2]
	}
	return
}

func (m Mat3) Mul(a Mat3) (O Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				O[i][j] += m[i][k] * a[k][j]
			}
		}
	}
	return
}

func (m Mat3) Transpose() (O Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			O[i][j] = m[j][i]
		}
	}
	return
}

func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse inverts by Cramer's rule. The caller guarantees m is not
// singular - a degenerate (flat) cell produces non finite entries that
// propagate to the gradient, by contract.
func (m Mat3) Inverse() (O Mat3) {
	var (
		oneOverDet = 1. / m.Det()
	)
	O[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * oneOverDet
	O[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * oneOverDet
	O[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * oneOverDet
	O[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * oneOverDet
	O[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * oneOverDet
	O[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * oneOverDet
	O[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * oneOverDet
	O[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * oneOverDet
	O[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * oneOverDet
	return
}

func (m Mat3) FrobeniusNorm() (nrm float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			nrm += m[i][j] * m[i][j]
		}
	}
	return math.Sqrt(nrm)
}

// Rotate applies the similarity transform R·m·Rᵀ, used for periodic
// rotation of vector gradients
func (m Mat3) Rotate(R Mat3) Mat3 {
	return R.Mul(m).Mul(R.Transpose())
}

// Sym6 is a symmetric 3x3 tensor in packed [XX YY ZZ XY YZ XZ] storage
type Sym6 [6]float64

func (s Sym6) ToMat3() Mat3 {
	return Mat3{
		{s[XX], s[XY], s[XZ]},
		{s[XY], s[YY], s[YZ]},
		{s[XZ], s[YZ], s[ZZ]},
	}
}

func SymFromMat3(m Mat3) Sym6 {
	return Sym6{m[0][0], m[1][1], m[2][2], m[0][1], m[1][2], m[0][2]}
}

func (s Sym6) Add(a Sym6) (o Sym6) {
	for i := range s {
		o[i] = s[i] + a[i]
	}
	return
}

func (s Sym6) Sub(a Sym6) (o Sym6) {
	for i := range s {
		o[i] = s[i] - a[i]
	}
	return
}

func (s Sym6) Scale(c float64) (o Sym6) {
	for i := range s {
		o[i] = c * s[i]
	}
	return
}

func (s Sym6) MulVec(v Vec3) Vec3 {
	return Vec3{
		s[XX]*v[0] + s[XY]*v[1] + s[XZ]*v[2],
		s[XY]*v[0] + s[YY]*v[1] + s[YZ]*v[2],
		s[XZ]*v[0] + s[YZ]*v[1] + s[ZZ]*v[2],
	}
}

func (s Sym6) Trace() float64 { return s[XX] + s[YY] + s[ZZ] }

func (s Sym6) Det() float64 {
	return s[XX]*(s[YY]*s[ZZ]-s[YZ]*s[YZ]) -
		s[XY]*(s[XY]*s[ZZ]-s[YZ]*s[XZ]) +
		s[XZ]*(s[XY]*s[YZ]-s[YY]*s[XZ])
}

// Inverse inverts the packed symmetric tensor by Cramer's rule. Same
// non-singularity precondition as Mat3.Inverse
func (s Sym6) Inverse() (o Sym6) {
	var (
		oneOverDet = 1. / s.Det()
	)
	o[XX] = (s[YY]*s[ZZ] - s[YZ]*s[YZ]) * oneOverDet
	o[YY] = (s[XX]*s[ZZ] - s[XZ]*s[XZ]) * oneOverDet
	o[ZZ] = (s[XX]*s[YY] - s[XY]*s[XY]) * oneOverDet
	o[XY] = (s[XZ]*s[YZ] - s[XY]*s[ZZ]) * oneOverDet
	o[YZ] = (s[XY]*s[XZ] - s[XX]*s[YZ]) * oneOverDet
	o[XZ] = (s[XY]*s[YZ] - s[XZ]*s[YY]) * oneOverDet
	return
}

// Rotate applies R·s·Rᵀ and repacks
func (s Sym6) Rotate(R Mat3) Sym6 {
	return SymFromMat3(s.ToMat3().Rotate(R))
}

// SymGrad is the gradient of a Sym6 field: one spatial derivative
// triplet per packed component
type SymGrad [6]Vec3

func (g SymGrad) Add(a SymGrad) (o SymGrad) {
	for i := range g {
		o[i] = g[i].Add(a[i])
	}
	return
}

func (g SymGrad) Scale(c float64) (o SymGrad) {
	for i := range g {
		o[i] = g[i].Scale(c)
	}
	return
}

func (g SymGrad) Norm() (nrm float64) {
	for i := range g {
		nrm += g[i].Norm2()
	}
	return math.Sqrt(nrm)
}
