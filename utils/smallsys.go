package utils

/*
	In place Crout LDLᵗ factorization and solve for the small dense
	symmetric systems produced by the exact boundary condition
	correction of the least squares gradient (9x9 for a vector field,
	18x18 for a symmetric tensor field).

	The matrix is stored row major, full n x n; only the lower triangle
	and diagonal are referenced. After FactorLDL the strict lower
	triangle holds L and the diagonal holds D. The matrices here come
	from SPD covariance accumulation, so no pivoting is performed.
*/

func FactorLDL(a []float64, n int) {
	for j := 0; j < n; j++ {
		d := a[j*n+j]
		for k := 0; k < j; k++ {
			l := a[j*n+k]
			d -= l * l * a[k*n+k]
		}
		a[j*n+j] = d
		for i := j + 1; i < n; i++ {
			s := a[i*n+j]
			for k := 0; k < j; k++ {
				s -= a[i*n+k] * a[j*n+k] * a[k*n+k]
			}
			a[i*n+j] = s / d
		}
	}
}

// SolveLDL performs forward elimination, diagonal scaling and back
// substitution on a factorization produced by FactorLDL, overwriting b
// with the solution
func SolveLDL(a []float64, n int, b []float64) {
	for i := 1; i < n; i++ {
		s := b[i]
		for k := 0; k < i; k++ {
			s -= a[i*n+k] * b[k]
		}
		b[i] = s
	}
	for i := 0; i < n; i++ {
		b[i] /= a[i*n+i]
	}
	for i := n - 2; i >= 0; i-- {
		s := b[i]
		for k := i + 1; k < n; k++ {
			s -= a[k*n+i] * b[k]
		}
		b[i] = s
	}
}
