//go:build cgo && netlib
// +build cgo,netlib

package utils

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas64"
	netblas "gonum.org/v1/netlib/blas/netlib"
)

// With the netlib tag, gonum dense operations (the reference solves in
// the tests and the bench command comparisons) route through OpenBLAS
func init() {
	blas64.Use(netblas.Implementation{})
	fmt.Println("Using netlib to accelerate BLAS")
}
