package gradient

import (
	"fmt"
	"strings"

	"github.com/notargets/gofv/utils"
)

type Scheme uint

const (
	SCHEME_Iterative Scheme = iota // Green-Gauss with reconstruction sweeps
	SCHEME_LeastSquares
	SCHEME_Hybrid // least squares feeding a final Green-Gauss pass
)

var (
	SchemeNames = map[string]Scheme{
		"iterative": SCHEME_Iterative,
		"lsq":       SCHEME_LeastSquares,
		"hybrid":    SCHEME_Hybrid,
	}
	SchemePrintNames = []string{"Iterative Green-Gauss", "Least Squares", "Green-Gauss over Least Squares"}
)

func (s Scheme) Print() (txt string) {
	txt = SchemePrintNames[s]
	return
}

func NewScheme(label string) (s Scheme) {
	var (
		ok  bool
		err error
	)
	label = strings.ToLower(label)
	if s, ok = SchemeNames[label]; !ok {
		err = fmt.Errorf("unable to use gradient scheme named %s", label)
		panic(err)
	}
	return
}

type Extent uint

const (
	EXTENT_Standard Extent = iota // face connected neighbors only
	EXTENT_Extended               // plus the second ring
)

func (e Extent) Print() string {
	if e == EXTENT_Extended {
		return "Extended"
	}
	return "Standard"
}

type ClipMode uint

const (
	CLIP_Off ClipMode = iota
	CLIP_CellBased
	CLIP_FaceBased
)

func (cm ClipMode) Print() string {
	return []string{"Off", "Cell Based", "Face Based"}[cm]
}

// AssemblyStrategy selects one of the three numerically equivalent
// orderings of the least squares right hand side accumulation. They
// differ only in memory traffic; results agree to roundoff
type AssemblyStrategy uint

const (
	ASSEMBLY_Scatter AssemblyStrategy = iota // race free face groups
	ASSEMBLY_AtomicScatter                   // flat face loop, CAS adds
	ASSEMBLY_Gather                          // cell loop over cell-face adjacency
)

func (as AssemblyStrategy) Print() string {
	return []string{"Scatter", "Atomic Scatter", "Gather"}[as]
}

// OptionCode maps the legacy single integer gradient option onto the
// (scheme, halo extent) pair. Codes 2/3 and 5/6 differed only in how
// the extended neighborhood was pruned and collapse to the same
// extended variants here
func OptionCode(code int) (s Scheme, e Extent) {
	switch code {
	case 0:
		return SCHEME_Iterative, EXTENT_Standard
	case 1:
		return SCHEME_LeastSquares, EXTENT_Standard
	case 2, 3:
		return SCHEME_LeastSquares, EXTENT_Extended
	case 4:
		return SCHEME_Hybrid, EXTENT_Standard
	case 5, 6:
		return SCHEME_Hybrid, EXTENT_Extended
	default:
		panic(fmt.Errorf("unknown gradient option code %d", code))
	}
}

/*
	Options carries the per call configuration of a gradient
	computation. The zero value requests a single least squares pass
	with no clipping; use Defaults() for the iterative scheme's usual
	settings.

	Weight and TensorWeight are mutually exclusive; TensorWeight is
	only meaningful for the least squares scheme and any other
	combination is a configuration contract violation (process fatal).
*/
type Options struct {
	Scheme    Scheme
	Extent    Extent
	Increment bool // gradient buffer holds an increment of the field
	NSweeps   int  // sweep cap for the iterative scheme
	Verbosity int
	ClipMode  ClipMode
	ClipCoeff float64
	Epsilon   float64 // relative residual tolerance for sweeps

	HydrostaticForce []utils.Vec3 // per cell body force, scalar fields only

	Weight       []float64    // per cell diffusivity style weight
	TensorWeight []utils.Sym6 // per cell anisotropic weight, LSQ only

	Assembly AssemblyStrategy

	// SweepResiduals, when non-nil, receives the global L2 residual of
	// every sweep of the iterative scheme (reporting only)
	SweepResiduals *[]float64

	// WarpCorrection, when present, is applied to the hybrid scheme's
	// result for badly warped cells (identity elsewhere)
	WarpCorrection []utils.Mat3

	Coupling Coupling
}

func Defaults() Options {
	return Options{
		Scheme:    SCHEME_Iterative,
		NSweeps:   100,
		Epsilon:   1.e-8,
		ClipCoeff: 1.5,
	}
}

// validate enforces the configuration contract shared by all entry
// points. Violations are programming errors in the caller, not data
// errors, and terminate the process
func (o *Options) validate(name string, rank int) {
	if o.TensorWeight != nil && o.Scheme != SCHEME_LeastSquares {
		panic(fmt.Errorf("gradient of %s: anisotropic weight requires the least squares scheme, have %s",
			name, o.Scheme.Print()))
	}
	if o.TensorWeight != nil && o.Weight != nil {
		panic(fmt.Errorf("gradient of %s: scalar and tensor weights are mutually exclusive", name))
	}
	if o.TensorWeight != nil && rank != 1 {
		panic(fmt.Errorf("gradient of %s: anisotropic weight is only supported for scalar fields", name))
	}
	if rank == 6 && o.ClipMode == CLIP_FaceBased {
		panic(fmt.Errorf("gradient of %s: face based clipping does not support tensor fields", name))
	}
	if o.HydrostaticForce != nil && rank != 1 {
		panic(fmt.Errorf("gradient of %s: hydrostatic correction is only supported for scalar fields", name))
	}
	if o.NSweeps <= 0 {
		o.NSweeps = 1
	}
}
