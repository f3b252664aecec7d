package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML run deck
type GradientParameters struct {
	Title     string   `yaml:"Title"`
	Nx        int      `yaml:"Nx"`
	Ny        int      `yaml:"Ny"`
	Nz        int      `yaml:"Nz"`
	Lx        float64  `yaml:"Lx"`
	Ly        float64  `yaml:"Ly"`
	Lz        float64  `yaml:"Lz"`
	Skew      float64  `yaml:"Skew"`
	StretchZ  float64  `yaml:"StretchZ"`
	PeriodicZ bool     `yaml:"PeriodicZ"`
	Schemes   []string `yaml:"Schemes"` // iterative, lsq, hybrid
	Extended  bool     `yaml:"Extended"`
	Fields    []string `yaml:"Fields"` // scalar, vector, tensor
	NSweeps   int      `yaml:"NSweeps"`
	Epsilon   float64  `yaml:"Epsilon"`
	ClipMode  string   `yaml:"ClipMode"` // off, cell, face
	ClipCoeff float64  `yaml:"ClipCoeff"`
	NLevels   int      `yaml:"NLevels"` // mesh refinement levels for the convergence study
	NThreads  int      `yaml:"NThreads"`
	NRanks    int      `yaml:"NRanks"`
	Verbosity int      `yaml:"Verbosity"`
}

func DefaultParameters() *GradientParameters {
	return &GradientParameters{
		Title:     "Skewed Hex Benchmark",
		Nx:        16, Ny: 16, Nz: 8,
		Lx: 1, Ly: 1, Lz: 1,
		Skew:      0.12,
		StretchZ:  0.3,
		Schemes:   []string{"iterative", "lsq", "hybrid"},
		Fields:    []string{"scalar", "vector", "tensor"},
		NSweeps:   100,
		Epsilon:   1.e-8,
		ClipMode:  "off",
		ClipCoeff: 1.5,
		NLevels:   1,
		NRanks:    1,
	}
}

func (gp *GradientParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, gp)
}

func (gp *GradientParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", gp.Title)
	fmt.Printf("[%dx%dx%d]\t\t= Mesh Dimensions\n", gp.Nx, gp.Ny, gp.Nz)
	fmt.Printf("%8.5f\t\t= Skew\n", gp.Skew)
	fmt.Printf("%8.5f\t\t= StretchZ\n", gp.StretchZ)
	fmt.Printf("%8.5f\t\t= Epsilon\n", gp.Epsilon)
	fmt.Printf("[%d]\t\t\t= NSweeps\n", gp.NSweeps)
	fmt.Printf("[%s]\t\t\t= Clip Mode\n", gp.ClipMode)
	fmt.Printf("%8.5f\t\t= Clip Coefficient\n", gp.ClipCoeff)
	fmt.Printf("[%d]\t\t\t= Refinement Levels\n", gp.NLevels)
	schemes := append([]string{}, gp.Schemes...)
	sort.Strings(schemes)
	fmt.Printf("Schemes = %v\n", schemes)
	fmt.Printf("Fields = %v\n", gp.Fields)
}
