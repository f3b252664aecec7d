/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"image/color"
	"io/ioutil"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gofv/InputParameters"
	"github.com/notargets/gofv/gradient"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

type BenchRun struct {
	DeckFile string
	Graph    bool
	Profile  bool
}

// BenchCmd represents the bench command
var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Gradient accuracy and convergence benchmark on skewed hex meshes",
	Long: `
Builds a family of sheared, stretched Cartesian hex meshes, reconstructs
the gradients of manufactured scalar, vector and tensor fields with each
requested scheme and reports volume weighted error norms per refinement
level, together with the sweep and timing diagnostics`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			br  = &BenchRun{}
		)
		fmt.Println("bench called")
		if br.DeckFile, err = cmd.Flags().GetString("runDeck"); err != nil {
			panic(err)
		}
		br.Graph, _ = cmd.Flags().GetBool("graph")
		br.Profile, _ = cmd.Flags().GetBool("profile")
		gp := processInput(br)
		RunBench(br, gp)
	},
}

func processInput(br *BenchRun) (gp *InputParameters.GradientParameters) {
	var (
		err error
	)
	gp = InputParameters.DefaultParameters()
	if len(br.DeckFile) == 0 {
		exampleFile := `
########################################
Title: "Skewed Hex Benchmark"
Nx: 16
Ny: 16
Nz: 8
Skew: 0.12
StretchZ: 0.3
Schemes: [iterative, lsq, hybrid]
Fields: [scalar, vector, tensor]
NSweeps: 100
Epsilon: 1.e-8
ClipMode: off # Can be "cell" or "face"
NLevels: 3
########################################
`
		fmt.Printf("no run deck supplied (-I, --runDeck), using built in defaults\nExample File:%s\n", exampleFile)
	} else {
		var data []byte
		if data, err = ioutil.ReadFile(br.DeckFile); err != nil {
			panic(err)
		}
		if err = gp.Parse(data); err != nil {
			panic(err)
		}
	}
	gp.Print()
	return
}

func init() {
	rootCmd.AddCommand(BenchCmd)
	BenchCmd.Flags().StringP("runDeck", "I", "", "YAML run deck with mesh dimensions, schemes and tolerances")
	BenchCmd.Flags().BoolP("graph", "g", false, "display the error convergence chart when the runs finish")
	BenchCmd.Flags().BoolP("profile", "p", false, "write a CPU profile of the benchmark")
}

type BenchResult struct {
	Field  string
	Scheme gradient.Scheme
	Level  int
	H      float64
	Err    float64
}

// manufactured pairs a smooth field with its analytic gradient so every
// scheme can be scored against the exact answer
type manufactured struct {
	val  func(utils.Vec3) float64
	grad func(utils.Vec3) utils.Vec3
}

var benchFields = []manufactured{
	{
		val: func(x utils.Vec3) float64 {
			return math.Sin(math.Pi*x[0])*math.Cos(math.Pi*x[1]) + x[2]*x[2]
		},
		grad: func(x utils.Vec3) utils.Vec3 {
			return utils.Vec3{
				math.Pi * math.Cos(math.Pi*x[0]) * math.Cos(math.Pi*x[1]),
				-math.Pi * math.Sin(math.Pi*x[0]) * math.Sin(math.Pi*x[1]),
				2 * x[2],
			}
		},
	},
	{
		val: func(x utils.Vec3) float64 { return x[0]*x[1] + math.Sin(2*x[2]) },
		grad: func(x utils.Vec3) utils.Vec3 {
			return utils.Vec3{x[1], x[0], 2 * math.Cos(2*x[2])}
		},
	},
	{
		val: func(x utils.Vec3) float64 { return x[0]*x[0] - x[1]*x[2] },
		grad: func(x utils.Vec3) utils.Vec3 {
			return utils.Vec3{2 * x[0], -x[2], -x[1]}
		},
	},
	{
		val: func(x utils.Vec3) float64 { return math.Cos(x[0])*x[2] + x[1]*x[1] },
		grad: func(x utils.Vec3) utils.Vec3 {
			return utils.Vec3{-math.Sin(x[0]) * x[2], 2 * x[1], math.Cos(x[0])}
		},
	},
	{
		val: func(x utils.Vec3) float64 { return x[0] + x[1]*x[1]*x[2] },
		grad: func(x utils.Vec3) utils.Vec3 {
			return utils.Vec3{1, 2 * x[1] * x[2], x[1] * x[1]}
		},
	},
	{
		val: func(x utils.Vec3) float64 { return math.Sin(x[0]+x[1]) + x[2] },
		grad: func(x utils.Vec3) utils.Vec3 {
			c := math.Cos(x[0] + x[1])
			return utils.Vec3{c, c, 1}
		},
	},
}

func benchOptions(gp *InputParameters.GradientParameters, label string) (opt gradient.Options) {
	opt = gradient.Defaults()
	opt.Scheme = gradient.NewScheme(label)
	if gp.Extended {
		opt.Extent = gradient.EXTENT_Extended
	}
	if gp.NSweeps > 0 {
		opt.NSweeps = gp.NSweeps
	}
	if gp.Epsilon > 0 {
		opt.Epsilon = gp.Epsilon
	}
	switch strings.ToLower(gp.ClipMode) {
	case "", "off":
		opt.ClipMode = gradient.CLIP_Off
	case "cell":
		opt.ClipMode = gradient.CLIP_CellBased
	case "face":
		opt.ClipMode = gradient.CLIP_FaceBased
	default:
		panic(fmt.Errorf("unknown clip mode %s", gp.ClipMode))
	}
	if gp.ClipCoeff > 0 {
		opt.ClipCoeff = gp.ClipCoeff
	}
	opt.Verbosity = gp.Verbosity
	return
}

func RunBench(br *BenchRun, gp *InputParameters.GradientParameters) (results []BenchResult) {
	if br.Profile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}
	ctx := gradient.NewContext(gp.NThreads)
	for lev := 0; lev < maxInt(gp.NLevels, 1); lev++ {
		var (
			nx, ny, nz = gp.Nx << lev, gp.Ny << lev, gp.Nz << lev
			m          = mesh.NewCartesian3D(nx, ny, nz, mesh.CartesianOpts{
				Lx: gp.Lx, Ly: gp.Ly, Lz: gp.Lz,
				Skew: gp.Skew, StretchZ: gp.StretchZ, PeriodicZ: gp.PeriodicZ,
			})
			h = math.Cbrt((gp.Lx * gp.Ly * gp.Lz) / float64(nx*ny*nz))
		)
		ctx.MeshChanged()
		fmt.Printf("level %d: %dx%dx%d, %d cells, h = %.4g\n", lev, nx, ny, nz, m.NCells, h)
		for _, label := range gp.Schemes {
			opt := benchOptions(gp, label)
			for _, kind := range gp.Fields {
				var errNorm float64
				switch strings.ToLower(kind) {
				case "scalar":
					errNorm = benchScalar(ctx, m, lev, opt)
				case "vector":
					errNorm = benchVector(ctx, m, lev, opt)
				case "tensor":
					errNorm = benchTensor(ctx, m, lev, opt)
				default:
					panic(fmt.Errorf("unknown field kind %s", kind))
				}
				fmt.Printf("  %-8s %-30s rel L2 error = %10.4g\n", kind, opt.Scheme.Print(), errNorm)
				results = append(results, BenchResult{
					Field: kind, Scheme: opt.Scheme, Level: lev, H: h, Err: errNorm,
				})
			}
		}
		if gp.NRanks > 1 {
			benchRanks(gp, m)
		}
	}
	printOrders(results)
	fmt.Println()
	ctx.Diags.Print(os.Stdout)
	if br.Graph {
		plotConvergence(results)
	}
	return
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fieldName keys the diagnostics per refinement level so the sweep
// counts of each mesh show up as separate rows
func fieldName(kind string, lev int) string {
	return fmt.Sprintf("%s_L%d", kind, lev)
}

func benchScalar(ctx *gradient.Context, m *mesh.Mesh, lev int, opt gradient.Options) float64 {
	var (
		mf   = benchFields[0]
		v    = make([]float64, m.NTotal())
		grad = make([]utils.Vec3, m.NTotal())
		bc   = &gradient.ScalarBC{
			A: make([]float64, m.NBFaces()),
			B: make([]float64, m.NBFaces()),
		}
	)
	for c := range v {
		v[c] = mf.val(m.CellCenter[c])
	}
	for f := 0; f < m.NBFaces(); f++ {
		bc.A[f] = mf.val(m.BFaceCenter[f])
	}
	ctx.ScalarGradient(m, fieldName("scalar", lev), opt, v, bc, grad)

	var num, den float64
	for c := 0; c < m.NCells; c++ {
		var (
			vol   = m.CellVol[c]
			exact = mf.grad(m.CellCenter[c])
		)
		num += vol * grad[c].Sub(exact).Norm2()
		den += vol * exact.Norm2()
	}
	return math.Sqrt(num / den)
}

func benchVector(ctx *gradient.Context, m *mesh.Mesh, lev int, opt gradient.Options) float64 {
	var (
		v    = make([]utils.Vec3, m.NTotal())
		grad = make([]utils.Mat3, m.NTotal())
		bc   = &gradient.VectorBC{
			A: make([]utils.Vec3, m.NBFaces()),
			B: make([]utils.Mat3, m.NBFaces()),
		}
	)
	for c := range v {
		for i := 0; i < 3; i++ {
			v[c][i] = benchFields[i].val(m.CellCenter[c])
		}
	}
	for f := 0; f < m.NBFaces(); f++ {
		for i := 0; i < 3; i++ {
			bc.A[f][i] = benchFields[i].val(m.BFaceCenter[f])
		}
	}
	ctx.VectorGradient(m, fieldName("vector", lev), opt, v, bc, grad)

	var num, den float64
	for c := 0; c < m.NCells; c++ {
		vol := m.CellVol[c]
		for i := 0; i < 3; i++ {
			exact := benchFields[i].grad(m.CellCenter[c])
			num += vol * utils.Vec3(grad[c][i]).Sub(exact).Norm2()
			den += vol * exact.Norm2()
		}
	}
	return math.Sqrt(num / den)
}

func benchTensor(ctx *gradient.Context, m *mesh.Mesh, lev int, opt gradient.Options) float64 {
	if opt.ClipMode == gradient.CLIP_FaceBased {
		// tensor fields are limited cell based only
		opt.ClipMode = gradient.CLIP_CellBased
	}
	var (
		v    = make([]utils.Sym6, m.NTotal())
		grad = make([]utils.SymGrad, m.NTotal())
		bc   = &gradient.TensorBC{
			A: make([]utils.Sym6, m.NBFaces()),
			B: make([][6][6]float64, m.NBFaces()),
		}
	)
	for c := range v {
		for i := 0; i < 6; i++ {
			v[c][i] = benchFields[i].val(m.CellCenter[c])
		}
	}
	for f := 0; f < m.NBFaces(); f++ {
		for i := 0; i < 6; i++ {
			bc.A[f][i] = benchFields[i].val(m.BFaceCenter[f])
		}
	}
	ctx.TensorGradient(m, fieldName("tensor", lev), opt, v, bc, grad)

	var num, den float64
	for c := 0; c < m.NCells; c++ {
		vol := m.CellVol[c]
		for i := 0; i < 6; i++ {
			exact := benchFields[i].grad(m.CellCenter[c])
			num += vol * grad[c][i].Sub(exact).Norm2()
			den += vol * exact.Norm2()
		}
	}
	return math.Sqrt(num / den)
}

// benchRanks checks that splitting the mesh over cooperating ranks
// reproduces the serial gradients, using the homogeneous Neumann
// boundary so no per rank boundary coefficients are needed
func benchRanks(gp *InputParameters.GradientParameters, m *mesh.Mesh) {
	var (
		mf = benchFields[0]
		v  = make([]float64, m.NTotal())
	)
	for c := range v {
		v[c] = mf.val(m.CellCenter[c])
	}
	serial := make([]utils.Vec3, m.NTotal())
	opt := benchOptions(gp, gp.Schemes[0])
	gradient.NewContext(gp.NThreads).ScalarGradient(m, "rankcheck", opt, v, nil, serial)

	ranks, cluster := m.PartitionCells(gp.NRanks)
	pm := utils.NewPartitionMap(cluster.NRanks, m.NCells)
	results := make([][]utils.Vec3, cluster.NRanks)
	var wg sync.WaitGroup
	for r, sub := range ranks {
		wg.Add(1)
		go func(r int, sub *mesh.Mesh) {
			defer wg.Done()
			var (
				k0, _ = pm.GetBucketRange(r)
				vr    = make([]float64, sub.NTotal())
				gr    = make([]utils.Vec3, sub.NTotal())
			)
			for c := 0; c < sub.NCells; c++ {
				vr[c] = v[k0+c]
			}
			gradient.NewContext(1).ScalarGradient(sub, "rankcheck", opt, vr, nil, gr)
			results[r] = gr
		}(r, sub)
	}
	wg.Wait()

	var maxDev float64
	for r := range ranks {
		k0, _ := pm.GetBucketRange(r)
		for c := 0; c < ranks[r].NCells; c++ {
			if dev := results[r][c].Sub(serial[k0+c]).Norm(); dev > maxDev {
				maxDev = dev
			}
		}
	}
	fmt.Printf("  %d rank consistency: max deviation from serial = %.4g\n",
		cluster.NRanks, maxDev)
}

// printOrders reports the observed convergence order between the two
// finest levels for each (field, scheme) pair
func printOrders(results []BenchResult) {
	type pair struct {
		Field  string
		Scheme gradient.Scheme
	}
	byPair := make(map[pair][]BenchResult)
	for _, r := range results {
		k := pair{r.Field, r.Scheme}
		byPair[k] = append(byPair[k], r)
	}
	for k, rs := range byPair {
		if len(rs) < 2 {
			continue
		}
		var (
			a     = rs[len(rs)-2]
			b     = rs[len(rs)-1]
			order = math.Log(a.Err/b.Err) / math.Log(a.H/b.H)
		)
		fmt.Printf("observed order %-8s %-30s %6.2f\n", k.Field, k.Scheme.Print(), order)
	}
}

var schemeColors = []color.RGBA{
	{R: 220, G: 50, B: 50, A: 255},
	{G: 170, B: 60, R: 50, A: 255},
	{B: 220, R: 60, G: 60, A: 255},
}

// plotConvergence draws log10(error) against log10(h) for the scalar
// field of each scheme and blocks so the window stays up
func plotConvergence(results []BenchResult) {
	var (
		lines      = make(map[color.RGBA][]float32)
		xMin, xMax = float32(math.MaxFloat32), -float32(math.MaxFloat32)
		yMin, yMax = float32(math.MaxFloat32), -float32(math.MaxFloat32)
	)
	for _, r := range results {
		if r.Field != "scalar" || r.Level == 0 {
			continue
		}
		col := schemeColors[int(r.Scheme)%len(schemeColors)]
		var prev BenchResult
		for _, p := range results {
			if p.Field == "scalar" && p.Scheme == r.Scheme && p.Level == r.Level-1 {
				prev = p
			}
		}
		var (
			x1, y1 = float32(math.Log10(prev.H)), float32(math.Log10(prev.Err))
			x2, y2 = float32(math.Log10(r.H)), float32(math.Log10(r.Err))
		)
		lines[col] = append(lines[col], x1, y1, x2, y2)
		xMin, xMax = minF32(xMin, minF32(x1, x2)), maxF32(xMax, maxF32(x1, x2))
		yMin, yMax = minF32(yMin, minF32(y1, y2)), maxF32(yMax, maxF32(y1, y2))
	}
	if len(lines) == 0 {
		fmt.Println("nothing to plot, need NLevels > 1")
		return
	}
	ch := chart2d.NewChart2D(xMin, xMax, yMin, yMax,
		1024, 1024, utils2.WHITE, utils2.BLACK)
	for col, line := range lines {
		ch.AddLine(line, col)
	}
	for {
	}
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
