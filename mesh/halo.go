package mesh

import (
	"github.com/notargets/gofv/utils"
)

/*
	Halo is the ghost exchange contract consumed by the gradient
	engine. Every Sync call is blocking and collective: on return the
	ghost entries of the passed array match the owning rank's values,
	with the periodic rotation applied to non scalar quantities.

	MinScalars is the combine form needed by face based clipping: the
	owned entry becomes the minimum over itself and all its ghost
	copies before the ghost entries are refreshed.
*/
type Halo interface {
	SyncScalars(v []float64)
	SyncVec3s(v []utils.Vec3)
	SyncMat3s(v []utils.Mat3)
	SyncSym6s(v []utils.Sym6)
	SyncSymGrads(v []utils.SymGrad)
	MinScalars(v []float64)
}

// Collective is the cross rank reduction contract used for residual
// norms and clipping statistics
type Collective interface {
	SumFloat64(v float64) float64
	MinFloat64(v float64) float64
	MaxFloat64(v float64) float64
	SumInt(v int) int
}

// NoHalo serves meshes without ghost cells
type NoHalo struct{}

func (NoHalo) SyncScalars([]float64)        {}
func (NoHalo) SyncVec3s([]utils.Vec3)       {}
func (NoHalo) SyncMat3s([]utils.Mat3)       {}
func (NoHalo) SyncSym6s([]utils.Sym6)       {}
func (NoHalo) SyncSymGrads([]utils.SymGrad) {}
func (NoHalo) MinScalars([]float64)         {}

// SingleRank is the identity Collective
type SingleRank struct{}

func (SingleRank) SumFloat64(v float64) float64 { return v }
func (SingleRank) MinFloat64(v float64) float64 { return v }
func (SingleRank) MaxFloat64(v float64) float64 { return v }
func (SingleRank) SumInt(v int) int             { return v }

// GhostRef names the source of one ghost cell. Rot indexes a rotation
// table, -1 for pure translation
type GhostRef struct {
	SrcRank, SrcIdx int
	Rot             int
}

// PeriodicHalo serves a single rank mesh whose ghost cells are
// periodic images of its own cells
type PeriodicHalo struct {
	NCells int
	Ghosts []GhostRef // SrcRank ignored, SrcIdx is a local owned cell
	Rots   []utils.Mat3
}

func (h *PeriodicHalo) SyncScalars(v []float64) {
	for gi, g := range h.Ghosts {
		v[h.NCells+gi] = v[g.SrcIdx]
	}
}

func (h *PeriodicHalo) SyncVec3s(v []utils.Vec3) {
	for gi, g := range h.Ghosts {
		w := v[g.SrcIdx]
		if g.Rot >= 0 {
			w = h.Rots[g.Rot].MulVec(w)
		}
		v[h.NCells+gi] = w
	}
}

func (h *PeriodicHalo) SyncMat3s(v []utils.Mat3) {
	for gi, g := range h.Ghosts {
		w := v[g.SrcIdx]
		if g.Rot >= 0 {
			w = w.Rotate(h.Rots[g.Rot])
		}
		v[h.NCells+gi] = w
	}
}

func (h *PeriodicHalo) SyncSym6s(v []utils.Sym6) {
	for gi, g := range h.Ghosts {
		w := v[g.SrcIdx]
		if g.Rot >= 0 {
			w = w.Rotate(h.Rots[g.Rot])
		}
		v[h.NCells+gi] = w
	}
}

func (h *PeriodicHalo) SyncSymGrads(v []utils.SymGrad) {
	for gi, g := range h.Ghosts {
		w := v[g.SrcIdx]
		if g.Rot >= 0 {
			w = RotateSymGrad(h.Rots[g.Rot], w)
		}
		v[h.NCells+gi] = w
	}
}

func (h *PeriodicHalo) MinScalars(v []float64) {
	for gi, g := range h.Ghosts {
		if v[h.NCells+gi] < v[g.SrcIdx] {
			v[g.SrcIdx] = v[h.NCells+gi]
		}
	}
	h.SyncScalars(v)
}

// RotateSymGrad applies the full third order rotation
// g'[ij][k] = R[ia]·R[jb]·R[kc]·g[ab][c] to the gradient of a packed
// symmetric tensor
func RotateSymGrad(R utils.Mat3, g utils.SymGrad) (o utils.SymGrad) {
	// Unpack to full component storage
	var full [3][3]utils.Vec3
	pairs := [6][2]int{{0, 0}, {1, 1}, {2, 2}, {0, 1}, {1, 2}, {0, 2}}
	for p, ij := range pairs {
		full[ij[0]][ij[1]] = g[p]
		full[ij[1]][ij[0]] = g[p]
	}
	var rot [3][3]utils.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var acc utils.Vec3
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					acc = acc.Add(full[a][b].Scale(R[i][a] * R[j][b]))
				}
			}
			rot[i][j] = R.MulVec(acc)
		}
	}
	for p, ij := range pairs {
		o[p] = rot[ij[0]][ij[1]]
	}
	return
}
