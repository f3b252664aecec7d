package mesh

import (
	"sync"

	"github.com/notargets/gofv/utils"
)

/*
	Cluster runs one mesh as several logical ranks inside one process,
	each rank a goroutine working on its own sub mesh. Ghost exchange
	and reductions rendezvous on a cyclic barrier, mirroring the
	blocking collective semantics of a distributed run: every Sync is a
	full exchange, no overlap with computation.

	Partition boundary faces are duplicated on both adjacent ranks;
	each rank accumulates face contributions into its ghost entries
	too, and those entries are overwritten by the owner's values at the
	next Sync.
*/
type Cluster struct {
	NRanks int
	bar    *barrier
	slots  []interface{}
	redF   []float64
	redI   []int
	Rots   []utils.Mat3
}

type Mirror struct {
	OwnedIdx           int // local owned cell on this rank
	GhostRank, GhostIdx int // where a ghost copy of it lives
}

type ClusterHalo struct {
	c       *Cluster
	rank    int
	nCells  int
	Ghosts  []GhostRef
	Mirrors []Mirror
}

type ClusterComm struct {
	c    *Cluster
	rank int
}

// PartitionCells splits a single rank mesh into nRanks block
// partitioned sub meshes with ghost rings, wired to a shared Cluster.
// The input mesh must not already carry ghosts
func (m *Mesh) PartitionCells(nRanks int) (ranks []*Mesh, cluster *Cluster) {
	if m.NGhosts != 0 {
		panic("PartitionCells: mesh already has ghost cells")
	}
	var (
		pm = utils.NewPartitionMap(nRanks, m.NCells)
	)
	nRanks = pm.ParallelDegree
	cluster = &Cluster{
		NRanks: nRanks,
		bar:    newBarrier(nRanks),
		slots:  make([]interface{}, nRanks),
		redF:   make([]float64, nRanks),
		redI:   make([]int, nRanks),
	}
	rankOf := func(gc int) int {
		for r := 0; r < nRanks; r++ {
			k0, k1 := pm.GetBucketRange(r)
			if gc >= k0 && gc < k1 {
				return r
			}
		}
		panic("cell outside all partitions")
	}
	ranks = make([]*Mesh, nRanks)
	halos := make([]*ClusterHalo, nRanks)
	for r := 0; r < nRanks; r++ {
		var (
			k0, k1   = pm.GetBucketRange(r)
			nOwned   = k1 - k0
			sub      = &Mesh{NCells: nOwned, Epoch: m.Epoch, Comm: ClusterComm{cluster, r}}
			ghostIdx = map[int]int{}
			ghosts   []GhostRef
		)
		local := func(gc int) int {
			if gc >= k0 && gc < k1 {
				return gc - k0
			}
			if l, ok := ghostIdx[gc]; ok {
				return l
			}
			l := nOwned + len(ghosts)
			or := rankOf(gc)
			ok0, _ := pm.GetBucketRange(or)
			ghosts = append(ghosts, GhostRef{SrcRank: or, SrcIdx: gc - ok0, Rot: -1})
			ghostIdx[gc] = l
			return l
		}
		for f, fc := range m.FaceCells {
			owned0 := fc[0] >= k0 && fc[0] < k1
			owned1 := fc[1] >= k0 && fc[1] < k1
			if !owned0 && !owned1 {
				continue
			}
			sub.FaceCells = append(sub.FaceCells, [2]int{local(fc[0]), local(fc[1])})
			sub.FaceNormal = append(sub.FaceNormal, m.FaceNormal[f])
			sub.FaceCenter = append(sub.FaceCenter, m.FaceCenter[f])
			sub.Weight = append(sub.Weight, m.Weight[f])
			sub.DOfij = append(sub.DOfij, m.DOfij[f])
		}
		for f, c := range m.BFaceCell {
			if c < k0 || c >= k1 {
				continue
			}
			sub.BFaceCell = append(sub.BFaceCell, c-k0)
			sub.BFaceNormal = append(sub.BFaceNormal, m.BFaceNormal[f])
			sub.BFaceCenter = append(sub.BFaceCenter, m.BFaceCenter[f])
			sub.DiipB = append(sub.DiipB, m.DiipB[f])
			sub.BDist = append(sub.BDist, m.BDist[f])
		}
		sub.NGhosts = len(ghosts)
		sub.CellCenter = make([]utils.Vec3, sub.NTotal())
		copy(sub.CellCenter, m.CellCenter[k0:k1])
		sub.CellVol = make([]float64, nOwned)
		copy(sub.CellVol, m.CellVol[k0:k1])
		sub.Disabled = make([]bool, nOwned)
		copy(sub.Disabled, m.Disabled[k0:k1])
		for gc, l := range ghostIdx {
			sub.CellCenter[l] = m.CellCenter[gc]
		}
		h := &ClusterHalo{c: cluster, rank: r, nCells: nOwned, Ghosts: ghosts}
		halos[r] = h
		sub.Halo = h
		sub.BuildFaceGroups()
		sub.BuildAdjacency()
		ranks[r] = sub
	}
	// Reverse maps for the min-combine exchange
	for r, h := range halos {
		for gi, g := range h.Ghosts {
			halos[g.SrcRank].Mirrors = append(halos[g.SrcRank].Mirrors,
				Mirror{OwnedIdx: g.SrcIdx, GhostRank: r, GhostIdx: halos[r].nCells + gi})
		}
	}
	return
}

func clusterSync[T any](h *ClusterHalo, v []T, rot func(utils.Mat3, T) T) {
	c := h.c
	c.slots[h.rank] = v
	c.bar.await()
	for gi, g := range h.Ghosts {
		src := c.slots[g.SrcRank].([]T)
		w := src[g.SrcIdx]
		if g.Rot >= 0 && rot != nil {
			w = rot(c.Rots[g.Rot], w)
		}
		v[h.nCells+gi] = w
	}
	c.bar.await()
}

func (h *ClusterHalo) SyncScalars(v []float64) { clusterSync(h, v, nil) }

func (h *ClusterHalo) SyncVec3s(v []utils.Vec3) {
	clusterSync(h, v, func(R utils.Mat3, x utils.Vec3) utils.Vec3 { return R.MulVec(x) })
}

func (h *ClusterHalo) SyncMat3s(v []utils.Mat3) {
	clusterSync(h, v, func(R, x utils.Mat3) utils.Mat3 { return x.Rotate(R) })
}

func (h *ClusterHalo) SyncSym6s(v []utils.Sym6) {
	clusterSync(h, v, func(R utils.Mat3, x utils.Sym6) utils.Sym6 { return x.Rotate(R) })
}

func (h *ClusterHalo) SyncSymGrads(v []utils.SymGrad) {
	clusterSync(h, v, func(R utils.Mat3, x utils.SymGrad) utils.SymGrad { return RotateSymGrad(R, x) })
}

func (h *ClusterHalo) MinScalars(v []float64) {
	c := h.c
	c.slots[h.rank] = v
	c.bar.await()
	for _, mir := range h.Mirrors {
		other := c.slots[mir.GhostRank].([]float64)
		if other[mir.GhostIdx] < v[mir.OwnedIdx] {
			v[mir.OwnedIdx] = other[mir.GhostIdx]
		}
	}
	c.bar.await()
	for gi, g := range h.Ghosts {
		src := c.slots[g.SrcRank].([]float64)
		v[h.nCells+gi] = src[g.SrcIdx]
	}
	c.bar.await()
}

func (cc ClusterComm) SumFloat64(v float64) float64 {
	c := cc.c
	c.redF[cc.rank] = v
	c.bar.await()
	var s float64
	for _, x := range c.redF {
		s += x
	}
	c.bar.await()
	return s
}

func (cc ClusterComm) MinFloat64(v float64) float64 {
	c := cc.c
	c.redF[cc.rank] = v
	c.bar.await()
	s := c.redF[0]
	for _, x := range c.redF[1:] {
		if x < s {
			s = x
		}
	}
	c.bar.await()
	return s
}

func (cc ClusterComm) MaxFloat64(v float64) float64 {
	c := cc.c
	c.redF[cc.rank] = v
	c.bar.await()
	s := c.redF[0]
	for _, x := range c.redF[1:] {
		if x > s {
			s = x
		}
	}
	c.bar.await()
	return s
}

func (cc ClusterComm) SumInt(v int) int {
	c := cc.c
	c.redI[cc.rank] = v
	c.bar.await()
	var s int
	for _, x := range c.redI {
		s += x
	}
	c.bar.await()
	return s
}

// barrier is a reusable rendezvous for NRanks goroutines
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func newBarrier(n int) (b *barrier) {
	b = &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return
}

func (b *barrier) await() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	gen := b.gen
	for gen == b.gen {
		b.cond.Wait()
	}
}
