package mesh

import (
	"github.com/james-bowman/sparse"
)

// ExtendedNeighbors returns the CSR second ring neighborhood of owned
// cells: neighbors of neighbors reached through interior faces,
// excluding the first ring and the cell itself. Built once per mesh on
// first use from the boolean adjacency product A·A
func (m *Mesh) ExtendedNeighbors() (idx, lst []int) {
	if m.extIdx != nil {
		return m.extIdx, m.ext
	}
	var (
		n   = m.NTotal()
		adj = sparse.NewDOK(n, n)
	)
	for _, fc := range m.FaceCells {
		adj.Set(fc[0], fc[1], 1)
		adj.Set(fc[1], fc[0], 1)
	}
	csr := adj.ToCSR()
	sq := &sparse.CSR{}
	sq.Mul(csr, csr)

	var (
		stamp = make([]bool, n)
		ring  []int
	)
	idx = make([]int, m.NCells+1)
	for c := 0; c < m.NCells; c++ {
		// Stamp the first ring and self
		ring = ring[:0]
		csr.DoRowNonZero(c, func(_, j int, _ float64) {
			stamp[j] = true
			ring = append(ring, j)
		})
		stamp[c] = true
		sq.DoRowNonZero(c, func(_, j int, _ float64) {
			if !stamp[j] {
				stamp[j] = true
				ring = append(ring, j)
				lst = append(lst, j)
			}
		})
		idx[c+1] = len(lst)
		for _, j := range ring {
			stamp[j] = false
		}
		stamp[c] = false
	}
	m.extIdx, m.ext = idx, lst
	return
}
