package gradient

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// DiagEntry accumulates per (field name, scheme) statistics, reporting
// only - never consulted for correctness
type DiagEntry struct {
	Name   string
	Scheme Scheme

	Calls       int
	MinSweeps   int
	MaxSweeps   int
	TotalSweeps int
	Elapsed     time.Duration
}

// Registry is the sorted, dynamically grown catalogue of diagnostics
// entries, owned by a Context and freed with it
type Registry struct {
	entries []*DiagEntry
}

func (r *Registry) key(name string, scheme Scheme) string {
	return fmt.Sprintf("%s/%d", name, scheme)
}

// Lookup finds or inserts the entry for (name, scheme), keeping the
// catalogue sorted for the binary search
func (r *Registry) Lookup(name string, scheme Scheme) (e *DiagEntry) {
	k := r.key(name, scheme)
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.key(r.entries[i].Name, r.entries[i].Scheme) >= k
	})
	if i < len(r.entries) && r.entries[i].Name == name && r.entries[i].Scheme == scheme {
		return r.entries[i]
	}
	e = &DiagEntry{Name: name, Scheme: scheme, MinSweeps: 1 << 30}
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	return
}

func (e *DiagEntry) Record(sweeps int, elapsed time.Duration) {
	e.Calls++
	e.TotalSweeps += sweeps
	if sweeps < e.MinSweeps {
		e.MinSweeps = sweeps
	}
	if sweeps > e.MaxSweeps {
		e.MaxSweeps = sweeps
	}
	e.Elapsed += elapsed
}

func (r *Registry) Print(w io.Writer) {
	fmt.Fprintf(w, "%-24s %-30s %8s %8s %8s %8s %12s\n",
		"Field", "Scheme", "Calls", "MinSwp", "MaxSwp", "TotSwp", "Elapsed")
	for _, e := range r.entries {
		minS := e.MinSweeps
		if e.Calls == 0 {
			minS = 0
		}
		fmt.Fprintf(w, "%-24s %-30s %8d %8d %8d %8d %12s\n",
			e.Name, e.Scheme.Print(), e.Calls, minS, e.MaxSweeps, e.TotalSweeps, e.Elapsed)
	}
}
