package gradient

import (
	"runtime"
	"sync"

	"github.com/notargets/gofv/utils"
)

/*
	Context owns everything the engine keeps between calls: the COCG
	matrix caches and the diagnostics registry. One context per
	simulation instance, passed into every call - there is no process
	wide state. Dropping the context drops the caches.
*/
type Context struct {
	NP int // parallel degree of the shared memory loops

	it  map[cocgKey]*iterCOCG
	lsq map[cocgKey]*lsqCOCG

	Diags *Registry
}

type cocgKey struct {
	Epoch    int
	Extent   Extent
	Coupling int
}

// fieldKey makes the boundary refresh decision explicit: the cached
// boundary contribution is reused only when epoch, field identity,
// increment mode and BC identity all match the previous accumulation.
// BC identity is the coefficient container itself; callers that mutate
// a BC in place must pass a fresh one
type fieldKey struct {
	Name      string
	Increment bool
	BC        interface{}
}

func NewContext(procLimit int) (ctx *Context) {
	ctx = &Context{
		NP:    procLimit,
		it:    make(map[cocgKey]*iterCOCG),
		lsq:   make(map[cocgKey]*lsqCOCG),
		Diags: &Registry{},
	}
	if ctx.NP <= 0 {
		ctx.NP = runtime.NumCPU()
	}
	return
}

// MeshChanged discards every cached COCG matrix. Callers invoke it
// after recomputing mesh geometry; there is no implicit invalidation
func (ctx *Context) MeshChanged() {
	ctx.it = make(map[cocgKey]*iterCOCG)
	ctx.lsq = make(map[cocgKey]*lsqCOCG)
}

// parallelCells runs fn over flat partitions of [0, n)
func (ctx *Context) parallelCells(n int, fn func(lo, hi int)) {
	var (
		pm = utils.NewPartitionMap(ctx.NP, n)
		wg = sync.WaitGroup{}
	)
	for np := 0; np < pm.ParallelDegree; np++ {
		wg.Add(1)
		go func(np int) {
			lo, hi := pm.GetBucketRange(np)
			fn(lo, hi)
			wg.Done()
		}(np)
	}
	wg.Wait()
}

// parallelGroups runs fn over the face ranges of each group in turn,
// with a full barrier between groups so that no two concurrently
// processed faces ever write the same cell
func (ctx *Context) parallelGroups(groups [][2]int, fn func(lo, hi int)) {
	for _, g := range groups {
		ctx.parallelCells(g[1]-g[0], func(lo, hi int) {
			fn(g[0]+lo, g[0]+hi)
		})
	}
}

// reduction merges thread local partial results under a short critical
// section, used for the residual and clipping statistics
type reduction struct {
	mu sync.Mutex
}

func (r *reduction) merge(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
}
