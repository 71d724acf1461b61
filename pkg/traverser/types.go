package traverser

import "github.com/cuemby/fluxion/pkg/rset"

// Op is one of the five match operations spec section 4.6.2 names.
type Op string

const (
	OpAllocate                 Op = "ALLOCATE"
	OpAllocateOrElseReserve    Op = "ALLOCATE_ORELSE_RESERVE"
	OpAllocateWithSatisfiability Op = "ALLOCATE_W_SATISFIABILITY"
	OpSatisfiability            Op = "SATISFIABILITY"
	OpMatchWithoutAllocating    Op = "MATCH_WITHOUT_ALLOCATING"
)

// Status is the outcome status reported in a match response.
type Status string

const (
	StatusAllocated Status = "ALLOCATED"
	StatusReserved  Status = "RESERVED"
	StatusMatched   Status = "MATCHED"
)

// Result is the outcome of a successful Run.
type Result struct {
	JobID    int64
	Status   Status
	At       int64
	Overhead float64
	R        string
	Iters    int64
}

// plan is an accepted, not-yet-committed allocation: the chosen
// leaf-level vertex quantities plus the graph and jobspec context
// needed to commit them.
type plan struct {
	allocs []rset.Alloc
	score  int64
}
