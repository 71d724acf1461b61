package rset

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
)

// Format names one of the three wire formats spec section 6 defines.
type Format string

const (
	FormatRV1NoSched Format = "rv1_nosched"
	FormatRV1Exec    Format = "rv1exec"
	FormatJGF        Format = "jgf"
)

// Alloc is one chosen vertex and the quantity taken from it.
type Alloc struct {
	Handle graph.Handle
	Rank   int64
	Type   string
	Qty    int64
}

// Selection is the traverser's in-memory allocation result for one
// job: every chosen vertex plus the span applied to it.
type Selection struct {
	JobID     int64
	At        int64
	Duration  int64
	Allocs    []Alloc
}

// rlite is one execution rank's share of a selection, grouped by
// resource type and compressed into idset range-string form (spec
// section 6: "R_lite is a list of {rank, children:{core, gpu}}", e.g.
// children.core = "0-1"), mirroring idset_encode(...,
// IDSET_FLAG_RANGE) in the original implementation.
type rlite struct {
	Rank     int64             `json:"rank"`
	Children map[string]string `json:"children"`
}

// buildRLite groups sel's allocations by rank and resource type, and
// within each group encodes the pool-local instance ids (graph.Pool.ID,
// e.g. core 0 and core 1 under the same node) as a compressed idset
// range string rather than a list of global vertex handles.
func buildRLite(g *graph.Graph, sel *Selection) []rlite {
	byRank := make(map[int64]map[string][]int64)
	var ranks []int64
	for _, a := range sel.Allocs {
		ids, ok := byRank[a.Rank]
		if !ok {
			ids = make(map[string][]int64)
			byRank[a.Rank] = ids
			ranks = append(ranks, a.Rank)
		}
		ids[a.Type] = append(ids[a.Type], localID(g, a))
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })
	out := make([]rlite, 0, len(ranks))
	for _, r := range ranks {
		children := make(map[string]string, len(byRank[r]))
		for typ, ids := range byRank[r] {
			children[typ] = encodeIdset(ids)
		}
		out = append(out, rlite{Rank: r, Children: children})
	}
	return out
}

// localID returns the pool-local instance id an R_lite idset entry
// should carry for a (graph.Pool.ID, e.g. core 0 and core 1 under the
// same node). A missing pool falls back to the global handle so
// Parse still has something distinct to look for, though that case
// never arises for allocations built from a live graph.
func localID(g *graph.Graph, a Alloc) int64 {
	if g != nil {
		if p, ok := g.Pool(a.Handle); ok {
			return p.ID
		}
	}
	return int64(a.Handle)
}

// encodeIdset compresses a set of local resource indices into Flux's
// range-string idset form, e.g. [0,1] -> "0-1", [0,2] -> "0,2".
func encodeIdset(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	start, prev := sorted[0], sorted[0]
	for _, id := range sorted[1:] {
		switch {
		case id == prev:
			continue
		case id == prev+1:
			prev = id
		default:
			writeIdsetRange(&b, start, prev)
			start, prev = id, id
		}
	}
	writeIdsetRange(&b, start, prev)
	return b.String()
}

func writeIdsetRange(b *strings.Builder, start, end int64) {
	if b.Len() > 0 {
		b.WriteByte(',')
	}
	b.WriteString(strconv.FormatInt(start, 10))
	if end != start {
		b.WriteByte('-')
		b.WriteString(strconv.FormatInt(end, 10))
	}
}

// decodeIdset expands a range-string idset back into its member ids,
// the inverse of encodeIdset.
func decodeIdset(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, tok := range strings.Split(s, ",") {
		bounds := strings.SplitN(tok, "-", 2)
		lo, err := strconv.ParseInt(bounds[0], 10, 64)
		if err != nil {
			return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "malformed idset token: "+tok)
		}
		hi := lo
		if len(bounds) == 2 {
			hi, err = strconv.ParseInt(bounds[1], 10, 64)
			if err != nil {
				return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "malformed idset token: "+tok)
			}
		}
		for id := lo; id <= hi; id++ {
			out = append(out, id)
		}
	}
	return out, nil
}

type execution struct {
	RLite      []rlite `json:"R_lite"`
	StartTime  int64   `json:"starttime"`
	Expiration int64   `json:"expiration"`
}

// rv1Doc is the shared envelope of rv1_nosched and rv1exec: both carry
// the same execution block, rv1exec additionally being losslessly
// invertible into per-vertex node assignments (tracked here via the
// same Allocs list already present on Selection).
type rv1Doc struct {
	Version   int       `json:"version"`
	Execution execution `json:"execution"`
	Allocs    []Alloc   `json:"allocs,omitempty"`
}

type jgfNode struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type jgfEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Relation string `json:"relation"`
}

type jgfDoc struct {
	Graph struct {
		Nodes []jgfNode `json:"nodes"`
		Edges []jgfEdge `json:"edges"`
	} `json:"graph"`
}

// Emit renders sel in the given format.
func Emit(g *graph.Graph, sel *Selection, format Format) (string, error) {
	switch format {
	case FormatRV1NoSched:
		doc := rv1Doc{
			Version: 1,
			Execution: execution{
				RLite:      buildRLite(g, sel),
				StartTime:  sel.At,
				Expiration: 0,
			},
		}
		return marshal(doc)
	case FormatRV1Exec:
		doc := rv1Doc{
			Version: 1,
			Execution: execution{
				RLite:      buildRLite(g, sel),
				StartTime:  sel.At,
				Expiration: 0,
			},
			Allocs: sel.Allocs,
		}
		return marshal(doc)
	case FormatJGF:
		return emitJGF(g, sel)
	default:
		return "", rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown R format: "+string(format))
	}
}

func emitJGF(g *graph.Graph, sel *Selection) (string, error) {
	var doc jgfDoc
	seen := make(map[graph.Handle]bool)
	for _, a := range sel.Allocs {
		if seen[a.Handle] {
			continue
		}
		seen[a.Handle] = true
		p, ok := g.Pool(a.Handle)
		if !ok {
			continue
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, jgfNode{
			ID:   p.Name(),
			Type: p.Type,
			Metadata: map[string]string{
				"qty": int64ToString(a.Qty),
			},
		})
	}
	return marshal(doc)
}

func marshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", rpcerr.New(rpcerr.KindFatal, rpcerr.EPROTO, "R-set marshal failed: "+err.Error())
	}
	return string(b), nil
}

func int64ToString(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Reader inverts a previously emitted document back into a Selection,
// used by traverser.Update to rehydrate a job from a surfaced R set.
type Reader interface {
	Parse(g *graph.Graph, format Format, text string) (*Selection, error)
}

type jsonReader struct{}

// NewReader returns the reader for rv1_nosched/rv1exec documents: the
// only formats that carry enough structure (rank + per-type idsets of
// pool-local ids, plus the explicit allocs list in rv1exec) to be replayed without re-resolving a jgf document's node
// names against the live graph.
func NewReader() Reader { return jsonReader{} }

func (jsonReader) Parse(g *graph.Graph, format Format, text string) (*Selection, error) {
	if format == FormatJGF {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "jgf R-sets are not replayable by handle")
	}
	var doc rv1Doc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "malformed R set: "+err.Error())
	}
	sel := &Selection{At: doc.Execution.StartTime}
	if len(doc.Allocs) > 0 {
		sel.Allocs = doc.Allocs
		return sel, nil
	}
	for _, rl := range doc.Execution.RLite {
		for typ, idset := range rl.Children {
			ids, err := decodeIdset(idset)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				handle, ok := g.ByRankTypeID(rl.Rank, typ, id)
				if !ok {
					return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "R set references unknown vertex")
				}
				sel.Allocs = append(sel.Allocs, Alloc{
					Handle: handle,
					Rank:   rl.Rank,
					Type:   typ,
					Qty:    1,
				})
			}
		}
	}
	return sel, nil
}
