package traverser

import (
	"strings"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/rset"
)

// predicate evaluates one vertex against a find criteria string (spec
// section 4.6.5). Supported keys: status, sched-now, sched-future,
// names (a comma-separated list of exact vertex names; hostlist ranges
// such as node[0-3] are not expanded), property. Combined with "and"/"or"/
// whitespace (implicit and) and parentheses.
type predicate func(g *graph.Graph, v graph.Handle, at, duration int64) bool

// Find evaluates criteria over every vertex and emits the matches via
// format.
func (tr *Traverser) Find(g *graph.Graph, criteria string, format rset.Format, at, duration int64) (string, error) {
	pred, err := parseCriteria(criteria)
	if err != nil {
		return "", err
	}
	var allocs []rset.Alloc
	for _, v := range allVertices(g) {
		if pred(g, v, at, duration) {
			pool, ok := g.Pool(v)
			if !ok {
				continue
			}
			allocs = append(allocs, rset.Alloc{Handle: v, Type: pool.Type, Qty: pool.Size, Rank: rankOf(g, v)})
		}
	}
	sel := &rset.Selection{Allocs: allocs, At: at, Duration: duration}
	return rset.Emit(g, sel, format)
}

// parseCriteria parses a minimal "and"/"or"/whitespace(=and)
// expression over key[=value] atoms, left-associative, with "or"
// binding looser than implicit/explicit "and". Parentheses group.
func parseCriteria(s string) (predicate, error) {
	toks := tokenize(s)
	if len(toks) == 0 {
		return func(*graph.Graph, graph.Handle, int64, int64) bool { return true }, nil
	}
	p := &criteriaParser{toks: toks}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "trailing tokens in find criteria")
	}
	return pred, nil
}

func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

type criteriaParser struct {
	toks []string
	pos  int
}

func (p *criteriaParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *criteriaParser) parseOr() (predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "or" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		r := right
		left = func(g *graph.Graph, v graph.Handle, at, d int64) bool { return l(g, v, at, d) || r(g, v, at, d) }
	}
	return left, nil
}

func (p *criteriaParser) parseAnd() (predicate, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok == "" || tok == "or" || tok == ")" {
			break
		}
		if tok == "and" {
			p.pos++
		}
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		l := left
		r := right
		left = func(g *graph.Graph, v graph.Handle, at, d int64) bool { return l(g, v, at, d) && r(g, v, at, d) }
	}
	return left, nil
}

func (p *criteriaParser) parseAtom() (predicate, error) {
	tok := p.peek()
	if tok == "" {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unexpected end of find criteria")
	}
	if tok == "(" {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unbalanced parentheses in find criteria")
		}
		p.pos++
		return inner, nil
	}
	p.pos++
	return atomPredicate(tok)
}

func atomPredicate(tok string) (predicate, error) {
	parts := strings.SplitN(tok, "=", 2)
	if len(parts) != 2 {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "malformed find atom: "+tok)
	}
	key, val := parts[0], parts[1]
	switch key {
	case "status":
		want := graph.Up
		if val == "down" {
			want = graph.Down
		}
		return func(g *graph.Graph, v graph.Handle, at, d int64) bool {
			p, ok := g.Pool(v)
			return ok && p.Status == want
		}, nil
	case "sched-now":
		wantAllocated := val == "allocated"
		return func(g *graph.Graph, v graph.Handle, at, d int64) bool {
			p, ok := g.Pool(v)
			if !ok {
				return false
			}
			free, err := p.Planner.AvailResourcesDuring(at, d)
			allocated := err == nil && free < p.Planner.Capacity()
			return allocated == wantAllocated
		}, nil
	case "sched-future":
		wantReserved := val == "reserved"
		return func(g *graph.Graph, v graph.Handle, at, d int64) bool {
			p, ok := g.Pool(v)
			if !ok {
				return false
			}
			free, err := p.Planner.AvailResourcesDuring(at, d)
			reserved := err == nil && free < p.Planner.Capacity()
			return reserved == wantReserved
		}, nil
	case "names":
		wanted := make(map[string]bool)
		for _, n := range strings.Split(val, ",") {
			wanted[n] = true
		}
		return func(g *graph.Graph, v graph.Handle, at, d int64) bool {
			p, ok := g.Pool(v)
			return ok && wanted[p.Name()]
		}, nil
	case "property":
		return func(g *graph.Graph, v graph.Handle, at, d int64) bool {
			p, ok := g.Pool(v)
			if !ok {
				return false
			}
			_, has := p.GetProperty(val)
			return has
		}, nil
	default:
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown find key: "+key)
	}
}
