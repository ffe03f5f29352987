package negotiate

import (
	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
)

// batchSize caps how many have lines each round offers, bounding a single
// frame's size on very large repositories.
const batchSize = 32

// HaveAllRefsOnce is the simplest negotiator: it offers every hash the
// caller already has in a single round, then immediately declares Done.
// Suited to a shallow/just-cloned store where there is no ancestry to
// exploit — correctness over round-trip efficiency.
type HaveAllRefsOnce struct{}

type haveAllRefsOnceState struct {
	haves []hash.Hash
	sent  bool
}

func (HaveAllRefsOnce) NewState(haves []hash.Hash) any {
	return &haveAllRefsOnceState{haves: haves}
}

func (HaveAllRefsOnce) Next(acks protocol.Acknowledgements, state any) (Decision, any) {
	st := state.(*haveAllRefsOnceState)
	if st.sent || len(st.haves) == 0 {
		return Decision{Kind: DecisionDone}, st
	}
	st.sent = true
	return Decision{Kind: DecisionAgain, Haves: st.haves}, st
}

// CommitParentLookup resolves a commit's immediate parents, used by
// SkipAncestorsViaCommitWalk to walk the client's local history without
// requiring the caller to materialize it up front.
type CommitParentLookup func(h hash.Hash) ([]hash.Hash, error)

// SkipAncestorsViaCommitWalk walks the client's commit graph breadth-first
// from its ref tips, offering a batch of frontier commits each round. Once
// a commit is ACKed as common, its ancestors are assumed common too (Git's
// usual shortcut) and the walk does not descend past it, keeping later
// rounds small even on deep histories.
type SkipAncestorsViaCommitWalk struct {
	Lookup CommitParentLookup
}

type skipAncestorsState struct {
	frontier []hash.Hash
	visited  map[string]bool
	rounds   int
}

func (n SkipAncestorsViaCommitWalk) NewState(haves []hash.Hash) any {
	visited := make(map[string]bool, len(haves))
	frontier := make([]hash.Hash, 0, len(haves))
	for _, h := range haves {
		if !visited[h.String()] {
			visited[h.String()] = true
			frontier = append(frontier, h)
		}
	}
	return &skipAncestorsState{frontier: frontier, visited: visited}
}

func (n SkipAncestorsViaCommitWalk) Next(acks protocol.Acknowledgements, state any) (Decision, any) {
	st := state.(*skipAncestorsState)
	st.rounds++

	common := make(map[string]bool, len(acks.Acks))
	for _, a := range acks.Acks {
		if a.Status == protocol.AckStatusCommon || a.Status == protocol.AckStatusContinue || a.Status == protocol.AckStatusFinal {
			common[a.ObjectID.String()] = true
		}
	}

	if len(common) > 0 || acks.Nack {
		st.frontier = n.expandFrontier(st, common)
	}

	if len(st.frontier) == 0 {
		return Decision{Kind: DecisionDone}, st
	}

	batch := st.frontier
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}
	st.frontier = st.frontier[len(batch):]

	return Decision{Kind: DecisionAgain, Haves: batch}, st
}

// expandFrontier replaces any acknowledged-common commit in the frontier
// with its parents (continuing the walk upward) and drops commits the
// server has already confirmed it has without descending further, since
// its ancestry is assumed common transitively.
func (n SkipAncestorsViaCommitWalk) expandFrontier(st *skipAncestorsState, common map[string]bool) []hash.Hash {
	next := make([]hash.Hash, 0, len(st.frontier))
	for _, h := range st.frontier {
		if common[h.String()] {
			continue
		}
		next = append(next, h)
	}

	for key := range common {
		h, err := hash.FromHex(key)
		if err != nil || n.Lookup == nil {
			continue
		}
		parents, err := n.Lookup(h)
		if err != nil {
			continue
		}
		for _, p := range parents {
			if !st.visited[p.String()] {
				st.visited[p.String()] = true
				next = append(next, p)
			}
		}
	}

	return next
}
