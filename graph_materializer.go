package pubquery

import (
	"context"
	"fmt"
	"sort"

	pubcore "github.com/gwngames/pubquery/internal/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// GraphMaterializer runs the bounded BFS pipeline (spec.md §4.4) that turns
// a set of root author ids into a co-authorship graph: strong edges from
// forward BFS expansion, a boundary pass of weak edges, pair enrichment with
// rank/year frequencies, per-root BFS trees for edge classification, and
// node enrichment via the Authors Overview constructor. It has no direct
// original-source equivalent: the original graph endpoint used a single
// recursive CTE with a depth counter and path array
// (AuthorQuery.build_author_network_query); this batched-BFS design is its
// replacement, built from the VALUES-join pattern the original already uses
// elsewhere (JournalQuery.build_authors_from_journals_query).
type GraphMaterializer struct {
	core       *Core
	batchWidth int
	maxDepth   int
}

// NewGraphMaterializer creates a materializer backed by core's config for
// the default batch width and max depth bound.
func NewGraphMaterializer(core *Core) *GraphMaterializer {
	bw, md := 200, 5
	if core != nil && core.config != nil {
		bw = core.config.batchWidth()
		md = core.config.maxDepth()
	}
	return &GraphMaterializer{core: core, batchWidth: bw, maxDepth: md}
}

type edgeRecord struct {
	sid, eid           int
	slabel, elabel     string
	simg, eimg         string
}

func edgeKey(a, b int) [2]int {
	if a < b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

// chunk partitions ids into slices of at most width, preserving order.
func chunk(ids []int, width int) [][]int {
	if width <= 0 {
		width = len(ids)
	}
	var out [][]int
	for i := 0; i < len(ids); i += width {
		end := i + width
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

// runConcurrent runs fn once per item in items, bounded to gm's configured
// fan-out concurrency, recovering each task's failure locally per spec.md
// §4.4's failure policy: a failed task is logged and contributes nothing,
// BFS continues.
func (gm *GraphMaterializer) runConcurrent(ctx context.Context, items [][]int, fn func(ctx context.Context, chunk []int) ([]map[string]any, error)) [][]map[string]any {
	limit := int64(8)
	if gm.core != nil && gm.core.config != nil {
		limit = gm.core.config.fanoutConcurrency()
	}
	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)
	results := make([][]map[string]any, len(items))
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			rows, err := fn(gctx, it)
			if err != nil {
				if gm.core != nil && gm.core.logger != nil {
					gm.core.logger.Error("graph_batch_failed", Field{Key: "error", Value: err})
				}
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Generate runs the full ten-step pipeline for rootIDs at the given depth.
func (gm *GraphMaterializer) Generate(ctx context.Context, rootIDs []int, depth int) (*GraphResult, error) {
	if len(rootIDs) == 0 {
		return nil, badRequest("generate-graph requires at least one root author id")
	}
	if depth < 0 {
		return nil, badRequest("depth must be non-negative")
	}
	if depth > gm.maxDepth {
		depth = gm.maxDepth
	}

	// Step 1: root lookup.
	rootRows, err := RootAuthorsQuery(gm.core, rootIDs).Execute(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make(map[int]*Node, len(rootRows))
	roots := make(map[int]bool, len(rootIDs))
	for _, row := range rootRows {
		id := toInt(row["id"])
		roots[id] = true
		nodes[id] = &Node{
			ID:     id,
			Label:  camelCaseOf(row["name"]),
			Image:  stringOf(row["image_url"]),
			IsRoot: true,
		}
	}
	if len(nodes) == 0 {
		return nil, notFound("no authors found for the given root ids")
	}

	// Step 2: bounded BFS expansion.
	seen := make(map[int]bool, len(rootIDs))
	frontier := make([]int, 0, len(rootIDs))
	for id := range roots {
		frontier = append(frontier, id)
	}
	sort.Ints(frontier)
	var strongEdges []edgeRecord

	for d := 0; d < depth; d++ {
		current := dedupeAgainst(frontier, seen)
		if len(current) == 0 {
			break
		}
		for _, id := range current {
			seen[id] = true
		}
		nextSet := make(map[int]bool)
		var nextOrder []int
		chunks := chunk(current, gm.batchWidth)
		results := gm.runConcurrent(ctx, chunks, func(ctx context.Context, c []int) ([]map[string]any, error) {
			return CoauthorEdgeBatchQuery(gm.core, c).Execute(ctx)
		})
		for _, rows := range results {
			for _, row := range rows {
				rec := edgeRecord{
					sid: toInt(row["sid"]), slabel: stringOf(row["slabel"]), simg: stringOf(row["simg"]),
					eid: toInt(row["eid"]), elabel: stringOf(row["elabel"]), eimg: stringOf(row["eimg"]),
				}
				strongEdges = append(strongEdges, rec)
				if !seen[rec.eid] && !nextSet[rec.eid] {
					nextSet[rec.eid] = true
					nextOrder = append(nextOrder, rec.eid)
				}
			}
		}
		frontier = nextOrder
	}

	// Step 3: boundary pass with the final unseen frontier.
	boundary := dedupeAgainst(frontier, seen)
	var weakEdges []edgeRecord
	if len(boundary) > 0 {
		chunks := chunk(boundary, gm.batchWidth)
		results := gm.runConcurrent(ctx, chunks, func(ctx context.Context, c []int) ([]map[string]any, error) {
			return CoauthorEdgeBatchQuery(gm.core, c).Execute(ctx)
		})
		for _, rows := range results {
			for _, row := range rows {
				weakEdges = append(weakEdges, edgeRecord{
					sid: toInt(row["sid"]), slabel: stringOf(row["slabel"]), simg: stringOf(row["simg"]),
					eid: toInt(row["eid"]), elabel: stringOf(row["elabel"]), eimg: stringOf(row["eimg"]),
				})
			}
		}
	}

	// Step 4: graph assembly.
	ensureNode := func(id int, label, image string) {
		if _, ok := nodes[id]; !ok {
			nodes[id] = &Node{ID: id, Label: label, Image: image}
		}
	}
	adjacency := make(map[int][]int)
	adjSeen := make(map[[2]int]bool)
	addAdjacency := func(a, b int) {
		k := edgeKey(a, b)
		if adjSeen[k] {
			return
		}
		adjSeen[k] = true
		adjacency[a] = append(adjacency[a], b)
		adjacency[b] = append(adjacency[b], a)
	}
	edgeDataMap := make(map[[2]int]edgeRecord)
	for _, e := range strongEdges {
		if e.sid == e.eid {
			continue
		}
		ensureNode(e.sid, e.slabel, e.simg)
		ensureNode(e.eid, e.elabel, e.eimg)
		k := edgeKey(e.sid, e.eid)
		if _, ok := edgeDataMap[k]; !ok {
			edgeDataMap[k] = e
		}
		addAdjacency(e.sid, e.eid)
	}
	for _, e := range weakEdges {
		if e.sid == e.eid {
			continue
		}
		if _, ok := nodes[e.sid]; !ok {
			continue
		}
		if _, ok := nodes[e.eid]; !ok {
			continue
		}
		k := edgeKey(e.sid, e.eid)
		if _, ok := edgeDataMap[k]; !ok {
			edgeDataMap[k] = e
			addAdjacency(e.sid, e.eid)
		}
	}

	// Step 5: pair enrichment.
	pairs := make([][2]int, 0, len(edgeDataMap))
	for k := range edgeDataMap {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	confRankFreq := make(map[[2]int]map[string]int)
	journalRankFreq := make(map[[2]int]map[string]int)
	yearFreq := make(map[[2]int]map[string]int)
	unranked := make(map[[2]int]int)

	pairChunks := chunkPairs(pairs, gm.batchWidth)
	pairResults := gm.runConcurrentPairs(ctx, pairChunks)
	for _, rows := range pairResults {
		for _, row := range rows {
			a, b := toInt(row["a"]), toInt(row["b"])
			if a == 0 && b == 0 {
				continue
			}
			k := edgeKey(a, b)
			confRank := stringOf(row["conference_rank"])
			journalRank := stringOf(row["journal_rank"])
			year := stringOf(row["publication_year"])
			gotRank := false
			if _, ok := conferenceRankOrder[confRank]; ok {
				ensureFreqMap(confRankFreq, k)[confRank]++
				gotRank = true
			}
			if _, ok := journalRankOrder[journalRank]; ok {
				ensureFreqMap(journalRankFreq, k)[journalRank]++
				gotRank = true
			}
			if !gotRank {
				unranked[k]++
			}
			if year != "" {
				ensureFreqMap(yearFreq, k)[year]++
			}
		}
	}

	// Step 6: per-root BFS trees.
	treeEdges := make(map[[2]int]bool)
	discoveryCount := make(map[int]int)
	rootIDList := make([]int, 0, len(roots))
	for id := range roots {
		rootIDList = append(rootIDList, id)
	}
	sort.Ints(rootIDList)
	for _, r := range rootIDList {
		visited := map[int]bool{r: true}
		discoveryCount[r]++
		queue := []int{r}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range adjacency[cur] {
				if roots[nb] && nb != r {
					continue
				}
				if visited[nb] {
					continue
				}
				visited[nb] = true
				discoveryCount[nb]++
				treeEdges[edgeKey(cur, nb)] = true
				queue = append(queue, nb)
			}
		}
	}

	// Step 7 & 8: edge classification and payload construction.
	var links, semiWeak, weak []Link
	for pair, rec := range edgeDataMap {
		a, b := pair[0], pair[1]
		payload := buildLinkPayload(a, b, confRankFreq[pair], journalRankFreq[pair], yearFreq[pair], unranked[pair])
		switch {
		case roots[a] && roots[b]:
			weak = append(weak, payload)
		case treeEdges[pair]:
			ca, cb := discoveryCount[a], discoveryCount[b]
			if ca > 1 || cb > 1 {
				payload.RootCounts = maxInt(ca, cb)
				semiWeak = append(semiWeak, payload)
			} else {
				links = append(links, payload)
			}
		default:
			weak = append(weak, payload)
		}
		_ = rec
	}

	// Step 9: node enrichment.
	discoveredIDs := make([]int, 0, len(discoveryCount))
	for id := range discoveryCount {
		discoveredIDs = append(discoveredIDs, id)
	}
	sort.Ints(discoveredIDs)
	if len(discoveredIDs) > 0 {
		enrichRows, err := AuthorsOverviewByIDsQuery(gm.core, discoveredIDs).Execute(ctx)
		if err == nil {
			for _, row := range enrichRows {
				id := toInt(row["id"])
				if n, ok := nodes[id]; ok {
					n.FreqConfRank = stringOf(row["freq_conf_rank"])
					n.FreqJournalRank = stringOf(row["freq_journal_rank"])
				}
			}
		}
	}

	// Step 10: pruning and output.
	keep := make(map[int]bool, len(discoveryCount))
	for id := range discoveryCount {
		keep[id] = true
	}
	outNodes := make([]Node, 0, len(keep))
	for id := range keep {
		if n, ok := nodes[id]; ok {
			outNodes = append(outNodes, *n)
		}
	}
	sort.Slice(outNodes, func(i, j int) bool { return outNodes[i].ID < outNodes[j].ID })

	filterLinks := func(in []Link) []Link {
		out := make([]Link, 0, len(in))
		for _, l := range in {
			if keep[l.Source] && keep[l.Target] {
				out = append(out, l)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Source != out[j].Source {
				return out[i].Source < out[j].Source
			}
			return out[i].Target < out[j].Target
		})
		return out
	}

	return &GraphResult{
		Nodes:         outNodes,
		Links:         filterLinks(links),
		SemiWeakLinks: filterLinks(semiWeak),
		WeakLinks:     filterLinks(weak),
	}, nil
}

func (gm *GraphMaterializer) runConcurrentPairs(ctx context.Context, chunks [][][2]int) [][]map[string]any {
	limit := int64(8)
	if gm.core != nil && gm.core.config != nil {
		limit = gm.core.config.fanoutConcurrency()
	}
	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)
	results := make([][]map[string]any, len(chunks))
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			rows, err := PairJointPublicationsQuery(gm.core, c).Execute(gctx)
			if err != nil {
				if gm.core != nil && gm.core.logger != nil {
					gm.core.logger.Error("graph_pair_batch_failed", Field{Key: "error", Value: err})
				}
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func chunkPairs(pairs [][2]int, width int) [][][2]int {
	if width <= 0 {
		width = len(pairs)
	}
	var out [][][2]int
	for i := 0; i < len(pairs); i += width {
		end := i + width
		if end > len(pairs) {
			end = len(pairs)
		}
		out = append(out, pairs[i:end])
	}
	return out
}

func ensureFreqMap(m map[[2]int]map[string]int, k [2]int) map[string]int {
	if m[k] == nil {
		m[k] = make(map[string]int)
	}
	return m[k]
}

// dominantRank picks the most frequent token in freq, breaking ties by
// lexicographic order of the rank token, per spec.md §4.4's tie-break rule.
func dominantRank(freq map[string]int) string {
	if len(freq) == 0 {
		return "Unranked"
	}
	best, bestCount := "", -1
	tokens := make([]string, 0, len(freq))
	for t := range freq {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	for _, t := range tokens {
		if freq[t] > bestCount {
			best, bestCount = t, freq[t]
		}
	}
	return best
}

func buildLinkPayload(a, b int, confFreq, journalFreq, yearFreq map[string]int, unrankedCount int) Link {
	ranks := make(map[string]int, len(confFreq)+len(journalFreq))
	for k, v := range confFreq {
		ranks[k] = v
	}
	for k, v := range journalFreq {
		ranks[k] = v
	}
	return Link{
		Source:         a,
		Target:         b,
		AvgConfRank:    dominantRank(confFreq),
		AvgJournalRank: dominantRank(journalFreq),
		Unranked:       unrankedCount,
		Years:          copyFreq(yearFreq),
		Ranks:          ranks,
	}
}

func copyFreq(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func dedupeAgainst(ids []int, seen map[int]bool) []int {
	out := make([]int, 0, len(ids))
	added := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] || added[id] {
			continue
		}
		added[id] = true
		out = append(out, id)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func camelCaseOf(v any) string {
	return pubcore.ToCamelCase(stringOf(v))
}
