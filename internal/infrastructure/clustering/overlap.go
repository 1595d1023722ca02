package clustering

import (
	"context"
	"sort"
	"strings"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "into": {}, "over": {}, "about": {}, "their": {}, "have": {},
	"has": {}, "are": {}, "was": {}, "were": {}, "will": {}, "would": {},
	"can": {}, "could": {}, "been": {}, "more": {}, "than": {}, "them": {},
	"they": {}, "its": {}, "also": {}, "not": {}, "but": {}, "when": {},
	"which": {}, "what": {}, "how": {}, "who": {}, "all": {}, "any": {},
}

// OverlapClusterer groups documents by token overlap. It is fully
// deterministic: identical input always yields an identical partition, which
// keeps digest aggregation idempotent over an unchanged window.
type OverlapClusterer struct {
	threshold float64
}

var _ ports.Clusterer = (*OverlapClusterer)(nil)

// NewOverlapClusterer builds a clusterer with a Jaccard join threshold.
func NewOverlapClusterer(threshold float64) *OverlapClusterer {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.2
	}
	return &OverlapClusterer{threshold: threshold}
}

type cluster struct {
	docIDs []string
	tokens map[string]int
}

// Cluster greedily assigns each document to the first existing group whose
// token set overlaps enough, otherwise opens a new group. Input order decides
// assignments, so callers must hand over deterministically sorted docs.
func (c *OverlapClusterer) Cluster(_ context.Context, docs []ports.ClusterDoc) ([]domain.Theme, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var clusters []*cluster
	for _, doc := range docs {
		tokens := Tokenize(doc)
		placed := false
		for _, cl := range clusters {
			if jaccard(tokens, cl.tokens) >= c.threshold {
				cl.docIDs = append(cl.docIDs, doc.ItemID)
				for tok := range tokens {
					cl.tokens[tok]++
				}
				placed = true
				break
			}
		}
		if !placed {
			counts := make(map[string]int, len(tokens))
			for tok := range tokens {
				counts[tok] = 1
			}
			clusters = append(clusters, &cluster{
				docIDs: []string{doc.ItemID},
				tokens: counts,
			})
		}
	}

	themes := make([]domain.Theme, 0, len(clusters))
	for _, cl := range clusters {
		themes = append(themes, domain.Theme{
			Label:   label(cl),
			ItemIDs: cl.docIDs,
		})
	}
	return themes, nil
}

// Tokenize reduces a document to its significant terms: title and summary
// words longer than three runes, plus tags and entity names verbatim.
func Tokenize(doc ports.ClusterDoc) map[string]struct{} {
	tokens := map[string]struct{}{}

	for _, word := range strings.FieldsFunc(strings.ToLower(doc.Title+" "+doc.Summary), notLetter) {
		if len(word) <= 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		tokens[word] = struct{}{}
	}

	for _, tag := range doc.Tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			tokens[tag] = struct{}{}
		}
	}
	for _, ent := range doc.Entities {
		if name := strings.ToLower(strings.TrimSpace(ent.Name)); name != "" {
			tokens[name] = struct{}{}
		}
	}

	return tokens
}

func notLetter(r rune) bool {
	return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
}

func jaccard(tokens map[string]struct{}, counts map[string]int) float64 {
	if len(tokens) == 0 || len(counts) == 0 {
		return 0
	}
	shared := 0
	for tok := range tokens {
		if _, ok := counts[tok]; ok {
			shared++
		}
	}
	union := len(tokens) + len(counts) - shared
	return float64(shared) / float64(union)
}

// label picks the token most shared across the cluster's documents, breaking
// frequency ties lexicographically for determinism.
func label(cl *cluster) string {
	type tokenCount struct {
		token string
		count int
	}
	ranked := make([]tokenCount, 0, len(cl.tokens))
	for tok, count := range cl.tokens {
		ranked = append(ranked, tokenCount{token: tok, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})
	if len(ranked) == 0 {
		return "miscellaneous"
	}
	return ranked[0].token
}
