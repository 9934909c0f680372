package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/docuflow/docuflow/internal/models"
)

// rerank blends keyword rank with a query-embedding similarity rank using
// Reciprocal Rank Fusion (k from config, default 60; mixing weight alpha,
// default 0.5), per §4.9 step 4. contexts must already be in keyword-rank
// order (as returned by SearchIndex.Search) when this is called; each
// context's hit.Score is overwritten with the fused score. Returns false
// (leaving keyword scores untouched) whenever no embedder is configured or
// no candidate has a stored embedding, so a keyword-only ranking is
// indistinguishable from an RRF merge with every semantic weight at zero.
func (e *Engine) rerank(ctx context.Context, textQuery string, contexts []*docContext) bool {
	if e.embedder == nil || textQuery == "" || len(contexts) == 0 {
		return false
	}

	queryVec, err := e.embedder.Embed(ctx, textQuery)
	if err != nil {
		e.logger.Warn().Err(err).Msg("query embedding failed; skipping semantic rerank")
		return false
	}

	docIDs := make([]string, len(contexts))
	for i, c := range contexts {
		docIDs[i] = c.document.ID
	}
	embeddings, err := e.index.GetEmbeddings(ctx, docIDs)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to load document embeddings; skipping semantic rerank")
		return false
	}
	if len(embeddings) == 0 {
		return false
	}

	type similarity struct {
		documentID string
		score      float64
	}
	sims := make([]similarity, 0, len(embeddings))
	for id, vec := range embeddings {
		sims = append(sims, similarity{documentID: id, score: cosineSimilarity(queryVec, vec)})
	}
	sort.Slice(sims, func(i, j int) bool { return sims[i].score > sims[j].score })

	semanticRank := make(map[string]int, len(sims))
	for i, s := range sims {
		semanticRank[s.documentID] = i + 1
	}

	k := e.config.RRFK
	if k <= 0 {
		k = 60
	}
	alpha := e.config.RRFAlpha
	if alpha <= 0 {
		alpha = 0.5
	}

	for i, c := range contexts {
		keywordRank := i + 1
		keywordComponent := 1.0 / float64(k+keywordRank)
		semanticComponent := 0.0
		if rank, ok := semanticRank[c.document.ID]; ok {
			semanticComponent = 1.0 / float64(k+rank)
		}
		c.hit.Score = alpha*keywordComponent + (1-alpha)*semanticComponent
	}
	return true
}

// cosineSimilarity computes the cosine of the angle between a and b,
// returning 0 for a zero-length vector or a dimension mismatch rather than
// dividing by zero or panicking on index out of range.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// applyVerifiedPenalty discounts a hit's fused score when none of its
// ExtractedFields carry a human verification, per §4.9's ordering rule
// "(1 - verified penalty) x fused score; verified fields have a small
// boost" — expressed here as an explicit penalty on the unverified case so
// verified documents rank relatively higher without needing a separate
// boost constant.
func applyVerifiedPenalty(contexts []*docContext) {
	for _, c := range contexts {
		if !anyVerified(c.fields) {
			c.hit.Score *= 1 - unverifiedPenalty
		}
	}
}

func anyVerified(fields []models.ExtractedField) bool {
	for _, f := range fields {
		if f.Verified {
			return true
		}
	}
	return false
}
