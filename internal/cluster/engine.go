package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/clipline/internal/models"
)

// Similarity thresholds, checked in descending order so each pair lands in
// exactly one bin.
const (
	DuplicateThreshold     = 0.95
	MultipleTakesThreshold = 0.85
	SameTopicThreshold     = 0.75
)

// ClipText is the input unit: a clip id and its aligned transcript.
type ClipText struct {
	ClipID string
	Text   string
}

type Engine struct {
	embedder Embedder
}

func NewEngine(embedder Embedder) *Engine {
	return &Engine{embedder: embedder}
}

// Detect runs the full clustering pipeline: embed transcripts, score all
// unordered pairs, and group connected components per similarity bin.
// Clips whose transcript trims to nothing are skipped; fewer than two
// usable clips yields no embeddings and no groups.
func (e *Engine) Detect(ctx context.Context, clips []ClipText) ([]models.ClipEmbedding, []models.ClipGroup, error) {
	usable := make([]ClipText, 0, len(clips))
	for _, c := range clips {
		if strings.TrimSpace(c.Text) != "" {
			usable = append(usable, c)
		}
	}
	if len(usable) < 2 {
		slog.Info("skipping clustering", "usable_clips", len(usable))
		return nil, nil, nil
	}

	texts := make([]string, len(usable))
	for i, c := range usable {
		texts[i] = c.Text
	}

	vectors, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed transcripts: %w", err)
	}
	if len(vectors) != len(usable) {
		return nil, nil, fmt.Errorf("embedding count mismatch: %d clips, %d vectors",
			len(usable), len(vectors))
	}

	embeddings := make([]models.ClipEmbedding, len(usable))
	for i, c := range usable {
		embeddings[i] = models.ClipEmbedding{ClipID: c.ClipID, Embedding: vectors[i]}
	}

	pairs := SimilarPairs(embeddings, SameTopicThreshold)
	groups := BuildGroups(pairs)

	slog.Info("clustering complete",
		"clips", len(usable),
		"pairs", len(pairs),
		"groups", len(groups),
	)
	return embeddings, groups, nil
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either norm is 0.
func CosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarPairs computes cosine similarity for every unordered pair and
// keeps those at or above minSimilarity.
func SimilarPairs(embeddings []models.ClipEmbedding, minSimilarity float64) []models.SimilarityPair {
	var pairs []models.SimilarityPair
	for i := 0; i < len(embeddings); i++ {
		for j := i + 1; j < len(embeddings); j++ {
			sim := CosineSimilarity(embeddings[i].Embedding, embeddings[j].Embedding)
			if sim >= minSimilarity {
				pairs = append(pairs, models.SimilarityPair{
					ClipID1:    embeddings[i].ClipID,
					ClipID2:    embeddings[j].ClipID,
					Similarity: sim,
				})
			}
		}
	}
	return pairs
}

// ClassifyPair bins a pair by descending threshold checks. A 0.97 pair is
// duplicate only, never also multiple_takes.
func ClassifyPair(pair models.SimilarityPair) (models.GroupType, bool) {
	switch {
	case pair.Similarity >= DuplicateThreshold:
		return models.GroupDuplicate, true
	case pair.Similarity >= MultipleTakesThreshold:
		return models.GroupMultipleTakes, true
	case pair.Similarity >= SameTopicThreshold:
		return models.GroupSameTopic, true
	default:
		return "", false
	}
}

// BuildGroups partitions pairs into bins, then emits one group per
// connected component of each bin's graph. Components of size 1 are
// dropped. The representative is the first node visited; DFS seeds and
// neighbor expansion iterate clip ids in sorted order so results are
// deterministic.
func BuildGroups(pairs []models.SimilarityPair) []models.ClipGroup {
	binned := make(map[models.GroupType][]models.SimilarityPair)
	for _, pair := range pairs {
		if gt, ok := ClassifyPair(pair); ok {
			binned[gt] = append(binned[gt], pair)
		}
	}

	var groups []models.ClipGroup
	for _, gt := range []models.GroupType{models.GroupDuplicate, models.GroupMultipleTakes, models.GroupSameTopic} {
		typed := binned[gt]
		if len(typed) == 0 {
			continue
		}

		adjacency := make(map[string][]string)
		scores := make(map[[2]string]float64)
		for _, pair := range typed {
			adjacency[pair.ClipID1] = append(adjacency[pair.ClipID1], pair.ClipID2)
			adjacency[pair.ClipID2] = append(adjacency[pair.ClipID2], pair.ClipID1)
			scores[pairKey(pair.ClipID1, pair.ClipID2)] = pair.Similarity
		}

		seeds := make([]string, 0, len(adjacency))
		for id := range adjacency {
			seeds = append(seeds, id)
		}
		sort.Strings(seeds)

		visited := make(map[string]bool)
		for _, seed := range seeds {
			if visited[seed] {
				continue
			}
			component := dfs(seed, adjacency, visited)
			if len(component) < 2 {
				continue
			}

			representative := component[0]
			memberScores := make(map[string]float64, len(component)-1)
			for _, id := range component {
				if id == representative {
					continue
				}
				// Direct edge to the representative if one exists;
				// transitively-connected members default to 0.
				memberScores[id] = scores[pairKey(representative, id)]
			}

			groups = append(groups, models.ClipGroup{
				GroupID:              uuid.New().String(),
				GroupType:            gt,
				ClipIDs:              component,
				RepresentativeClipID: representative,
				SimilarityScores:     memberScores,
			})
		}
	}
	return groups
}

func dfs(start string, adjacency map[string][]string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node] {
			continue
		}
		visited[node] = true
		component = append(component, node)

		neighbors := append([]string(nil), adjacency[node]...)
		sort.Sort(sort.Reverse(sort.StringSlice(neighbors)))
		for _, n := range neighbors {
			if !visited[n] {
				stack = append(stack, n)
			}
		}
	}
	return component
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
