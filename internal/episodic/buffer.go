// Package episodic implements the recency-biased episodic memory: a
// fixed-capacity FIFO ring of past (query, response) interactions
// retrieved by a similarity-times-temporal-decay score. See spec §4.2.
package episodic

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"cortex-engine/internal/types"
)

// DefaultDecay is the default temporal decay constant λ applied to
// score = cosine(q, e.embedding) * exp(-λ * Δt_ms).
const DefaultDecay = 1e-6

// Episode is one recorded (query, response) interaction.
type Episode struct {
	Query       string
	Response    string
	Embedding   types.Embedding
	TimestampMs int64
	Metadata    map[string]string

	// EmbeddingZeroFilled is set when this episode's embedding could
	// not be recovered from a save file and was filled with zeros on
	// load; callers surfacing this episode should flag it.
	EmbeddingZeroFilled bool
}

// Buffer is the fixed-capacity, insertion-ordered episodic ring.
// A single exclusive lock covers every operation; retrieval copies a
// snapshot of the slice under the lock, releases it, and scores the
// snapshot outside the lock.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	dim      int
	decay    float64
	episodes []Episode
	logger   *slog.Logger
}

// NewBuffer creates a ring buffer of the given capacity. dim is the
// declared embedding dimension used to zero-fill episodes whose
// embedding could not be recovered on load.
func NewBuffer(capacity, dim int, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		capacity: capacity,
		dim:      dim,
		decay:    DefaultDecay,
		episodes: make([]Episode, 0, capacity),
		logger:   logger,
	}
}

// Add appends a new episode, evicting the oldest one first if the
// buffer is already at capacity.
func (b *Buffer) Add(query, response string, embedding types.Embedding, metadata map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.episodes) >= b.capacity {
		b.episodes = b.episodes[1:]
	}
	b.episodes = append(b.episodes, Episode{
		Query:       query,
		Response:    response,
		Embedding:   embedding,
		TimestampMs: time.Now().UnixMilli(),
		Metadata:    metadata,
	})
}

type scored struct {
	episode Episode
	score   float32
}

// Scored pairs an episode with the score RetrieveSimilar ranked it by.
type Scored struct {
	Episode Episode
	Score   float32
}

// RetrieveSimilar scores every episode by cosine(q, e.embedding) *
// exp(-λ * Δt_ms), keeps those scoring at least threshold, and returns
// the top k sorted descending (ties broken by later timestamp first).
func (b *Buffer) RetrieveSimilar(queryEmbedding types.Embedding, k int, threshold float32) []Episode {
	scored := b.RetrieveSimilarScored(queryEmbedding, k, threshold)
	out := make([]Episode, len(scored))
	for i, s := range scored {
		out[i] = s.Episode
	}
	return out
}

// RetrieveSimilarScored is RetrieveSimilar but also returns the score
// each episode ranked by, for callers (the query Handler's fusion
// step) that need a per-source score alongside the content.
func (b *Buffer) RetrieveSimilarScored(queryEmbedding types.Embedding, k int, threshold float32) []Scored {
	b.mu.Lock()
	snapshot := make([]Episode, len(b.episodes))
	copy(snapshot, b.episodes)
	b.mu.Unlock()

	now := time.Now().UnixMilli()

	candidates := make([]scored, 0, len(snapshot))
	for _, e := range snapshot {
		sim := cosine(queryEmbedding, e.Embedding)
		deltaMs := float64(now - e.TimestampMs)
		if deltaMs < 0 {
			deltaMs = 0
		}
		decayFactor := math.Exp(-b.decay * deltaMs)
		score := sim * float32(decayFactor)
		if score >= threshold {
			candidates = append(candidates, scored{episode: e, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].episode.TimestampMs > candidates[j].episode.TimestampMs
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Episode: c.episode, Score: c.score}
	}
	return out
}

// GetRecent returns the last n episodes in insertion order.
func (b *Buffer) GetRecent(n int) []Episode {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.episodes) {
		n = len(b.episodes)
	}
	start := len(b.episodes) - n
	out := make([]Episode, n)
	copy(out, b.episodes[start:])
	return out
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.episodes = make([]Episode, 0, b.capacity)
}

// Size returns the current episode count.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.episodes)
}

// IsFull reports whether the buffer is at capacity.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.episodes) >= b.capacity
}

func cosine(a, b types.Embedding) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dotP, normA, normB float64
	for i := range a {
		dotP += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA < 1e-20 || normB < 1e-20 {
		return 0
	}
	return float32(dotP / (math.Sqrt(normA) * math.Sqrt(normB)))
}
