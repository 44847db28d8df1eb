package recognition

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the HNSW graph.
const hnswMaxNeighbors = 16

// GalleryIndex is an in-memory HNSW index over the enrolled gallery. It only
// preselects candidates for large galleries; callers must re-verify every
// candidate with exact distances (Classify), so approximate search never
// changes which identity wins, only which entries are considered.
type GalleryIndex struct {
	graph    *hnsw.Graph[int64]
	idToCand map[int64]*Candidate
	mu       sync.RWMutex
}

// NewGalleryIndex creates an empty gallery index.
func NewGalleryIndex() *GalleryIndex {
	return &GalleryIndex{
		idToCand: make(map[int64]*Candidate),
	}
}

// Build replaces the index contents with the given gallery.
func (g *GalleryIndex) Build(gallery []Candidate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(gallery) == 0 {
		g.graph = nil
		g.idToCand = make(map[int64]*Candidate)
		return nil
	}

	graph := hnsw.NewGraph[int64]()
	graph.M = hnswMaxNeighbors
	graph.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	graph.Distance = hnsw.EuclideanDistance

	g.idToCand = make(map[int64]*Candidate, len(gallery))
	for i := range gallery {
		c := &gallery[i]
		if len(c.Encoding) == 0 {
			continue
		}
		graph.Add(hnsw.MakeNode(c.ID, c.Encoding))
		g.idToCand[c.ID] = c
	}

	g.graph = graph
	return nil
}

// Add inserts a single candidate into the index.
func (g *GalleryIndex) Add(c Candidate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.graph == nil {
		graph := hnsw.NewGraph[int64]()
		graph.M = hnswMaxNeighbors
		graph.Ml = 1.0 / float64(hnswMaxNeighbors)
		graph.Distance = hnsw.EuclideanDistance
		g.graph = graph
	}
	if len(c.Encoding) == 0 {
		return errors.New("candidate has no encoding")
	}

	g.graph.Add(hnsw.MakeNode(c.ID, c.Encoding))
	g.idToCand[c.ID] = &c
	return nil
}

// Remove deletes a candidate from the index.
func (g *GalleryIndex) Remove(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.graph != nil {
		g.graph.Delete(id)
	}
	delete(g.idToCand, id)
}

// Count returns the number of indexed candidates.
func (g *GalleryIndex) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.idToCand)
}

// Candidates returns the k nearest gallery entries to the probe, ordered by
// gallery position (ascending ID) so that Classify keeps its first-occurrence
// tie break over the subset.
func (g *GalleryIndex) Candidates(probe []float32, k int) ([]Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil {
		return nil, errors.New("index not initialized")
	}

	neighbors := g.graph.Search(probe, k)
	out := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		if c, ok := g.idToCand[n.Key]; ok {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
