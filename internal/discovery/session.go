package discovery

import (
	"strings"
	"sync"

	"github.com/desertthunder/crawlmix/internal/models"
)

// Session is the crawl state of one playlist request.
//
// Visited artists and collected tracks only grow. Collected tracks keep insertion order
// and are unique by URI.
type Session struct {
	mu        sync.Mutex
	visited   map[string]struct{}
	related   map[string][]models.ArtistRef
	seeds     map[string]models.ArtistRef
	collected map[string]struct{}
	tracks    []models.TrackCandidate
}

// NewSession returns an empty [Session].
func NewSession() *Session {
	return &Session{
		visited:   make(map[string]struct{}),
		related:   make(map[string][]models.ArtistRef),
		seeds:     make(map[string]models.ArtistRef),
		collected: make(map[string]struct{}),
	}
}

// Visit marks an artist as visited and reports whether it was new.
func (s *Session) Visit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visited[id]; ok {
		return false
	}
	s.visited[id] = struct{}{}
	return true
}

// IsVisited reports whether the artist was visited.
func (s *Session) IsVisited(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.visited[id]
	return ok
}

// VisitedCount returns the number of visited artists.
func (s *Session) VisitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// Collect appends t unless its URI is empty or already collected, and reports whether it was added.
func (s *Session) Collect(t models.TrackCandidate) bool {
	if t.URI == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collected[t.URI]; ok {
		return false
	}
	s.collected[t.URI] = struct{}{}
	s.tracks = append(s.tracks, t)
	return true
}

// Has reports whether a track URI was collected.
func (s *Session) Has(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.collected[uri]
	return ok
}

// Len returns the number of collected tracks.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// Tracks returns a copy of the collected tracks in collection order.
func (s *Session) Tracks() []models.TrackCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.TrackCandidate, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// URIs returns the collected track URIs in collection order.
func (s *Session) URIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t.URI
	}
	return out
}

// relatedOf returns the neighbour list fetched when the artist was expanded.
func (s *Session) relatedOf(id string) ([]models.ArtistRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	related, ok := s.related[id]
	return related, ok
}

func (s *Session) setRelated(id string, related []models.ArtistRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.related[id] = related
}

func (s *Session) seed(name string) (models.ArtistRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.seeds[seedKey(name)]
	return a, ok
}

func (s *Session) setSeed(name string, a models.ArtistRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds[seedKey(name)] = a
}

func seedKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
