package discovery

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crawlmix/internal/models"
	"golang.org/x/sync/errgroup"
)

// Graph is the read side of the catalog walked by a [Crawler].
//
// Failures are reported as empty results.
type Graph interface {
	FindArtistByName(ctx context.Context, name string) (models.ArtistRef, bool)
	RelatedArtists(ctx context.Context, artistID string) []models.ArtistRef
	TopTracks(ctx context.Context, artistID string) []models.TrackCandidate
}

// State of a crawl.
type State int

const (
	Seeding State = iota
	Expanding
	Sampling
	DeadEnd
	Satisfied
)

func (s State) String() string {
	switch s {
	case Seeding:
		return "seeding"
	case Expanding:
		return "expanding"
	case Sampling:
		return "sampling"
	case DeadEnd:
		return "dead_end"
	case Satisfied:
		return "satisfied"
	default:
		return ""
	}
}

// Options tunes the walk.
type Options struct {
	HopLimit         int  // Expansions per crawl before giving up
	BranchMin        int  // Fewest neighbours sampled per hop
	BranchMax        int  // Most neighbours sampled per hop
	TracksPerArtist  int  // Accepted tracks per sampled artist
	ParallelFetch    bool // Fetch the top tracks of a hop's sampled artists concurrently
	FetchConcurrency int  // In-flight fetches when ParallelFetch is set
}

// DefaultOptions returns the walk parameters of the original crawler.
func DefaultOptions() Options {
	return Options{
		HopLimit:         50,
		BranchMin:        2,
		BranchMax:        3,
		TracksPerArtist:  2,
		FetchConcurrency: 3,
	}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.HopLimit <= 0 {
		o.HopLimit = d.HopLimit
	}
	if o.BranchMin <= 0 {
		o.BranchMin = d.BranchMin
	}
	if o.BranchMax < o.BranchMin {
		o.BranchMax = max(d.BranchMax, o.BranchMin)
	}
	if o.TracksPerArtist <= 0 {
		o.TracksPerArtist = d.TracksPerArtist
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = d.FetchConcurrency
	}
	return o
}

// Hop describes one expansion of a crawl.
type Hop struct {
	Number    int                     // 1-based hop within the crawl
	From      models.ArtistRef        // Expanded artist
	Fresh     int                     // Unvisited neighbours found
	Sampled   []models.ArtistRef      // Neighbours whose tracks were taken
	Accepted  []models.TrackCandidate // Tracks collected at this hop
	Collected int                     // Tracks collected by the crawl so far
}

// CrawlResult is the outcome of one crawl.
type CrawlResult struct {
	Seed           models.ArtistRef
	Found          bool                    // Seed resolved in the catalog
	State          State                   // DeadEnd or Satisfied
	Tracks         []models.TrackCandidate // Newly collected, in collection order
	Hops           int
	ArtistsSampled int
}

// URIs returns the URIs of the collected tracks.
func (r *CrawlResult) URIs() []string {
	out := make([]string, len(r.Tracks))
	for i, t := range r.Tracks {
		out[i] = t.URI
	}
	return out
}

// Crawler walks the related-artist graph from a seed and collects filtered tracks into a [Session].
//
// A Crawler is used by one goroutine at a time.
type Crawler struct {
	graph  Graph
	filter FilterSpec
	opts   Options
	rng    *rand.Rand
	logger *log.Logger

	// OnHop, when set, is called after every hop.
	OnHop func(Hop)
}

// NewCrawler creates a [Crawler]. A nil rng uses the global source.
func NewCrawler(graph Graph, filter FilterSpec, rng *rand.Rand, opts Options) *Crawler {
	return &Crawler{
		graph:  graph,
		filter: filter,
		opts:   opts.normalize(),
		rng:    rng,
		logger: log.Default(),
	}
}

// SetLogger replaces the default logger.
func (c *Crawler) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Options returns the normalized options in use.
func (c *Crawler) Options() Options {
	return c.opts
}

// Crawl walks from the artist named seedName until need tracks are collected or the walk dead-ends.
//
// Catalog read failures shorten the walk; only context cancellation returns an error.
func (c *Crawler) Crawl(ctx context.Context, session *Session, seedName string, need int) (*CrawlResult, error) {
	res := &CrawlResult{State: Seeding}
	if need <= 0 {
		res.State = Satisfied
		return res, nil
	}

	seed, ok := c.resolve(ctx, session, seedName)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if !ok {
		c.logger.Debug("seed not found", "seed", seedName)
		res.State = DeadEnd
		return res, nil
	}

	res.Seed, res.Found = seed, true
	session.Visit(seed.ID)

	current := seed
	for {
		if res.Hops >= c.opts.HopLimit {
			c.logger.Debug("hop limit reached", "seed", seed.Name, "hops", res.Hops)
			res.State = DeadEnd
			return res, nil
		}

		res.State = Expanding
		res.Hops++
		fresh := c.expand(ctx, session, current)
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(fresh) == 0 {
			c.logger.Debug("dead end", "seed", seed.Name, "artist", current.Name, "hops", res.Hops)
			res.State = DeadEnd
			return res, nil
		}

		res.State = Sampling
		branch := c.opts.BranchMin + intN(c.rng, c.opts.BranchMax-c.opts.BranchMin+1)
		picks := Pick(c.rng, fresh, branch)

		sampled, accepted, err := c.sample(ctx, session, picks, need-len(res.Tracks))
		if err != nil {
			return res, err
		}
		res.Tracks = append(res.Tracks, accepted...)
		res.ArtistsSampled += len(sampled)

		c.logger.Debug("hop",
			"seed", seed.Name, "artist", current.Name, "hop", res.Hops,
			"fresh", len(fresh), "sampled", len(sampled), "accepted", len(accepted), "collected", len(res.Tracks))

		if c.OnHop != nil {
			c.OnHop(Hop{
				Number:    res.Hops,
				From:      current,
				Fresh:     len(fresh),
				Sampled:   sampled,
				Accepted:  accepted,
				Collected: len(res.Tracks),
			})
		}

		if len(res.Tracks) >= need {
			res.State = Satisfied
			return res, nil
		}

		current = sampled[intN(c.rng, len(sampled))]
	}
}

// resolve looks up the seed once per session.
func (c *Crawler) resolve(ctx context.Context, session *Session, name string) (models.ArtistRef, bool) {
	if a, ok := session.seed(name); ok {
		return a, true
	}

	a, ok := c.graph.FindArtistByName(ctx, name)
	if !ok || a.ID == "" {
		return models.ArtistRef{}, false
	}
	session.setSeed(name, a)
	return a, true
}

// expand returns the unvisited neighbours of artist. Each artist's neighbours are fetched at most once per session.
func (c *Crawler) expand(ctx context.Context, session *Session, artist models.ArtistRef) []models.ArtistRef {
	related, ok := session.relatedOf(artist.ID)
	if !ok {
		related = c.graph.RelatedArtists(ctx, artist.ID)
		if ctx.Err() != nil {
			return nil
		}
		session.setRelated(artist.ID, related)
	}

	seen := make(map[string]struct{}, len(related))
	fresh := make([]models.ArtistRef, 0, len(related))
	for _, a := range related {
		if a.ID == "" || session.IsVisited(a.ID) {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		fresh = append(fresh, a)
	}
	return fresh
}

// sample visits picks in order, accepting tracks until remaining is reached.
//
// It returns the artists actually visited and the tracks collected from them.
func (c *Crawler) sample(ctx context.Context, session *Session, picks []models.ArtistRef, remaining int) ([]models.ArtistRef, []models.TrackCandidate, error) {
	if c.opts.ParallelFetch && len(picks) > 1 {
		return c.sampleParallel(ctx, session, picks, remaining)
	}

	var (
		sampled  []models.ArtistRef
		accepted []models.TrackCandidate
	)
	for _, a := range picks {
		if len(accepted) >= remaining {
			break
		}

		session.Visit(a.ID)
		sampled = append(sampled, a)

		tracks := c.graph.TopTracks(ctx, a.ID)
		if err := ctx.Err(); err != nil {
			return sampled, accepted, err
		}
		accepted = append(accepted, c.accept(session, tracks, remaining-len(accepted))...)
	}
	return sampled, accepted, nil
}

// sampleParallel fetches every pick's top tracks concurrently, then accepts them in pick order.
func (c *Crawler) sampleParallel(ctx context.Context, session *Session, picks []models.ArtistRef, remaining int) ([]models.ArtistRef, []models.TrackCandidate, error) {
	for _, a := range picks {
		session.Visit(a.ID)
	}

	results := make([][]models.TrackCandidate, len(picks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.FetchConcurrency)
	for i, a := range picks {
		g.Go(func() error {
			results[i] = c.graph.TopTracks(gctx, a.ID)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return picks, nil, err
	}

	var accepted []models.TrackCandidate
	for _, tracks := range results {
		if len(accepted) >= remaining {
			break
		}
		accepted = append(accepted, c.accept(session, tracks, remaining-len(accepted))...)
	}
	return picks, accepted, nil
}

// accept shuffles tracks and collects up to TracksPerArtist (and at most remaining) that pass the filter.
func (c *Crawler) accept(session *Session, tracks []models.TrackCandidate, remaining int) []models.TrackCandidate {
	limit := min(c.opts.TracksPerArtist, remaining)
	if limit <= 0 || len(tracks) == 0 {
		return nil
	}

	shuffled := slices.Clone(tracks)
	Shuffle(c.rng, shuffled)

	var out []models.TrackCandidate
	for _, t := range shuffled {
		if len(out) >= limit {
			break
		}
		if !c.filter.Accepts(t) {
			continue
		}
		if !session.Collect(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
