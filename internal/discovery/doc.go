// Package discovery implements the related-artist crawl that collects playlist candidates.
//
// A [Crawler] walks the artist graph exposed by a [Graph] from one seed artist. At each hop it
// samples two or three fresh neighbours with [Pick], takes up to two of their top tracks that
// pass the [FilterSpec], and moves on to one of the sampled artists. A crawl ends Satisfied when
// its quota is met and DeadEnd when the walk runs out of fresh neighbours or hits the hop limit.
//
// All crawls of one playlist request share a [Session], which holds the visited artist ids and
// the ordered, deduplicated set of collected tracks. A session is never shared between requests.
package discovery
