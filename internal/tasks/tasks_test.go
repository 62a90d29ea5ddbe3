package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crawlmix/internal/discovery"
	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
	tu "github.com/desertthunder/crawlmix/internal/testing"
)

func newTestEngine(catalog *tu.FakeCatalog, opts EngineOpts) *DiscoveryEngine {
	opts.Logger = log.New(io.Discard)
	opts.Rand = func() *rand.Rand { return rand.New(rand.NewPCG(3, 5)) }
	return NewDiscoveryEngine(catalog, opts)
}

func baseRequest(size int, seeds ...string) Request {
	return Request{
		Size:          size,
		YearFrom:      1995,
		YearTo:        2008,
		MinPopularity: 0,
		MaxPopularity: 100,
		Seeds:         seeds,
	}
}

// meshGraph builds hub -> n artists that are all related to each other, each with k tracks from 2001.
func meshGraph(fc *tu.FakeCatalog, hub string, n, k int) {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s-M%d", hub, i+1)
	}
	fc.Relate(hub, names...)

	for i, name := range names {
		others := slices.Concat(names[:i], names[i+1:])
		fc.Relate(name, others...)

		tracks := make([]models.TrackCandidate, k)
		for j := range tracks {
			tracks[j] = tu.Track(fmt.Sprintf("%s-%d", name, j+1), 2001, 40)
		}
		fc.SetTracks(name, tracks...)
	}
}

type fakeRecorder struct {
	runs []*models.Run
	err  error
}

func (f *fakeRecorder) Create(run *models.Run) error {
	if f.err != nil {
		return f.err
	}
	run.SetID(fmt.Sprintf("run-%d", len(f.runs)+1))
	f.runs = append(f.runs, run)
	return nil
}

func TestRequest(t *testing.T) {
	t.Run("PlaylistSpec", func(t *testing.T) {
		req := baseRequest(10, "A")
		req.MinPopularity, req.MaxPopularity = 5, 60

		spec := req.PlaylistSpec()
		if spec.Name != "Nu Metal Discovery Mix (1995–2008)" {
			t.Errorf("unexpected name %q", spec.Name)
		}
		if spec.Description != "Auto-generated via related-artist crawl. Popularity 5–60." {
			t.Errorf("unexpected description %q", spec.Description)
		}
		if spec.Public {
			t.Error("playlist should be private by default")
		}

		req.PlaylistName = "Late Nineties"
		if got := req.PlaylistSpec().Name; got != "Late Nineties (1995–2008)" {
			t.Errorf("unexpected custom name %q", got)
		}
	})
}

func TestDiscoveryEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid requests fail before any catalog call", func(t *testing.T) {
		tc := []struct {
			name string
			req  Request
		}{
			{"zero size", baseRequest(0, "A")},
			{"negative size", baseRequest(-3, "A")},
			{"inverted years", Request{Size: 10, YearFrom: 2008, YearTo: 1995, MaxPopularity: 100, Seeds: []string{"A"}}},
			{"inverted popularity", Request{Size: 10, YearFrom: 1995, YearTo: 2008, MinPopularity: 70, MaxPopularity: 30, Seeds: []string{"A"}}},
			{"no seeds", baseRequest(10)},
			{"blank seeds", baseRequest(10, " ", "")},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				fc := tu.NewFakeCatalog()
				_, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, tt.req, nil)
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				if fc.TotalCalls() != 0 {
					t.Errorf("expected no catalog calls, got %d", fc.TotalCalls())
				}
			})
		}
	})

	t.Run("auth failure aborts before crawling", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		fc.UserErr = errors.New("401 unauthorized")
		meshGraph(fc, "Hub", 5, 3)

		_, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, baseRequest(5, "Hub"), nil)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if fc.Calls("search") != 0 {
			t.Error("crawl should not start without a user")
		}
	})

	t.Run("dead seed advances to the next seed", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		fc.AddArtist("A")
		meshGraph(fc, "B", 6, 3)

		result, err := newTestEngine(fc, EngineOpts{WaveCap: 2}).Generate(ctx, baseRequest(4, "A", "B"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Tracks) != 4 {
			t.Errorf("expected 4 tracks, got %d", len(result.Tracks))
		}
		if fc.Calls("search:A") == 0 || fc.Calls("search:B") == 0 {
			t.Error("expected both seeds to be crawled")
		}
		if fc.Calls("related:"+tu.ArtistID("A")) != 1 {
			t.Errorf("expected A to be expanded once, got %d", fc.Calls("related:"+tu.ArtistID("A")))
		}
	})

	t.Run("scarce graph returns a partial result", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		fc.Relate("S", "X1", "X2", "X3")
		for _, name := range []string{"X1", "X2", "X3"} {
			fc.SetTracks(name,
				tu.Track(name+"-a", 2000, 50),
				tu.Track(name+"-b", 2003, 20),
				tu.Track(name+"-old", 1980, 50),
				tu.Track(name+"-undated", 0, 50),
			)
		}

		result, err := newTestEngine(fc, EngineOpts{MaxIterations: 20}).Generate(ctx, baseRequest(10, "S"), nil)
		if err != nil {
			t.Fatalf("expected partial success, got %v", err)
		}
		if len(result.Tracks) != 6 {
			t.Fatalf("expected exactly 6 tracks, got %d", len(result.Tracks))
		}
		if !result.Short() {
			t.Error("result should be reported as short")
		}
		if result.Iterations > 20 {
			t.Errorf("iteration budget exceeded: %d", result.Iterations)
		}
		if result.Appended != 6 {
			t.Errorf("expected 6 tracks appended, got %d", result.Appended)
		}

		filter := baseRequest(10).Filter()
		for _, tr := range result.Tracks {
			if !filter.Accepts(tr) {
				t.Errorf("track %s violates the filter", tr.URI)
			}
		}
	})

	t.Run("no matching tracks", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		fc.Relate("S", "Old")
		fc.SetTracks("Old", tu.Track("ancient", 1970, 50))

		_, err := newTestEngine(fc, EngineOpts{MaxIterations: 10}).Generate(ctx, baseRequest(5, "S"), nil)
		if !errors.Is(err, shared.ErrNoResults) {
			t.Fatalf("expected ErrNoResults, got %v", err)
		}
		if fc.Calls("create") != 0 {
			t.Error("no playlist should be created")
		}
	})

	t.Run("max passes bounds the session", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		fc.AddArtist("A")
		fc.AddArtist("B")

		progress := make(chan ProgressUpdate, 100)
		engine := newTestEngine(fc, EngineOpts{MaxPasses: 2})
		_, err := engine.Generate(ctx, baseRequest(5, "A", "B"), progress)
		if !errors.Is(err, shared.ErrNoResults) {
			t.Fatalf("expected ErrNoResults, got %v", err)
		}
		close(progress)

		waves := 0
		for u := range progress {
			if u.Phase == SeedChosen {
				waves++
			}
		}
		if waves != 4 {
			t.Errorf("expected 2 passes over 2 seeds, got %d waves", waves)
		}
		if n := fc.Calls("search"); n != 2 {
			t.Errorf("seed lookups should be cached per session, got %d searches", n)
		}
	})

	t.Run("result is unique, ordered and capped", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 20, 5)
		meshGraph(fc, "Other", 20, 5)

		result, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, baseRequest(25, "Hub", "Other"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Tracks) != 25 {
			t.Fatalf("expected 25 tracks, got %d", len(result.Tracks))
		}

		seen := map[string]bool{}
		for _, uri := range result.URIs() {
			if seen[uri] {
				t.Errorf("duplicate uri %s", uri)
			}
			seen[uri] = true
		}

		if !slices.Equal(fc.AppendedURIs(), result.URIs()) {
			t.Error("submitted tracks must match the result in order")
		}
		if result.Playlist == nil || result.Playlist.URL == "" {
			t.Errorf("expected playlist with url, got %+v", result.Playlist)
		}
		if len(fc.Playlists) != 1 || fc.Playlists[0].Name != "Nu Metal Discovery Mix (1995–2008)" || fc.Playlists[0].Public {
			t.Errorf("unexpected playlist spec %+v", fc.Playlists)
		}
	})

	t.Run("appends in batches of 100", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 30, 10)

		opts := EngineOpts{Crawl: discovery.Options{TracksPerArtist: 10}}
		result, err := newTestEngine(fc, opts).Generate(ctx, baseRequest(250, "Hub"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var sizes []int
		for _, b := range fc.Appended {
			sizes = append(sizes, len(b))
		}
		if !slices.Equal(sizes, []int{100, 100, 50}) {
			t.Errorf("expected batches [100 100 50], got %v", sizes)
		}
		if result.Appended != 250 {
			t.Errorf("expected 250 appended, got %d", result.Appended)
		}
	})

	t.Run("first append failure leaves an observable playlist", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 10, 3)
		cause := errors.New("502 bad gateway")
		fc.AppendErr = func(batch int, uris []string) error { return cause }

		result, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, baseRequest(8, "Hub"), nil)
		if !errors.Is(err, shared.ErrTrackAppend) || !errors.Is(err, cause) {
			t.Fatalf("expected track append error wrapping the cause, got %v", err)
		}

		var appendErr *TrackAppendError
		if !errors.As(err, &appendErr) {
			t.Fatalf("expected *TrackAppendError, got %T", err)
		}
		if appendErr.Playlist == nil || appendErr.Appended != 0 || appendErr.Total != 8 {
			t.Errorf("unexpected append error %+v", appendErr)
		}
		if result == nil || result.Playlist == nil {
			t.Fatal("partial result with the playlist should be returned")
		}
		if len(fc.Playlists) != 1 {
			t.Errorf("playlist should exist, got %d", len(fc.Playlists))
		}
	})

	t.Run("later append failure reports the partial count", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 30, 10)
		fc.AppendErr = func(batch int, uris []string) error {
			if batch == 2 {
				return errors.New("rate limited")
			}
			return nil
		}

		opts := EngineOpts{Crawl: discovery.Options{TracksPerArtist: 10}}
		result, err := newTestEngine(fc, opts).Generate(ctx, baseRequest(150, "Hub"), nil)

		var appendErr *TrackAppendError
		if !errors.As(err, &appendErr) {
			t.Fatalf("expected *TrackAppendError, got %v", err)
		}
		if appendErr.Appended != 100 || result.Appended != 100 {
			t.Errorf("expected 100 appended, got %d / %d", appendErr.Appended, result.Appended)
		}
	})

	t.Run("playlist creation failure", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)
		fc.CreateErr = errors.New("403 forbidden")

		result, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, baseRequest(4, "Hub"), nil)
		if !errors.Is(err, shared.ErrPlaylistCreation) {
			t.Fatalf("expected ErrPlaylistCreation, got %v", err)
		}
		if result != nil {
			t.Error("no result expected when the playlist was not created")
		}
		if fc.Calls("append") != 0 {
			t.Error("no tracks should be appended")
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)

		req := baseRequest(4, "Hub")
		req.DryRun = true
		result, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, req, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Playlist != nil || fc.Calls("create") != 0 || fc.Calls("append") != 0 {
			t.Error("dry run must not write to the catalog")
		}
		if len(result.Tracks) != 4 || !result.DryRun {
			t.Errorf("unexpected dry run result %+v", result)
		}
	})

	t.Run("reports progress", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 8, 3)

		progress := make(chan ProgressUpdate, 1000)
		if _, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, baseRequest(6, "Hub"), progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		phases := map[Phase]int{}
		var last ProgressUpdate
		for u := range progress {
			phases[u.Phase]++
			if u.Message == "" {
				t.Errorf("update for %s has no message", u.Phase)
			}
			last = u
		}

		for _, p := range []Phase{Authenticate, SeedChosen, BranchExplored, TracksCollected, CreatePlaylist, AppendTracks, Complete} {
			if phases[p] == 0 {
				t.Errorf("expected at least one %s update", p)
			}
		}
		if last.Phase != Complete || last.Collected != 6 {
			t.Errorf("expected final complete update with 6 tracks, got %+v", last)
		}
	})

	t.Run("progress never blocks", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)

		progress := make(chan ProgressUpdate)
		if _, err := newTestEngine(fc, EngineOpts{}).Generate(ctx, baseRequest(4, "Hub"), progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("concurrent sessions are independent", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 10, 3)
		engine := newTestEngine(fc, EngineOpts{})

		var wg sync.WaitGroup
		results := make([]*Result, 4)
		errs := make([]error, 4)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := baseRequest(10, "Hub")
				req.DryRun = true
				results[i], errs[i] = engine.Generate(ctx, req, nil)
			}()
		}
		wg.Wait()

		for i, r := range results {
			if errs[i] != nil {
				t.Fatalf("session %d failed: %v", i, errs[i])
			}
			if len(r.Tracks) != 10 {
				t.Errorf("session %d collected %d tracks, expected 10", i, len(r.Tracks))
			}
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := newTestEngine(fc, EngineOpts{}).Generate(cctx, baseRequest(4, "Hub"), nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestDiscoveryEngineRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("records completed runs", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)
		rec := &fakeRecorder{}

		result, err := newTestEngine(fc, EngineOpts{Recorder: rec}).Generate(ctx, baseRequest(4, "Hub"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.runs) != 1 {
			t.Fatalf("expected 1 recorded run, got %d", len(rec.runs))
		}

		run := rec.runs[0]
		if run.Status() != models.RunCompleted || run.Collected() != 4 || run.PlaylistID() != result.Playlist.ID {
			t.Errorf("unexpected run status=%s collected=%d playlist=%s", run.Status(), run.Collected(), run.PlaylistID())
		}
		if result.RunID != run.ID() {
			t.Errorf("expected result to carry run id %s, got %s", run.ID(), result.RunID)
		}
	})

	t.Run("records partial and failed runs", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)
		fc.AppendErr = func(int, []string) error { return errors.New("boom") }
		rec := &fakeRecorder{}

		engine := newTestEngine(fc, EngineOpts{Recorder: rec})
		engine.Generate(ctx, baseRequest(4, "Hub"), nil)
		engine.Generate(ctx, baseRequest(4, "Nobody"), nil)

		if len(rec.runs) != 2 {
			t.Fatalf("expected 2 recorded runs, got %d", len(rec.runs))
		}
		if rec.runs[0].Status() != models.RunPartial || rec.runs[0].Error() == "" {
			t.Errorf("expected partial run with error, got %s", rec.runs[0].Status())
		}
		if rec.runs[1].Status() != models.RunFailed {
			t.Errorf("expected failed run, got %s", rec.runs[1].Status())
		}
	})

	t.Run("recorder errors are ignored", func(t *testing.T) {
		fc := tu.NewFakeCatalog()
		meshGraph(fc, "Hub", 5, 3)
		rec := &fakeRecorder{err: errors.New("disk full")}

		result, err := newTestEngine(fc, EngineOpts{Recorder: rec}).Generate(ctx, baseRequest(4, "Hub"), nil)
		if err != nil {
			t.Fatalf("recording failure must not fail the session: %v", err)
		}
		if result.RunID != "" {
			t.Errorf("expected no run id, got %s", result.RunID)
		}
	})
}
