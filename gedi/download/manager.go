// Package download runs the granule pipeline: enumerate candidate granules,
// screen their footprints against granule constraints, fetch the survivors
// concurrently, decode them, and filter individual shots. Granule content
// stays in memory from fetch to filter; nothing is written to disk.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-gedi/gedi"
	"github.com/example/go-gedi/gedi/constraint"
	"github.com/example/go-gedi/gedi/model"
	"github.com/example/go-gedi/gedi/sphere"
)

const defaultConcurrency = 4

// Fetcher retrieves remote content into memory. *gedi.Client implements it.
type Fetcher interface {
	FetchInMemory(ctx context.Context, url string) ([]byte, error)
}

// GranuleSource yields candidate granules. *gedi.GranuleIterator implements
// it. Sources are consumed from a single goroutine.
type GranuleSource interface {
	Next(ctx context.Context) bool
	Granule() model.Granule
	Err() error
}

// SliceSource adapts a fixed granule list to the GranuleSource interface.
type SliceSource struct {
	granules []model.Granule
	idx      int
}

// NewSliceSource returns a source over the given granules.
func NewSliceSource(granules []model.Granule) *SliceSource {
	return &SliceSource{granules: granules, idx: -1}
}

func (s *SliceSource) Next(context.Context) bool {
	if s.idx+1 >= len(s.granules) {
		return false
	}
	s.idx++
	return true
}

func (s *SliceSource) Granule() model.Granule { return s.granules[s.idx] }

func (s *SliceSource) Err() error { return nil }

// Decoder turns raw granule content into a shot table.
type Decoder interface {
	Decode(granuleID string, data []byte) (model.Table, error)
}

// CSVDecoder decodes granules distributed as CSV subsets.
type CSVDecoder struct{}

// Decode implements Decoder.
func (CSVDecoder) Decode(granuleID string, data []byte) (model.Table, error) {
	return model.DecodeCSV(granuleID, bytes.NewReader(data))
}

// FootprintParser extracts a granule's bounding polygon from its metadata
// document.
type FootprintParser func(data []byte) (*sphere.Boundary, error)

// Config controls how the pipeline executes.
type Config struct {
	// Concurrency bounds the number of granules processed at once.
	// Defaults to 4; the data pool throttles aggressive clients.
	Concurrency int
	// FetchTimeout, when positive, bounds each individual fetch on top of
	// any timeout the fetcher itself applies.
	FetchTimeout time.Duration
	// Decoder turns granule bytes into shots. Defaults to CSVDecoder.
	Decoder Decoder
	// Footprints parses metadata documents. Defaults to gedi.ParseFootprint.
	Footprints FootprintParser
	// Logger receives per-granule progress at debug level and a run summary
	// at info level. Defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics, when set, is updated as granules move through the pipeline.
	Metrics *Metrics
}

// Pipeline stages, recorded on per-granule failures.
const (
	StageMetadata = "metadata"
	StageData     = "data"
	StageDecode   = "decode"
	StageMerge    = "merge"
)

// Failure records why a single granule produced no shots. Failures never
// abort a run; the remaining granules are still processed.
type Failure struct {
	Stage string
	Err   error
}

// Stats summarizes a pipeline run.
type Stats struct {
	// Candidates is the number of granules the source yielded.
	Candidates int
	// Skipped counts granules rejected by the granule constraint, whose
	// content was therefore never fetched.
	Skipped int
	// Fetched counts granules whose content was retrieved and decoded.
	Fetched int
	// Failed counts granules recorded in Failures.
	Failed int
	// ShotsRetained is the number of rows in the merged table.
	ShotsRetained int
}

// Result is the outcome of a pipeline run: the merged shot table plus a
// manifest of per-granule failures.
type Result struct {
	Table    model.Table
	Stats    Stats
	Failures map[string]Failure
}

// Manager executes pipeline runs against a fetcher.
type Manager struct {
	fetcher Fetcher
	cfg     Config
}

// NewManager validates the configuration up front so misconfiguration
// surfaces before any network traffic.
func NewManager(fetcher Fetcher, cfg Config) (*Manager, error) {
	if fetcher == nil {
		return nil, errors.New("download: fetcher is required")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("download: concurrency must not be negative, got %d", cfg.Concurrency)
	}
	if cfg.FetchTimeout < 0 {
		return nil, fmt.Errorf("download: fetch timeout must not be negative, got %v", cfg.FetchTimeout)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Decoder == nil {
		cfg.Decoder = CSVDecoder{}
	}
	if cfg.Footprints == nil {
		cfg.Footprints = gedi.ParseFootprint
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{fetcher: fetcher, cfg: cfg}, nil
}

type outcome struct {
	idx     int
	id      string
	table   model.Table
	decoded bool
	skipped bool
	failure *Failure
}

// Run drains the source and processes every granule. A nil granule
// constraint admits all granules and skips the metadata fetch entirely.
// Shot constraints are applied in order after decoding. Per-granule
// failures are collected in the result; only source errors and context
// cancellation abort the run.
func (m *Manager) Run(ctx context.Context, src GranuleSource, gc constraint.GranuleConstraint, shots []constraint.ShotConstraint) (*Result, error) {
	if src == nil {
		return nil, errors.New("download: granule source is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, m.cfg.Concurrency)

	var (
		mu       sync.Mutex
		outcomes []outcome
	)

	idx := 0
	for src.Next(gctx) {
		i, granule := idx, src.Granule()
		idx++
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			out := m.process(gctx, i, granule, gc, shots)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("download: enumerate granules: %w", err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].idx < outcomes[j].idx })

	result := &Result{Failures: make(map[string]Failure)}
	result.Stats.Candidates = len(outcomes)
	for _, out := range outcomes {
		switch {
		case out.failure != nil:
			result.Stats.Failed++
			result.Failures[out.id] = *out.failure
		case out.skipped:
			result.Stats.Skipped++
		}
		if out.decoded {
			result.Stats.Fetched++
		}
		if out.table.Len() == 0 {
			continue
		}
		if result.Table.Columns == nil {
			result.Table = out.table
			continue
		}
		if err := result.Table.Merge(out.table); err != nil {
			result.Stats.Failed++
			result.Failures[out.id] = Failure{Stage: StageMerge, Err: err}
			m.cfg.Metrics.granuleFailed()
		}
	}
	result.Stats.ShotsRetained = result.Table.Len()

	m.cfg.Logger.Info("pipeline run complete",
		zap.Int("candidates", result.Stats.Candidates),
		zap.Int("skipped", result.Stats.Skipped),
		zap.Int("fetched", result.Stats.Fetched),
		zap.Int("failed", result.Stats.Failed),
		zap.Int("shots", result.Stats.ShotsRetained))
	return result, nil
}

func (m *Manager) fetch(ctx context.Context, url string) ([]byte, error) {
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()
	}
	return m.fetcher.FetchInMemory(ctx, url)
}

// process runs one granule through the pipeline stages.
func (m *Manager) process(ctx context.Context, idx int, granule model.Granule, gc constraint.GranuleConstraint, shots []constraint.ShotConstraint) outcome {
	out := outcome{idx: idx, id: granule.ID}
	log := m.cfg.Logger.With(zap.String("granule", granule.ID))
	m.cfg.Metrics.granuleEvaluated()

	if gc != nil {
		meta, err := m.fetch(ctx, granule.MetadataURL)
		if err != nil {
			log.Debug("metadata fetch failed", zap.Error(err))
			out.failure = &Failure{Stage: StageMetadata, Err: err}
			m.cfg.Metrics.granuleFailed()
			return out
		}
		footprint, err := m.cfg.Footprints(meta)
		if err != nil {
			log.Debug("footprint parse failed", zap.Error(err))
			out.failure = &Failure{Stage: StageMetadata, Err: err}
			m.cfg.Metrics.granuleFailed()
			return out
		}
		if !gc.Evaluate(footprint) {
			log.Debug("granule skipped by constraint")
			out.skipped = true
			m.cfg.Metrics.granuleSkipped()
			return out
		}
	}

	data, err := m.fetch(ctx, granule.DataURL)
	if err != nil {
		log.Debug("data fetch failed", zap.Error(err))
		out.failure = &Failure{Stage: StageData, Err: err}
		m.cfg.Metrics.granuleFailed()
		return out
	}
	table, err := m.cfg.Decoder.Decode(granule.ID, data)
	if err != nil {
		log.Debug("decode failed", zap.Error(err))
		out.failure = &Failure{Stage: StageDecode, Err: err}
		m.cfg.Metrics.granuleFailed()
		return out
	}
	out.decoded = true
	m.cfg.Metrics.granuleFetched()

	decoded := table.Len()
	for _, sc := range shots {
		table = constraint.Filter(table, sc)
	}
	out.table = table
	m.cfg.Metrics.shotsRetained(table.Len())
	log.Debug("granule processed",
		zap.Int("shots_decoded", decoded),
		zap.Int("shots_retained", table.Len()))
	return out
}
