package deflick

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Source yields input frames by sequence index. Frames must share one
// resolution and channel count; a Source that cannot produce a frame returns
// an error which the scheduler reports as a DataError naming the index.
type Source interface {
	Len() int
	Frame(ctx context.Context, index int) (*Frame, error)
}

// Sink receives blended frames in strictly increasing index order. Writes
// must be durable before they return: the scheduler commits the checkpoint
// for a batch only after every frame of the batch has been written.
type Sink interface {
	Write(ctx context.Context, index int, frame *Frame) error
}

// Options is the flat configuration surface of a run.
type Options struct {
	// Mode selects the memory/quality/time tradeoff profile.
	Mode Mode

	// WindowSize is the number of neighboring frames blended into each
	// output frame.
	WindowSize int

	// BatchSize is the number of frames processed between checkpoint
	// commits. It directly bounds the resident frame memory.
	BatchSize int

	// Iterations overrides the mode's search iteration count when positive.
	Iterations int

	// MinimumPatchSize overrides the mode's patch size when positive. Must
	// be odd.
	MinimumPatchSize int

	// GuideWeight is the cost scale of the default weighting function.
	// Zero means DefaultGuideWeight.
	GuideWeight float64

	// Weight replaces the default cost/distance weighting when non-nil.
	Weight WeightFunc

	// Seed drives the random probe phase of the correspondence search.
	Seed int64

	// Workers bounds the row-level parallelism of the search. Zero means
	// one per CPU.
	Workers int

	// MemoryLimitMB caps the estimated resident frame memory. Zero means
	// unlimited.
	MemoryLimitMB int

	// OnBatch, when non-nil, is called after each batch commit with the
	// number of committed batches and the total.
	OnBatch func(committed, total int)
}

// Validate checks every option that must be rejected before a run starts.
func (o *Options) Validate() error {
	var result *multierror.Error

	if _, err := ParseMode(string(o.Mode)); err != nil {
		result = multierror.Append(result, err)
	}

	if o.WindowSize < 1 {
		result = multierror.Append(result, configErrorf("window size must be positive, got %d", o.WindowSize))
	}

	if o.BatchSize < 1 {
		result = multierror.Append(result, configErrorf("batch size must be positive, got %d", o.BatchSize))
	}

	if o.Iterations < 0 {
		result = multierror.Append(result, configErrorf("iteration count must be positive, got %d", o.Iterations))
	}

	if o.MinimumPatchSize < 0 || (o.MinimumPatchSize != 0 && o.MinimumPatchSize%2 == 0) {
		result = multierror.Append(result, configErrorf("minimum patch size must be a positive odd integer, got %d", o.MinimumPatchSize))
	}

	if o.GuideWeight < 0 {
		result = multierror.Append(result, configErrorf("guide weight must not be negative, got %g", o.GuideWeight))
	}

	if o.MemoryLimitMB < 0 {
		result = multierror.Append(result, configErrorf("memory limit must not be negative, got %d", o.MemoryLimitMB))
	}

	return result.ErrorOrNil()
}

// State is the scheduler's position in its batch state machine.
type State int

const (
	StateNotStarted State = iota
	StateBatchInFlight
	StateBatchCommitted
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateBatchInFlight:
		return "batch_in_flight"
	case StateBatchCommitted:
		return "batch_committed"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Status is a point-in-time snapshot of a run's progress.
type Status struct {
	RunID        string `json:"runId"`
	State        string `json:"state"`
	Batch        int    `json:"batch"`
	BatchesDone  int    `json:"batchesDone"`
	TotalBatches int    `json:"totalBatches"`
	FramesDone   int64  `json:"framesDone"`
}

// Scheduler partitions a frame sequence into batches, drives the
// correspondence search and blending for each, and commits a checkpoint
// after every batch so an interrupted run resumes from the last committed
// batch. Batches execute strictly one at a time; a Scheduler runs one
// sequence at a time.
type Scheduler struct {
	opts   Options
	store  Store
	logger *logrus.Entry
	runID  string

	mu           sync.Mutex
	state        State
	batch        int
	totalBatches int

	batchesDone *atomic.Int64
	framesDone  *atomic.Int64

	width    int
	height   int
	channels int
}

// NewScheduler validates the options and prepares a run. The store holds the
// durable checkpoint state; it is opened by the caller and committed to once
// per batch.
func NewScheduler(opts Options, store Store, logger *logrus.Entry) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if store == nil {
		return nil, configErrorf("checkpoint store is required")
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	runID := uuid.NewString()
	return &Scheduler{
		opts:        opts,
		store:       store,
		logger:      logger.WithField("runID", runID),
		runID:       runID,
		batch:       -1,
		batchesDone: atomic.NewInt64(0),
		framesDone:  atomic.NewInt64(0),
	}, nil
}

// Status can be read concurrently with Run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		RunID:        s.runID,
		State:        s.state.String(),
		Batch:        s.batch,
		BatchesDone:  int(s.batchesDone.Load()),
		TotalBatches: s.totalBatches,
		FramesDone:   s.framesDone.Load(),
	}
}

func (s *Scheduler) setState(state State, batch int) {
	s.mu.Lock()
	s.state = state
	s.batch = batch
	s.mu.Unlock()
}

// Run processes the whole sequence. On failure the returned error wraps the
// failing batch index; the last committed checkpoint is left intact so the
// next Run with the same configuration resumes after it.
func (s *Scheduler) Run(ctx context.Context, src Source, sink Sink) error {
	n := src.Len()
	if n == 0 {
		s.setState(StateComplete, -1)
		return nil
	}

	first, err := src.Frame(ctx, 0)
	if err != nil {
		return &DataError{Frame: 0, Msg: "loading frame", Cause: err}
	}
	s.width, s.height, s.channels = first.Width, first.Height, first.Channels

	params, err := ModeParams(s.opts.Mode, first.Width, first.Height)
	if err != nil {
		return err
	}
	if s.opts.Iterations > 0 {
		params.Iterations = s.opts.Iterations
	}
	if s.opts.MinimumPatchSize > 0 {
		params.PatchSize = s.opts.MinimumPatchSize
	}

	if first.Width < params.PatchSize || first.Height < params.PatchSize {
		return configErrorf("frames are %dx%d, smaller than one %dx%d patch",
			first.Width, first.Height, params.PatchSize, params.PatchSize)
	}

	searcher, err := NewSearcher(SearchConfig{
		PatchSize:  params.PatchSize,
		Iterations: params.Iterations,
		Workers:    s.opts.Workers,
		Seed:       s.opts.Seed,
	})
	if err != nil {
		return err
	}

	weight := s.opts.Weight
	if weight == nil {
		weight = DefaultWeight(s.opts.GuideWeight)
	}
	blender := NewBlender(weight)

	total := (n + s.opts.BatchSize - 1) / s.opts.BatchSize
	fp := s.fingerprint(first, n, params)

	start := 0
	if cp, ok, err := s.store.Load(fp); err != nil {
		s.logger.Warn("Failed to load checkpoint, starting from batch 0: ", err)
	} else if ok {
		start = cp.LastBatch + 1
		s.logger.WithField("lastBatch", cp.LastBatch).Info("Resuming from checkpoint")
	}

	s.mu.Lock()
	s.totalBatches = total
	s.mu.Unlock()
	s.batchesDone.Store(int64(start))

	if err := s.checkMemoryBudget(first, n, params, start); err != nil {
		s.setState(StateFailed, start)
		return err
	}

	cache := newFrameCache(src)
	cache.put(0, first)
	if params.PreloadAll {
		for i := 1; i < n; i++ {
			if _, err := s.loadFrame(ctx, cache, i); err != nil {
				s.setState(StateFailed, start)
				return &BatchError{Batch: start, Err: err}
			}
		}
	}

	for b := start; b < total; b++ {
		s.setState(StateBatchInFlight, b)
		s.logger.WithField("batch", b).WithField("total", total).Debug("Batch in flight")

		if err := s.runBatch(ctx, b, n, params, searcher, blender, cache, sink); err != nil {
			s.setState(StateFailed, b)
			return &BatchError{Batch: b, Err: err}
		}

		if err := s.store.Commit(Checkpoint{
			Fingerprint: fp,
			LastBatch:   b,
			Mode:        string(s.opts.Mode),
			UpdatedAt:   time.Now().UTC(),
		}); err != nil {
			s.setState(StateFailed, b)
			return &BatchError{Batch: b, Err: fmt.Errorf("committing checkpoint: %w", err)}
		}

		s.batchesDone.Inc()
		s.setState(StateBatchCommitted, b)
		if s.opts.OnBatch != nil {
			s.opts.OnBatch(b+1, total)
		}

		if !params.PreloadAll && b+1 < total {
			// Keep only the frames the next batch's windows can touch.
			lo := (b + 1) * s.opts.BatchSize
			hi := lo + s.opts.BatchSize - 1
			cache.evictOutside(lo-s.opts.WindowSize, hi+s.opts.WindowSize)
		}
	}

	s.setState(StateComplete, total-1)
	if err := s.store.Clear(fp); err != nil {
		s.logger.Warn("Failed to clear checkpoint after completion: ", err)
	}

	s.logger.WithField("frames", n).Info("Sequence complete")
	return nil
}

// runBatch computes and durably writes every frame of batch b. Nothing is
// written until the whole batch has been blended, so an interrupted batch
// leaves no partial output behind.
func (s *Scheduler) runBatch(ctx context.Context, b, n int, params Params, searcher *Searcher, blender *Blender, cache *frameCache, sink Sink) error {
	lo := b * s.opts.BatchSize
	hi := lo + s.opts.BatchSize
	if hi > n {
		hi = n
	}

	blended := make([]*Frame, 0, hi-lo)
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := s.loadFrame(ctx, cache, i)
		if err != nil {
			return err
		}

		contribs := make([]Contribution, 0, s.opts.WindowSize)
		for _, j := range Window(i, s.opts.WindowSize, n) {
			if err := ctx.Err(); err != nil {
				return err
			}

			if j == i {
				contribs = append(contribs, Contribution{
					Frame: target,
					Field: IdentityField(target.Width, target.Height),
				})
				continue
			}

			ref, err := s.loadFrame(ctx, cache, j)
			if err != nil {
				return err
			}

			field, err := searcher.Search(target, ref, nil)
			if err != nil {
				return err
			}
			for p := 0; p < params.RefinePasses; p++ {
				field, err = searcher.Search(target, ref, field)
				if err != nil {
					return err
				}
			}

			contribs = append(contribs, Contribution{Frame: ref, Field: field, Distance: j - i})
		}

		out, err := blender.Blend(target, contribs)
		if err != nil {
			return &DataError{Frame: i, Msg: "blending", Cause: err}
		}

		blended = append(blended, out)
		s.framesDone.Inc()
	}

	for k, frame := range blended {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Write(ctx, lo+k, frame); err != nil {
			return fmt.Errorf("writing frame %d: %w", lo+k, err)
		}
	}

	return nil
}

func (s *Scheduler) loadFrame(ctx context.Context, cache *frameCache, i int) (*Frame, error) {
	f, err := cache.get(ctx, i)
	if err != nil {
		return nil, &DataError{Frame: i, Msg: "loading frame", Cause: err}
	}

	if f.Width != s.width || f.Height != s.height || f.Channels != s.channels {
		return nil, &DataError{
			Frame: i,
			Msg: fmt.Sprintf("dimensions %dx%dx%d do not match sequence %dx%dx%d",
				f.Width, f.Height, f.Channels, s.width, s.height, s.channels),
		}
	}

	return f, nil
}

// checkMemoryBudget rejects a run whose resident frames would exceed the
// configured limit before the first batch goes in flight.
func (s *Scheduler) checkMemoryBudget(first *Frame, n int, params Params, batch int) error {
	if s.opts.MemoryLimitMB <= 0 {
		return nil
	}

	resident := s.opts.BatchSize + 2*s.opts.WindowSize
	if params.PreloadAll || resident > n {
		resident = n
	}

	frameBytes := int64(first.Width) * int64(first.Height) * int64(first.Channels) * 4
	needed := int64(resident) * frameBytes
	limit := int64(s.opts.MemoryLimitMB) * 1024 * 1024
	if needed > limit {
		return &ResourceError{Batch: batch, NeededBytes: needed, LimitBytes: limit}
	}

	return nil
}

// fingerprint hashes every option that affects output bytes. Resuming under
// any other configuration gets a different fingerprint and therefore starts
// from batch zero.
func (s *Scheduler) fingerprint(first *Frame, n int, params Params) string {
	h := sha256.New()
	fmt.Fprintf(h, "mode=%s;window=%d;batch=%d;iter=%d;refine=%d;patch=%d;guide=%g;seed=%d;w=%d;h=%d;c=%d;frames=%d",
		s.opts.Mode, s.opts.WindowSize, s.opts.BatchSize, params.Iterations, params.RefinePasses,
		params.PatchSize, s.opts.GuideWeight, s.opts.Seed, first.Width, first.Height, first.Channels, n)
	return hex.EncodeToString(h.Sum(nil))
}

// frameCache hands out source frames and implements the per-mode memory
// strategy: either the whole sequence stays resident or frames are evicted
// once no upcoming window can reach them.
type frameCache struct {
	src    Source
	frames map[int]*Frame
}

func newFrameCache(src Source) *frameCache {
	return &frameCache{
		src:    src,
		frames: make(map[int]*Frame),
	}
}

func (c *frameCache) put(i int, f *Frame) {
	c.frames[i] = f
}

func (c *frameCache) get(ctx context.Context, i int) (*Frame, error) {
	if f, ok := c.frames[i]; ok {
		return f, nil
	}

	f, err := c.src.Frame(ctx, i)
	if err != nil {
		return nil, err
	}

	c.frames[i] = f
	return f, nil
}

func (c *frameCache) evictOutside(lo, hi int) {
	for i := range c.frames {
		if i < lo || i > hi {
			delete(c.frames, i)
		}
	}
}
