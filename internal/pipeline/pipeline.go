// Package pipeline runs one batch end to end: parse, extract, annotate and
// classify every input on a bounded worker pool, then dedup and export the
// golden table once every sample has finished.
package pipeline

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/space-cli/internal/classify"
	"github.com/sells-group/space-cli/internal/config"
	"github.com/sells-group/space-cli/internal/export"
	"github.com/sells-group/space-cli/internal/extract"
	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/parser"
	"github.com/sells-group/space-cli/internal/resilience"
	"github.com/sells-group/space-cli/internal/store"
	"github.com/sells-group/space-cli/internal/track"
)

// ClassifiedDir is the directory under the output dir that receives one
// classified document per sample.
const ClassifiedDir = "classified"

// Pipeline orchestrates a run.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	annotators track.Annotators
	extractor  *extract.Extractor
	classifier *classify.Classifier
	metrics    *Metrics
	s3         export.ObjectPutter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore records runs, phases and (for the store sink) golden rows.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithAnnotators replaces the annotators built from the track config.
func WithAnnotators(a track.Annotators) Option {
	return func(p *Pipeline) { p.annotators = a }
}

// WithObjectPutter supplies the S3 client used by the s3 sink.
func WithObjectPutter(c export.ObjectPutter) Option {
	return func(p *Pipeline) { p.s3 = c }
}

// New creates a Pipeline. Track documents are read from
// pipeline.track_dir, falling back to pipeline.input_dir.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:        cfg,
		extractor:  extract.New(),
		classifier: classify.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.annotators == nil {
		trackDir := cfg.Pipeline.TrackDir
		if trackDir == "" {
			trackDir = cfg.Pipeline.InputDir
		}
		anns, err := BuildAnnotators(cfg.Tracks, trackDir)
		if err != nil {
			return nil, err
		}
		p.annotators = anns
	}
	return p, nil
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Summary  *model.Summary
	Records  []model.ClassifiedRecord
	Phases   []model.PhaseResult
	Location string
}

type sampleJob struct {
	index    int
	sampleID string
	path     string
}

type slot struct {
	rec    *model.ClassifiedRecord
	reject *model.RejectedRecord
}

// runState carries per-run bookkeeping shared by the phases.
type runState struct {
	runID   string
	store   store.Store
	metrics *Metrics
	log     *zap.Logger

	mu     sync.Mutex
	phases []model.PhaseResult
}

// Run processes every supported file under pipeline.input_dir. Sample-level
// failures are rejected and the run continues; an export failure or
// cancellation fails the run without leaving a partial table.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	return p.execute(ctx, p.runInput(p.cfg.Pipeline.InputDir), p.run)
}

// Reexport loads the classified documents in dir and exports them as a new
// run. Documents that fail to decode are rejected as malformed.
func (p *Pipeline) Reexport(ctx context.Context, dir string) (*Result, error) {
	return p.execute(ctx, p.runInput(dir), func(ctx context.Context, rs *runState) (*Result, error) {
		summary := model.NewSummary()
		res := &Result{RunID: rs.runID, Summary: summary}
		err := rs.trackPhase(ctx, "load_classified", func() (*model.PhaseResult, error) {
			records, rejects, err := export.LoadClassified(dir)
			if err != nil {
				return nil, err
			}
			res.Records = records
			for _, r := range rejects {
				rs.log.Warn("pipeline: classified document rejected", zap.String("path", r.Path), zap.String("reason", r.Reason))
				p.metrics.reject(string(r.Category))
				summary.TotalRecords++
				summary.AddReject(r)
			}
			return &model.PhaseResult{Metadata: map[string]any{"records": len(records), "rejected": len(rejects)}}, nil
		})
		if err != nil {
			return res, err
		}
		return res, p.exportPhase(ctx, rs, res)
	})
}

func (p *Pipeline) runInput(inputDir string) model.RunInput {
	return model.RunInput{
		InputDir:  inputDir,
		TrackDir:  p.cfg.Pipeline.TrackDir,
		OutputDir: p.cfg.Pipeline.OutputDir,
		Format:    p.cfg.Export.Format,
		Sink:      p.cfg.Export.Sink,
		Skip:      p.cfg.Skips(),
	}
}

// execute wraps body with run bookkeeping: the run record, its final status
// and the run-level metrics and log line.
func (p *Pipeline) execute(ctx context.Context, input model.RunInput, body func(context.Context, *runState) (*Result, error)) (*Result, error) {
	runID, err := p.startRun(ctx, input)
	if err != nil {
		return nil, err
	}
	rs := &runState{
		runID:   runID,
		store:   p.store,
		metrics: p.metrics,
		log:     zap.L().With(zap.String("run_id", runID)),
	}
	rs.log.Info("pipeline: run started",
		zap.String("input_dir", input.InputDir),
		zap.Int("concurrency", p.cfg.Pipeline.Concurrency),
	)

	res, err := body(ctx, rs)
	res.Phases = rs.phases
	bctx := context.WithoutCancel(ctx)

	if err != nil {
		category := resilience.ClassifyError(err)
		if p.store != nil {
			if ferr := p.store.FailRun(bctx, runID, category, err.Error()); ferr != nil {
				rs.log.Warn("pipeline: failed to record run failure", zap.Error(ferr))
			}
		}
		p.metrics.finish(string(model.RunStatusFailed), 0)
		rs.log.Error("pipeline: run failed", zap.String("error_category", string(category)), zap.Error(err))
		return res, err
	}

	if p.store != nil {
		result := &model.RunResult{Summary: res.Summary, Phases: res.Phases, Location: res.Location}
		if uerr := p.store.UpdateRunResult(bctx, runID, result); uerr != nil {
			rs.log.Warn("pipeline: failed to record run result", zap.Error(uerr))
		}
	}
	p.metrics.finish(string(model.RunStatusComplete), res.Summary.Duplicates)

	s := res.Summary
	rs.log.Info("pipeline: run complete",
		zap.Int("total", s.TotalRecords),
		zap.Int("written", s.Written),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("rejected", s.Rejected),
		zap.Any("skipped_tracks", s.SkippedTracks),
		zap.String("location", res.Location),
	)
	return res, nil
}

func (p *Pipeline) startRun(ctx context.Context, input model.RunInput) (string, error) {
	if p.store == nil {
		return uuid.New().String(), nil
	}
	run, err := p.store.CreateRun(ctx, input)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: create run")
	}
	p.setStatus(ctx, run.ID, model.RunStatusRunning)
	return run.ID, nil
}

func (p *Pipeline) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if p.store == nil {
		return
	}
	if err := p.store.UpdateRunStatus(context.WithoutCancel(ctx), runID, status); err != nil {
		zap.L().Warn("pipeline: failed to update status", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pipeline) run(ctx context.Context, rs *runState) (*Result, error) {
	summary := model.NewSummary()
	res := &Result{RunID: rs.runID, Summary: summary}

	var paths []string
	err := rs.trackPhase(ctx, "discover", func() (*model.PhaseResult, error) {
		all, err := parser.ListInputs(p.cfg.Pipeline.InputDir)
		if err != nil {
			return nil, err
		}
		for _, path := range all {
			if !isSidecar(path) {
				paths = append(paths, path)
			}
		}
		return &model.PhaseResult{Metadata: map[string]any{"inputs": len(paths)}}, nil
	})
	if err != nil {
		return res, err
	}

	// Claim ids serially so the first path in sorted order owns a colliding id.
	var jobs []sampleJob
	var rejects []model.RejectedRecord
	registry := parser.NewRegistry()
	_ = rs.trackPhase(ctx, "claim", func() (*model.PhaseResult, error) {
		for _, path := range paths {
			id, err := registry.Claim(path)
			if err != nil {
				rejects = append(rejects, p.rejectFor(rs.log, id, path, err))
				continue
			}
			jobs = append(jobs, sampleJob{index: len(jobs), sampleID: id, path: path})
		}
		summary.SampleIDCollisions = registry.Collisions()
		return &model.PhaseResult{Metadata: map[string]any{
			"samples":    len(jobs),
			"collisions": len(summary.SampleIDCollisions),
		}}, nil
	})

	slots := make([]slot, len(jobs))
	err = rs.trackPhase(ctx, "samples", func() (*model.PhaseResult, error) {
		var classified, rejected atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(p.cfg.Pipeline.Concurrency, 1))

		for _, job := range jobs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				rec, err := p.processSample(gctx, job.sampleID, job.path)
				if err != nil {
					if gctx.Err() != nil {
						return err
					}
					r := p.rejectFor(rs.log, job.sampleID, job.path, err)
					slots[job.index].reject = &r
					rejected.Add(1)
					return nil
				}
				slots[job.index].rec = &rec
				classified.Add(1)
				p.metrics.sample("classified")
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "pipeline: samples")
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: samples interrupted")
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"classified": classified.Load(),
			"rejected":   rejected.Load(),
		}}, nil
	})
	if err != nil {
		return res, err
	}

	for _, s := range slots {
		switch {
		case s.rec != nil:
			res.Records = append(res.Records, *s.rec)
		case s.reject != nil:
			rejects = append(rejects, *s.reject)
		}
	}
	for _, r := range rejects {
		summary.TotalRecords++
		summary.AddReject(r)
	}

	if dir := p.cfg.Pipeline.OutputDir; dir != "" {
		err = rs.trackPhase(ctx, "write_classified", func() (*model.PhaseResult, error) {
			out := filepath.Join(dir, ClassifiedDir)
			for _, rec := range res.Records {
				if _, err := export.WriteClassified(out, rec); err != nil {
					return nil, err
				}
			}
			return &model.PhaseResult{Metadata: map[string]any{"dir": out, "records": len(res.Records)}}, nil
		})
		if err != nil {
			return res, err
		}
	}

	return res, p.exportPhase(ctx, rs, res)
}

// exportPhase dedups res.Records into the configured sink. It runs only
// after every sample has finished.
func (p *Pipeline) exportPhase(ctx context.Context, rs *runState, res *Result) error {
	p.setStatus(ctx, rs.runID, model.RunStatusExporting)
	return rs.trackPhase(ctx, "export", func() (*model.PhaseResult, error) {
		sink, err := p.sink(ctx, rs.runID)
		if err != nil {
			return nil, export.NewExportIntegrityError(p.cfg.Export.Sink, err)
		}
		summary := res.Summary
		if _, err := export.New(sink).Export(ctx, res.Records, summary); err != nil {
			return nil, err
		}
		res.Location = summary.TableLocation
		return &model.PhaseResult{Metadata: map[string]any{
			"sink":       sink.Name(),
			"location":   summary.TableLocation,
			"written":    summary.Written,
			"duplicates": summary.Duplicates,
		}}, nil
	})
}

// sidecarSuffixes name JSON documents that live next to inputs but are not
// inputs themselves.
var sidecarSuffixes = []string{
	track.SuffixEngineered,
	track.SuffixNatural,
	track.SuffixQC,
	export.ClassifiedSuffix,
	export.SummaryFile,
}

func isSidecar(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// processSample runs one input through parse, extract, annotate and
// classify.
func (p *Pipeline) processSample(ctx context.Context, sampleID, path string) (model.ClassifiedRecord, error) {
	rec, err := parser.ParseFileAs(sampleID, path)
	if err != nil {
		return model.ClassifiedRecord{}, err
	}
	return p.ClassifyRecord(ctx, rec)
}

// ClassifyRecord extracts metadata, runs the annotators and classifies one
// parsed record.
func (p *Pipeline) ClassifyRecord(ctx context.Context, rec *model.RawRecord) (model.ClassifiedRecord, error) {
	md := p.extractor.Extract(rec)
	set, err := p.annotators.Run(ctx, rec)
	if err != nil {
		return model.ClassifiedRecord{}, eris.Wrapf(err, "pipeline: annotate %s", rec.SampleID)
	}
	cr, err := p.classifier.Classify(rec, md, set)
	if err != nil {
		return model.ClassifiedRecord{}, err
	}
	zap.L().Debug("pipeline: sample classified",
		zap.String("sample_id", cr.SampleID),
		zap.String("classification", string(cr.Classification)),
		zap.String("seq_hash", cr.SeqHash),
	)
	return cr, nil
}

func (p *Pipeline) rejectFor(log *zap.Logger, sampleID, path string, err error) model.RejectedRecord {
	category := resilience.ClassifyError(err)
	log = log.With(zap.String("sample_id", sampleID), zap.String("path", path), zap.String("error_category", string(category)))
	if category == model.ErrorCategoryJoin {
		log.Error("pipeline: sample rejected", zap.Error(err))
	} else {
		log.Warn("pipeline: sample rejected", zap.Error(err))
	}
	p.metrics.sample("rejected")
	p.metrics.reject(string(category))
	return model.RejectedRecord{SampleID: sampleID, Path: path, Category: category, Reason: err.Error()}
}

func (p *Pipeline) sink(ctx context.Context, runID string) (export.Sink, error) {
	format, err := export.ParseFormat(p.cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	ec := p.cfg.Export
	switch ec.Sink {
	case config.SinkFS, "":
		return &export.FSSink{Dir: p.cfg.Pipeline.OutputDir, TableName: ec.TableName, Format: format}, nil
	case config.SinkS3:
		client := p.s3
		if client == nil {
			c, err := export.NewS3Client(ctx, export.S3Options{Region: ec.S3.Region, Endpoint: ec.S3.Endpoint, PathStyle: ec.S3.PathStyle})
			if err != nil {
				return nil, err
			}
			client = c
		}
		return &export.S3Sink{
			Client:    client,
			Bucket:    ec.S3.Bucket,
			Prefix:    path.Join(ec.S3.Prefix, runID),
			TableName: ec.TableName,
			Format:    format,
			Retry:     resilience.FromRetryConfig(ec.S3.MaxAttempts, ec.S3.InitialBackoffMs, ec.S3.MaxBackoffMs),
		}, nil
	case config.SinkStore:
		if p.store == nil {
			return nil, eris.New("pipeline: store sink requires a run store")
		}
		return &export.StoreSink{Store: p.store, RunID: runID, TableName: ec.TableName}, nil
	default:
		return nil, eris.Errorf("pipeline: unknown export sink %q", ec.Sink)
	}
}

// trackPhase times fn, records it as a phase of the run, and returns fn's
// error.
func (r *runState) trackPhase(ctx context.Context, name string, fn func() (*model.PhaseResult, error)) error {
	bctx := context.WithoutCancel(ctx)
	var phase *model.RunPhase
	if r.store != nil {
		ph, err := r.store.CreatePhase(bctx, r.runID, name)
		if err != nil {
			r.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
		}
		phase = ph
	}

	start := time.Now()
	pr, fnErr := fn()
	elapsed := time.Since(start)

	if pr == nil {
		pr = &model.PhaseResult{}
	}
	pr.Name = name
	pr.Duration = elapsed.Milliseconds()

	if fnErr != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = fnErr.Error()
		r.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
			zap.Error(fnErr),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		r.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
		)
	}
	r.metrics.observePhase(name, string(pr.Status), elapsed)

	if phase != nil {
		if err := r.store.CompletePhase(bctx, phase.ID, pr); err != nil {
			r.log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}
	r.mu.Lock()
	r.phases = append(r.phases, *pr)
	r.mu.Unlock()
	return fnErr
}
