package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/space-cli/internal/config"
	"github.com/sells-group/space-cli/internal/export"
	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/resilience"
	"github.com/sells-group/space-cli/internal/store"
	"github.com/sells-group/space-cli/internal/track"
)

const (
	seqA = "ATGACCATGATTACGGATTCACTGGCCGTCGTTTTACAACGTCGTGACTGGGAAAACC"
	seqC = "GGGGCCCCAAAATTTTGGGGCCCCAAAATTTTACGTACGTTGCATGCA"
	seqD = "TTTTAAAACCCCGGGGTTTTAAAACCCCGGGGATATATATCGCGCG"
	seqX = "ACACACACGTGTGTGTTTGGCCAAGGTTCCAAGGTTCCATGCATGC"
	seqY = "CATGCATGTTAACCGGTTAACCGGATCGATCGATCGGGCCAATT"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// fixture lays out eight inputs: a and b share a sequence, bad.fasta has no
// header, c.fa and c.fasta collide on sample id c, d's engineered document
// belongs to another sample, x has no engineered document and y's does not
// decode.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, "in")
	tracks := filepath.Join(root, "tracks")
	require.NoError(t, os.MkdirAll(in, 0o755))
	require.NoError(t, os.MkdirAll(tracks, 0o755))

	writeFile(t, in, "a.fasta", ">a demo vector\n"+seqA+"\n")
	writeFile(t, in, "b.fasta", ">b copy of a\n"+strings.ToLower(seqA)+"\n")
	writeFile(t, in, "bad.fasta", "ACGTACGT\n")
	writeFile(t, in, "c.fa", ">c\n"+seqC+"\n")
	writeFile(t, in, "c.fasta", ">c again\n"+seqD+"\n")
	writeFile(t, in, "d.fasta", ">d\n"+seqD+"\n")
	writeFile(t, in, "x.fasta", ">x\n"+seqX+"\n")
	writeFile(t, in, "y.fasta", ">y\n"+seqY+"\n")
	writeFile(t, in, "a.engineered.json", `{"sample_id":"ignored"}`)

	writeFile(t, tracks, "a.engineered.json", `{"sample_id":"a","has_synthetic_ori":true,"origins":[{"id":"pUC","type":"ori"}]}`)
	writeFile(t, tracks, "b.engineered.json", `{"sample_id":"b","has_synthetic_ori":true,"origins":[{"id":"pUC","type":"ori"}]}`)
	writeFile(t, tracks, "c.engineered.json", `{"sample_id":"c","has_synthetic_ori":false}`)
	writeFile(t, tracks, "d.engineered.json", `{"sample_id":"zzz"}`)
	writeFile(t, tracks, "y.engineered.json", `{"sample_id":"y","has_synthetic_ori":"yes"}`)

	cfg := config.Default()
	cfg.Pipeline.Concurrency = 2
	cfg.Pipeline.InputDir = in
	cfg.Pipeline.TrackDir = tracks
	cfg.Pipeline.OutputDir = filepath.Join(root, "out")
	cfg.Tracks.Natural.Skip = true
	cfg.Export.Format = "csv"
	return cfg
}

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "space.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_FS(t *testing.T) {
	cfg := fixture(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	p, err := New(cfg, WithMetrics(metrics))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	s := res.Summary
	assert.Equal(t, 8, s.TotalRecords)
	assert.Equal(t, 2, s.Written)
	assert.Equal(t, 1, s.Duplicates)
	assert.Equal(t, 5, s.Rejected)
	assert.Equal(t, 2, s.SkippedTracks[model.TrackNatural])
	assert.Equal(t, 1, s.ClassificationCounts[string(model.ClassEngineered)])
	assert.Equal(t, 1, s.ClassificationCounts[string(model.ClassNatural)])

	require.Len(t, s.DroppedDuplicates, 1)
	assert.Equal(t, "b", s.DroppedDuplicates[0].SampleID)

	require.Len(t, s.SampleIDCollisions, 1)
	assert.Equal(t, "c", s.SampleIDCollisions[0].SampleID)
	assert.Len(t, s.SampleIDCollisions[0].Paths, 2)

	require.Len(t, s.RejectedRecords, 5)
	wantRejects := []struct {
		sampleID string
		category model.ErrorCategory
		reason   string
	}{
		{"c", model.ErrorCategoryMalformed, "sample id"},
		{"bad", model.ErrorCategoryMalformed, "header"},
		{"d", model.ErrorCategoryJoin, `belongs to sample "zzz"`},
		{"x", model.ErrorCategoryJoin, "missing track document"},
		{"y", model.ErrorCategoryJoin, "unreadable track document"},
	}
	for i, want := range wantRejects {
		got := s.RejectedRecords[i]
		assert.Equal(t, want.sampleID, got.SampleID, i)
		assert.Equal(t, want.category, got.Category, want.sampleID)
		assert.Contains(t, got.Reason, want.reason, want.sampleID)
	}

	assert.Len(t, res.Records, 3)
	tablePath := filepath.Join(cfg.Pipeline.OutputDir, "golden_table.csv")
	assert.Equal(t, tablePath, res.Location)
	data, err := os.ReadFile(tablePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.FileExists(t, filepath.Join(cfg.Pipeline.OutputDir, export.SummaryFile))

	records, rejects, err := export.LoadClassified(filepath.Join(cfg.Pipeline.OutputDir, ClassifiedDir))
	require.NoError(t, err)
	assert.Empty(t, rejects)
	assert.Len(t, records, 3)

	var names []string
	for _, ph := range res.Phases {
		names = append(names, ph.Name)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, ph.Name)
	}
	assert.Equal(t, []string{"discover", "claim", "samples", "write_classified", "export"}, names)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.samples.WithLabelValues("classified")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.rejects.WithLabelValues("malformed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.rejects.WithLabelValues("join")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.duplicates), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("complete")), 0)
}

func TestClassifyRecord_UnreadableTrackDocument(t *testing.T) {
	cfg := fixture(t)
	p, err := New(cfg)
	require.NoError(t, err)

	tests := []struct {
		name     string
		sampleID string
		reason   string
	}{
		{name: "missing", sampleID: "x", reason: "missing track document"},
		{name: "bad schema", sampleID: "y", reason: "unreadable track document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.processSample(context.Background(), tt.sampleID, filepath.Join(cfg.Pipeline.InputDir, tt.sampleID+".fasta"))
			require.Error(t, err)

			var je *track.InconsistentJoinError
			require.True(t, errors.As(err, &je))
			assert.Equal(t, tt.sampleID, je.SampleID)
			assert.Equal(t, model.TrackEngineered, je.Track)
			assert.Equal(t, tt.reason, je.Reason)
			assert.Equal(t, model.ErrorCategoryJoin, resilience.ClassifyError(err))
		})
	}
}

func TestRun_Reproducible(t *testing.T) {
	cfg := fixture(t)
	tablePath := filepath.Join(cfg.Pipeline.OutputDir, "golden_table.csv")

	p, err := New(cfg)
	require.NoError(t, err)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Summary.Written, second.Summary.Written)
	assert.Equal(t, first.Summary.RejectedRecords, second.Summary.RejectedRecords)
	var hashes [2][]string
	for i, res := range []*Result{first, second} {
		for _, rec := range res.Records {
			hashes[i] = append(hashes[i], rec.SampleID+":"+rec.SeqHash)
		}
	}
	assert.Equal(t, hashes[0], hashes[1])
	assert.FileExists(t, tablePath)
}

func TestRun_RecordsInStore(t *testing.T) {
	cfg := fixture(t)
	cfg.Export.Sink = config.SinkStore
	st := newSQLiteStore(t)

	p, err := New(cfg, WithStore(st))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "store://golden_table/"+res.RunID, res.Location)

	ctx := context.Background()
	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, cfg.Pipeline.InputDir, run.Input.InputDir)
	assert.True(t, run.Input.Skip["natural"])
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.Summary.Written)
	assert.Equal(t, res.Location, run.Result.Location)

	phases, err := st.ListPhases(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, phases, 5)
	for _, ph := range phases {
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, ph.Name)
	}

	n, err := st.CountGoldenRows(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestRun_S3(t *testing.T) {
	cfg := fixture(t)
	cfg.Export.Sink = config.SinkS3
	cfg.Export.Format = "parquet"
	cfg.Export.S3.Bucket = "plasmids"
	cfg.Export.S3.Prefix = "runs"
	putter := &fakePutter{}

	p, err := New(cfg, WithObjectPutter(putter))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	tableKey := "runs/" + res.RunID + "/golden_table.parquet"
	assert.Equal(t, "s3://plasmids/"+tableKey, res.Location)
	assert.Contains(t, putter.objects, tableKey)
	assert.Contains(t, putter.objects, "runs/"+res.RunID+"/"+export.SummaryFile)
	assert.NoFileExists(t, filepath.Join(cfg.Pipeline.OutputDir, "golden_table.parquet"))
}

func TestRun_StoreSinkWithoutStore(t *testing.T) {
	cfg := fixture(t)
	cfg.Export.Sink = config.SinkStore

	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, export.IsExportIntegrity(err))
	assert.Equal(t, model.ErrorCategoryExport, resilience.ClassifyError(err))
	require.NotEmpty(t, res.Phases)
	last := res.Phases[len(res.Phases)-1]
	assert.Equal(t, "export", last.Name)
	assert.Equal(t, model.PhaseStatusFailed, last.Status)
}

// cancelling stops the run from inside an annotator, as an interrupt would.
type cancelling struct {
	cancel context.CancelFunc
}

func (cancelling) Kind() model.TrackKind { return model.TrackEngineered }
func (cancelling) Name() string          { return "cancelling" }

func (c cancelling) Annotate(ctx context.Context, _ *model.RawRecord) (model.Partial, error) {
	c.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_Cancelled(t *testing.T) {
	cfg := fixture(t)
	st := newSQLiteStore(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	anns := track.Annotators{
		model.TrackEngineered: cancelling{cancel: cancel},
		model.TrackNatural:    track.Skipped{Track: model.TrackNatural},
		model.TrackQC:         track.QCNative{},
	}

	p, err := New(cfg, WithStore(st), WithAnnotators(anns), WithMetrics(metrics))
	require.NoError(t, err)

	res, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorCategoryTransient, run.ErrorCategory)

	_, statErr := os.Stat(filepath.Join(cfg.Pipeline.OutputDir, "golden_table.csv"))
	assert.True(t, os.IsNotExist(statErr))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("failed")), 0)
}

func TestNew_BadTrackSource(t *testing.T) {
	cfg := config.Default()
	cfg.Tracks.Natural.Source = "bogus"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestIsSidecar(t *testing.T) {
	assert.True(t, isSidecar("in/a.engineered.json"))
	assert.True(t, isSidecar("in/A.QC.JSON"))
	assert.True(t, isSidecar("out/classified/a_classified.json"))
	assert.True(t, isSidecar("out/summary.json"))
	assert.False(t, isSidecar("in/a.json"))
	assert.False(t, isSidecar("in/a.fasta"))
}

func TestReexport(t *testing.T) {
	cfg := fixture(t)
	p, err := New(cfg)
	require.NoError(t, err)

	first, err := p.Run(context.Background())
	require.NoError(t, err)

	classified := filepath.Join(cfg.Pipeline.OutputDir, ClassifiedDir)
	writeFile(t, classified, "broken"+export.ClassifiedSuffix, "{not json")

	cfg.Pipeline.OutputDir = filepath.Join(t.TempDir(), "again")
	st := newSQLiteStore(t)
	p, err = New(cfg, WithStore(st))
	require.NoError(t, err)

	res, err := p.Reexport(context.Background(), classified)
	require.NoError(t, err)
	assert.Equal(t, first.Summary.Written, res.Summary.Written)
	assert.Equal(t, 1, res.Summary.Duplicates)
	require.Len(t, res.Summary.RejectedRecords, 1)
	assert.Equal(t, "broken", res.Summary.RejectedRecords[0].SampleID)
	assert.Equal(t, 4, res.Summary.TotalRecords)
	assert.FileExists(t, filepath.Join(cfg.Pipeline.OutputDir, "golden_table.csv"))

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, classified, run.Input.InputDir)
	assert.Equal(t, model.RunStatusComplete, run.Status)
}
