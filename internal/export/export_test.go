package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/resilience"
)

func record(id, sampleID, hash string, length int) model.ClassifiedRecord {
	return model.ClassifiedRecord{
		ID:             id,
		SampleID:       sampleID,
		SeqHash:        hash,
		Length:         length,
		Sequence:       strings.Repeat("A", length),
		Classification: model.ClassEngineered,
		Topology:       model.TopologyCircular,
		CopyNumber:     model.CopyNumberHigh,
		PlasmidType:    model.PlasmidTypeCloning,
		Host:           model.Unknown,
		Origins:        []string{"pUC"},
	}
}

func fixtures() []model.ClassifiedRecord {
	b := record("id-b", "b", "h1", 10)
	b.Features.QC.Skipped = true
	return []model.ClassifiedRecord{
		record("id-c", "c", "h2", 30),
		b,
		record("id-a", "a", "h1", 10),
		{ID: "id-d", SampleID: "d", SeqHash: "h3", Length: 5},
		record("id-e", "e", "h4", 20),
	}
}

func TestCollect(t *testing.T) {
	summary := model.NewSummary()
	rows, err := Collect(fixtures(), summary)
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].SampleID, "first seen in sample order wins")
	assert.Equal(t, []string{"a", "c", "e"}, []string{rows[0].SampleID, rows[1].SampleID, rows[2].SampleID})

	assert.Equal(t, 5, summary.TotalRecords)
	assert.Equal(t, 3, summary.Written)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, []model.DroppedDuplicate{{ID: "id-b", SampleID: "b", SeqHash: "h1", KeptID: "id-a"}}, summary.DroppedDuplicates)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, "missing classification", summary.RejectedRecords[0].Reason)
	assert.Equal(t, model.LengthStats{Min: 10, Max: 30, Mean: 20, Median: 20}, summary.LengthStats)
	assert.Equal(t, 3, summary.ClassificationCounts["Engineered"])
	assert.Equal(t, 3, summary.CopyNumberCounts["high"])
	assert.Empty(t, summary.SkippedTracks, "skipped tracks of dropped rows are not counted")

	assert.Equal(t, `["pUC"]`, rows[0].Origins)
	var md map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[0].Metadata), &md))
}

func TestCollect_Idempotent(t *testing.T) {
	first, err := Collect(fixtures(), model.NewSummary())
	require.NoError(t, err)
	second, err := Collect(fixtures(), model.NewSummary())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLengthStats_EvenMedian(t *testing.T) {
	assert.Equal(t, model.LengthStats{Min: 1, Max: 4, Mean: 2.5, Median: 2.5}, lengthStats([]int{4, 1, 3, 2}))
	assert.Equal(t, model.LengthStats{}, lengthStats(nil))
}

func testRows(t *testing.T) []model.GoldenTableRow {
	t.Helper()
	rows, err := Collect(fixtures(), model.NewSummary())
	require.NoError(t, err)
	return rows
}

func TestFormat_Parquet(t *testing.T) {
	rows := testRows(t)
	var buf bytes.Buffer
	require.NoError(t, FormatParquet.Encode(&buf, rows))

	got, err := parquet.Read[model.GoldenTableRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestFormat_CSV(t *testing.T) {
	rows := testRows(t)
	var buf bytes.Buffer
	require.NoError(t, FormatCSV.Encode(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, model.GoldenColumns, records[0])
	assert.Equal(t, "a", records[1][1])
	assert.Equal(t, "10", records[1][3])
}

func TestFormat_XLSX(t *testing.T) {
	rows := testRows(t)
	var buf bytes.Buffer
	require.NoError(t, FormatXLSX.Encode(&buf, rows))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet := f.Sheet["golden_table"]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "seq_hash", sheet.Rows[0].Cells[2].String())
	assert.Equal(t, "c", sheet.Rows[2].Cells[1].String())
}

func TestFormat_JSONL(t *testing.T) {
	rows := testRows(t)
	var buf bytes.Buffer
	require.NoError(t, FormatJSONL.Encode(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var row model.GoldenTableRow
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &row))
	assert.Equal(t, rows[2], row)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	f, err = ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("avro")
	assert.Error(t, err)
}

func TestExporter_FS(t *testing.T) {
	dir := t.TempDir()
	exp := New(&FSSink{Dir: dir, TableName: "golden_table", Format: FormatJSONL})

	summary, err := exp.Export(context.Background(), fixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "golden_table.jsonl"), summary.TableLocation)

	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	var onDisk model.Summary
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 3, onDisk.Written)
	assert.Equal(t, summary.TableLocation, onDisk.TableLocation)

	// Re-running over the same input rewrites the same table.
	again, err := exp.Export(context.Background(), fixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, summary.Written, again.Written)
	assertNoTemps(t, dir)
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
	}
}

func TestFSSink_EncoderFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	exp := New(&FSSink{Dir: dir, TableName: "golden_table", Format: Format("broken")})

	_, err := exp.Export(context.Background(), fixtures(), nil)
	require.Error(t, err)
	assert.True(t, IsExportIntegrity(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// blockSummary turns summary.json into a non-empty directory so the summary
// rename fails after the table has been renamed into place.
func blockSummary(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.RemoveAll(filepath.Join(dir, SummaryFile)))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, SummaryFile, "x"), 0o755))
}

func TestFSSink_SummaryFailurePublishesNothing(t *testing.T) {
	dir := t.TempDir()
	blockSummary(t, dir)

	_, err := New(&FSSink{Dir: dir, TableName: "golden_table", Format: FormatCSV}).Export(context.Background(), fixtures(), nil)
	require.Error(t, err)
	assert.True(t, IsExportIntegrity(err))
	assert.NoFileExists(t, filepath.Join(dir, "golden_table.csv"))
	assertNoTemps(t, dir)
}

func TestFSSink_SummaryFailureRestoresPreviousTable(t *testing.T) {
	dir := t.TempDir()
	sink := &FSSink{Dir: dir, TableName: "golden_table", Format: FormatCSV}
	tablePath := filepath.Join(dir, "golden_table.csv")

	_, err := New(sink).Export(context.Background(), fixtures()[:1], nil)
	require.NoError(t, err)
	before, err := os.ReadFile(tablePath)
	require.NoError(t, err)

	blockSummary(t, dir)
	_, err = New(sink).Export(context.Background(), fixtures(), nil)
	require.Error(t, err)
	assert.True(t, IsExportIntegrity(err))

	after, err := os.ReadFile(tablePath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assertNoTemps(t, dir)
}

func TestWriteTemp_Cleanup(t *testing.T) {
	dir := t.TempDir()
	_, err := writeTemp(dir, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("encoder exploded")
	})
	require.EqualError(t, err, "encoder exploded")
	assertNoTemps(t, dir)
}

type fakePutter struct {
	mu        sync.Mutex
	objects   map[string][]byte
	fails     int
	calls     int
	err       error
	rejectKey string
	deleted   []string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if *in.Key == f.rejectKey {
		return nil, errors.New("access denied")
	}
	if f.fails > 0 {
		f.fails--
		return nil, resilience.NewTransientError(errors.New("slow down"), 503)
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *in.Key)
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	putter := &fakePutter{fails: 1}
	sink := &S3Sink{
		Client:    putter,
		Bucket:    "plasmids",
		Prefix:    "runs/r1",
		TableName: "golden_table",
		Format:    FormatCSV,
		Retry:     resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	}

	summary, err := New(sink).Export(context.Background(), fixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://plasmids/runs/r1/golden_table.csv", summary.TableLocation)
	assert.Equal(t, 3, putter.calls, "one retry for the table plus the summary")
	assert.Contains(t, string(putter.objects["runs/r1/golden_table.csv"]), "seq_hash")
	assert.Contains(t, string(putter.objects["runs/r1/summary.json"]), `"written": 3`)
}

func TestS3Sink_PermanentFailure(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	sink := &S3Sink{Client: putter, Bucket: "b", TableName: "t", Format: FormatJSONL}

	_, err := New(sink).Export(context.Background(), fixtures(), nil)
	require.Error(t, err)
	assert.True(t, IsExportIntegrity(err))
	assert.Equal(t, 1, putter.calls, "permanent errors are not retried")
}

func TestS3Sink_SummaryFailureRemovesTable(t *testing.T) {
	putter := &fakePutter{rejectKey: "runs/r1/summary.json"}
	sink := &S3Sink{Client: putter, Bucket: "b", Prefix: "runs/r1", TableName: "golden_table", Format: FormatCSV}

	_, err := New(sink).Export(context.Background(), fixtures(), nil)
	require.Error(t, err)
	assert.True(t, IsExportIntegrity(err))
	assert.Equal(t, []string{"runs/r1/golden_table.csv"}, putter.deleted)
	assert.Empty(t, putter.objects)
}

type fakeGolden struct {
	runID string
	rows  []model.GoldenTableRow
	err   error
}

func (f *fakeGolden) ReplaceGoldenRows(_ context.Context, runID string, rows []model.GoldenTableRow) error {
	if f.err != nil {
		return f.err
	}
	f.runID, f.rows = runID, rows
	return nil
}

func TestStoreSink(t *testing.T) {
	g := &fakeGolden{}
	summary, err := New(&StoreSink{Store: g, RunID: "r1", TableName: "golden_table"}).Export(context.Background(), fixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, "r1", g.runID)
	assert.Len(t, g.rows, 3)
	assert.Equal(t, "store://golden_table/r1", summary.TableLocation)

	g.err = errors.New("tx aborted")
	_, err = New(&StoreSink{Store: g, RunID: "r1", TableName: "golden_table"}).Export(context.Background(), fixtures(), nil)
	var ee *ExportIntegrityError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "store", ee.Location)
}

func TestNewS3Client(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	client, err := NewS3Client(context.Background(), S3Options{Endpoint: "http://localhost:9000", PathStyle: true})
	require.NoError(t, err)
	opts := client.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *opts.BaseEndpoint)

	var _ ObjectPutter = client
}

func TestClassifiedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, rec := range fixtures() {
		_, err := WriteClassified(dir, rec)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken"+ClassifiedSuffix), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	records, rejects, err := LoadClassified(dir)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "a", records[0].SampleID)
	require.Len(t, rejects, 1)
	assert.Equal(t, "broken", rejects[0].SampleID)
	assert.Equal(t, model.ErrorCategoryMalformed, rejects[0].Category)

	rows, err := Collect(records, model.NewSummary())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
