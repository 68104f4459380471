package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/resilience"
)

// SummaryFile is the name of the summary document written next to a table.
const SummaryFile = "summary.json"

// Sink persists an encoded golden table and its summary.
type Sink interface {
	Name() string
	// Write persists rows and summary and returns the table location.
	// Either the complete table exists afterwards or nothing changed.
	Write(ctx context.Context, rows []model.GoldenTableRow, summary *model.Summary) (string, error)
}

// FSSink writes the table and summary into a local directory.
type FSSink struct {
	Dir       string
	TableName string
	Format    Format
}

func (s *FSSink) Name() string { return "fs" }

// Write encodes both documents into temp files in Dir, fsyncs them, and
// renames them into place, table first. A failure on the summary rolls the
// table back to its previous contents, so the pair is published together or
// not at all.
func (s *FSSink) Write(ctx context.Context, rows []model.GoldenTableRow, summary *model.Summary) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create %s", s.Dir)
	}
	tablePath := filepath.Join(s.Dir, s.TableName+s.Format.Extension())
	summary.TableLocation = tablePath

	tableTmp, err := writeTemp(s.Dir, func(w io.Writer) error { return s.Format.Encode(w, rows) })
	if err != nil {
		return "", err
	}
	summaryTmp, err := writeTemp(s.Dir, func(w io.Writer) error { return encodeSummary(w, summary) })
	if err != nil {
		_ = os.Remove(tableTmp)
		return "", err
	}
	discard := func() {
		_ = os.Remove(tableTmp)
		_ = os.Remove(summaryTmp)
	}
	if err := ctx.Err(); err != nil {
		discard()
		return "", err
	}

	restore, err := backup(s.Dir, tablePath)
	if err != nil {
		discard()
		return "", err
	}
	if err := os.Rename(tableTmp, tablePath); err != nil {
		discard()
		restore(false)
		return "", eris.Wrapf(err, "export: rename into %s", tablePath)
	}
	if err := os.Rename(summaryTmp, filepath.Join(s.Dir, SummaryFile)); err != nil {
		_ = os.Remove(summaryTmp)
		restore(false)
		return "", eris.Wrap(err, "export: rename summary")
	}
	restore(true)
	return tablePath, nil
}

// backup moves an existing file at path aside. The returned func either
// drops the backup (commit) or puts it back, removing whatever is at path
// when there was nothing to back up.
func backup(dir, path string) (func(commit bool), error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return func(commit bool) {
			if !commit {
				_ = os.Remove(path)
			}
		}, nil
	}
	bak, err := os.CreateTemp(dir, ".tmp-bak-*")
	if err != nil {
		return nil, eris.Wrap(err, "export: create backup")
	}
	name := bak.Name()
	_ = bak.Close()
	if err := os.Rename(path, name); err != nil {
		_ = os.Remove(name)
		return nil, eris.Wrapf(err, "export: back up %s", path)
	}
	return func(commit bool) {
		if commit {
			_ = os.Remove(name)
			return
		}
		if err := os.Rename(name, path); err != nil {
			zap.L().Error("export: restore previous table failed",
				zap.String("path", path), zap.String("backup", name), zap.Error(err))
		}
	}, nil
}

// writeTemp streams encode into a hidden temp file in dir and returns its
// path. On any failure the temp file is removed.
func writeTemp(dir string, encode func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", eris.Wrap(err, "export: create temp file")
	}
	name := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := encode(tmp); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(eris.Wrap(err, "export: sync temp file"))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", eris.Wrap(err, "export: close temp file")
	}
	return name, nil
}

func encodeSummary(w io.Writer, summary *model.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(summary), "export: encode summary")
}

// ObjectPutter is the subset of the S3 client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Sink uploads the fully encoded table, then the summary, to a bucket.
// A single PutObject is atomic from a reader's point of view.
type S3Sink struct {
	Client    ObjectPutter
	Bucket    string
	Prefix    string
	TableName string
	Format    Format
	Retry     resilience.RetryConfig
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) key(name string) string {
	return path.Join(s.Prefix, name)
}

// Write encodes the table in memory and uploads it with retries on
// transient failures. If the summary upload fails the table object is
// deleted again.
func (s *S3Sink) Write(ctx context.Context, rows []model.GoldenTableRow, summary *model.Summary) (string, error) {
	tableKey := s.key(s.TableName + s.Format.Extension())
	location := "s3://" + s.Bucket + "/" + tableKey
	summary.TableLocation = location

	var table bytes.Buffer
	if err := s.Format.Encode(&table, rows); err != nil {
		return "", err
	}
	var sum bytes.Buffer
	if err := encodeSummary(&sum, summary); err != nil {
		return "", err
	}

	if err := s.put(ctx, tableKey, table.Bytes(), s.Format.ContentType()); err != nil {
		return "", err
	}
	if err := s.put(ctx, s.key(SummaryFile), sum.Bytes(), "application/json"); err != nil {
		s.remove(ctx, tableKey)
		return location, err
	}
	return location, nil
}

// remove deletes key. It outlives cancellation of ctx, which may be the very
// reason the summary upload failed.
func (s *S3Sink) remove(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	cfg := s.Retry
	cfg.ShouldRetry = isTransientS3
	cfg.OnRetry = resilience.RetryLogger("s3", "delete_object")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.Bucket, Key: &key})
		return err
	})
	if err != nil {
		zap.L().Error("export: delete orphaned table failed",
			zap.String("bucket", s.Bucket), zap.String("key", key), zap.Error(err))
	}
}

func (s *S3Sink) put(ctx context.Context, key string, body []byte, contentType string) error {
	cfg := s.Retry
	cfg.ShouldRetry = isTransientS3
	cfg.OnRetry = resilience.RetryLogger("s3", "put_object")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &s.Bucket,
			Key:         &key,
			Body:        bytes.NewReader(body),
			ContentType: &contentType,
		})
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "export: put s3://%s/%s", s.Bucket, key)
	}
	zap.L().Debug("export: uploaded object", zap.String("key", key), zap.Int("bytes", len(body)))
	return nil
}

func isTransientS3(err error) bool {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return resilience.IsTransientHTTPStatus(re.HTTPStatusCode())
	}
	return resilience.IsTransient(err)
}

// GoldenStore is the persistence the store sink writes through.
type GoldenStore interface {
	ReplaceGoldenRows(ctx context.Context, runID string, rows []model.GoldenTableRow) error
}

// StoreSink replaces a run's rows in the database in one transaction.
type StoreSink struct {
	Store     GoldenStore
	RunID     string
	TableName string
}

func (s *StoreSink) Name() string { return "store" }

// Write replaces the run's rows. The summary travels with the run record.
func (s *StoreSink) Write(ctx context.Context, rows []model.GoldenTableRow, summary *model.Summary) (string, error) {
	location := "store://" + s.TableName + "/" + s.RunID
	summary.TableLocation = location
	if err := s.Store.ReplaceGoldenRows(ctx, s.RunID, rows); err != nil {
		return "", err
	}
	return location, nil
}
