package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/space-cli/internal/model"
)

// ClassifiedSuffix names per-sample classified documents.
const ClassifiedSuffix = "_classified.json"

// WriteClassified writes rec to <dir>/<sample_id>_classified.json.
func WriteClassified(dir string, rec model.ClassifiedRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create %s", dir)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "export: encode classified %s", rec.SampleID)
	}
	path := filepath.Join(dir, rec.SampleID+ClassifiedSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}

// LoadClassified reads every *_classified.json document in dir, sorted by
// file name. A document that fails to decode is reported through rejects
// and skipped.
func LoadClassified(dir string) (records []model.ClassifiedRecord, rejects []model.RejectedRecord, err error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ClassifiedSuffix))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "export: list %s", dir)
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "export: read %s", path)
		}
		var rec model.ClassifiedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			base := filepath.Base(path)
			rejects = append(rejects, model.RejectedRecord{
				SampleID: base[:len(base)-len(ClassifiedSuffix)],
				Path:     path,
				Category: model.ErrorCategoryMalformed,
				Reason:   "decode classified record: " + err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}
	return records, rejects, nil
}
