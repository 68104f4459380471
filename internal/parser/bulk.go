package parser

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/sells-group/space-cli/internal/model"
)

// SequenceKeys are the bulk-export keys that may carry the sequence, in
// lookup order. Matching is case-insensitive.
var SequenceKeys = []string{"sequence", "seq", "dna_sequence", "full_sequence"}

// parseBulkJSON reads exactly one structured-metadata record. The sequence
// key is consumed; every other key is kept verbatim in RawAnnotations for
// the extractor's field mapping.
func parseBulkJSON(r io.Reader) (*model.RawRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &MalformedInputError{Reason: "invalid JSON", Err: err}
	}
	if dec.More() {
		return nil, malformed("more than one JSON value in bulk record")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		// A one-element array is accepted as a single record.
		arr, isArr := raw.([]any)
		if !isArr || len(arr) != 1 {
			return nil, malformed("bulk record must be a single JSON object")
		}
		if obj, ok = arr[0].(map[string]any); !ok {
			return nil, malformed("bulk record must be a single JSON object")
		}
	}

	rec := &model.RawRecord{RawAnnotations: make(map[string]any, len(obj))}
	for k, v := range obj {
		if sequenceKeyRank(k) < 0 {
			rec.RawAnnotations[k] = v
		}
	}
	best := len(SequenceKeys)
	for k, v := range obj {
		rank := sequenceKeyRank(k)
		s, ok := v.(string)
		if rank < 0 || !ok || rank >= best {
			continue
		}
		if seq := stripSequence(s); seq != "" {
			rec.Sequence, best = seq, rank
		}
	}
	if rec.Sequence == "" {
		return nil, malformed("bulk record has no sequence")
	}
	return rec, nil
}

func sequenceKeyRank(k string) int {
	for i, s := range SequenceKeys {
		if strings.EqualFold(k, s) {
			return i
		}
	}
	return -1
}
