package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// Archiver exports completed batch runs to blob storage as JSONL, one
// wallet result per line. The primary store keeps the queryable copy; the
// archive is the durable, cheap record of every run.
type Archiver struct {
	blobs   domain.BlobStore
	results domain.ResultStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobs domain.BlobStore, results domain.ResultStore) *Archiver {
	return &Archiver{
		blobs:   blobs,
		results: results,
	}
}

// ArchiveRun uploads all wallet results of one run to
// runs/YYYY/MM/DD/<runID>.jsonl and returns the number of records written.
// A run that is already archived is skipped, so re-running a batch never
// duplicates archives.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string, at time.Time) (int64, error) {
	path := runPath(runID, at)

	exists, err := a.blobs.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive run %s: %w", runID, err)
	}
	if exists {
		return 0, nil
	}

	results, err := a.results.ListByRun(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive run %s query: %w", runID, err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(results)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive run %s marshal: %w", runID, err)
	}

	if err := a.blobs.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive run %s upload: %w", runID, err)
	}
	return int64(len(results)), nil
}

// runPath builds the S3 key for a run archive, partitioned by run date.
//
//	runs/2026/09/01/<runID>.jsonl
func runPath(runID string, at time.Time) string {
	return fmt.Sprintf("runs/%s/%s.jsonl", at.UTC().Format("2006/01/02"), runID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
