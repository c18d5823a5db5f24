// Package pipeline drives a reading session end to end: it pulls batches,
// filters them, routes data-quality issues and hands the rest to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"geo-ingest/internal/geo"
	geoio "geo-ingest/internal/io"
	"geo-ingest/internal/logging"
	"geo-ingest/internal/util"

	"github.com/twpayne/go-geom/encoding/wkt"
)

// dryRunSampleSize is the number of records logged in dry-run mode.
const dryRunSampleSize = 5

// Source is the pull side of a reading session. *geo.BatchReader implements it.
type Source interface {
	NextBatch() (*geo.Batch, error)
}

// Summary reports the counts of one run.
type Summary struct {
	Batches  int
	Read     int64 // features pulled from the source
	Kept     int64 // features that passed the filter
	Written  int64 // features handed to the sink; zero in dry-run mode
	Filtered int64
	Issues   int64
}

// Run pulls batches from src until io.EOF and writes each processed batch to
// sink. Cancellation is checked between batches. The summary is valid up to
// the point of failure when an error is returned.
func Run(ctx context.Context, src Source, proc Processor, sink geoio.BatchWriter, dryRun bool) (Summary, error) {
	var summary Summary
	sampled := 0

	for {
		if err := ctx.Err(); err != nil {
			return finish(summary, proc), fmt.Errorf("ingest cancelled after %d features: %w", summary.Read, err)
		}

		batch, err := src.NextBatch()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return finish(summary, proc), fmt.Errorf("failed to read batch %d: %w", summary.Batches+1, err)
		}
		summary.Batches++
		summary.Read += int64(batch.Len())
		logging.Logf(logging.Debug, "Batch %d: features %d-%d (%d issues)", summary.Batches, batch.Offset, batch.End()-1, len(batch.Issues))

		out, err := proc.ProcessBatch(batch)
		if err != nil {
			return finish(summary, proc), fmt.Errorf("failed to process batch at offset %d: %w", batch.Offset, err)
		}
		if out == nil || out.Len() == 0 {
			continue
		}
		summary.Kept += int64(out.Len())

		if dryRun {
			sampled += logSample(out, dryRunSampleSize-sampled)
			continue
		}
		if err := sink.Write(out); err != nil {
			return finish(summary, proc), fmt.Errorf("failed to write batch at offset %d: %w", batch.Offset, err)
		}
		summary.Written += int64(out.Len())
	}

	summary = finish(summary, proc)
	logging.Logf(logging.Info, "Total number of features: %d", summary.Read)
	return summary, nil
}

func finish(summary Summary, proc Processor) Summary {
	summary.Filtered = proc.GetFilteredCount()
	summary.Issues = proc.GetIssueCount()
	return summary
}

// logSample logs up to limit records of a batch, masked, and returns how many it logged.
func logSample(batch *geo.Batch, limit int) int {
	if limit <= 0 || !logging.Enabled(logging.Debug) {
		return 0
	}
	n := batch.Len()
	if n > limit {
		n = limit
	}
	for i := 0; i < n; i++ {
		rec := batch.Records[i]
		shape := "<null>"
		if rec.Geometry != nil {
			if s, err := wkt.Marshal(rec.Geometry); err != nil {
				shape = "<unencodable: " + err.Error() + ">"
			} else {
				shape = util.Snippet([]byte(s))
			}
		}
		logging.Logf(logging.Debug, "DRY RUN feature %d: %v geometry=%s", batch.Offset+int64(i), util.MaskSensitiveData(rec.Values()), shape)
	}
	return n
}
