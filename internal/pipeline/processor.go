package pipeline

import (
	"fmt"
	"strings"
	"sync/atomic"

	"geo-ingest/internal/config"
	"geo-ingest/internal/geo"
	geoio "geo-ingest/internal/io"
	"geo-ingest/internal/logging"
	"geo-ingest/internal/util"

	"github.com/Knetic/govaluate"
)

// Processor defines the interface for processing batches between the reader and the sink.
// This allows mocking the processor implementation in tests.
type Processor interface {
	ProcessBatch(batch *geo.Batch) (*geo.Batch, error)
	GetIssueCount() int64
	GetFilteredCount() int64
}

// expressionEvaluator defines the interface for evaluating filter expressions.
type expressionEvaluator interface {
	Evaluate(map[string]interface{}) (interface{}, error)
}

// newExpressionEvaluatorFunc compiles a filter. Tests may replace it.
var newExpressionEvaluatorFunc = func(expr string) (expressionEvaluator, error) {
	evalExpr, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, err
	}
	return evalExpr, nil
}

// processorImpl filters records and routes data-quality issues.
// It implements the Processor interface.
type processorImpl struct {
	filterExpr    string
	filter        expressionEvaluator
	mode          string
	issueWriter   geoio.IssueWriter
	issueCount    atomic.Int64
	filteredCount atomic.Int64
}

// NewProcessor creates a Processor. An empty filter keeps every record; a nil
// data-quality config means report mode. issueWriter may be nil.
func NewProcessor(filter string, dataQuality *config.DataQualityConfig, issueWriter geoio.IssueWriter) (Processor, error) {
	mode := config.DataQualityModeReport
	if dataQuality != nil && dataQuality.Mode != "" {
		mode = strings.ToLower(dataQuality.Mode)
	}

	p := &processorImpl{
		filterExpr:  filter,
		mode:        mode,
		issueWriter: issueWriter,
	}
	if filter != "" {
		eval, err := newExpressionEvaluatorFunc(filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter expression '%s': %w", filter, err)
		}
		p.filter = eval
	}
	return p, nil
}

// GetIssueCount returns the number of data-quality issues seen on kept records.
func (p *processorImpl) GetIssueCount() int64 {
	return p.issueCount.Load()
}

// GetFilteredCount returns the number of records dropped by the filter.
func (p *processorImpl) GetFilteredCount() int64 {
	return p.filteredCount.Load()
}

// ProcessBatch applies the filter, then handles the issues of the records
// that survive it. In halt mode the first issue aborts with an error that
// matches geo.ErrDataQuality. The input batch is never modified.
func (p *processorImpl) ProcessBatch(batch *geo.Batch) (*geo.Batch, error) {
	if batch == nil || batch.Len() == 0 {
		return batch, nil
	}

	out := batch
	if p.filter != nil {
		out = p.applyFilter(batch)
	}
	if err := p.handleIssues(batch, out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyFilter returns a new batch holding only the records the filter keeps.
// Offset stays that of the source batch.
func (p *processorImpl) applyFilter(batch *geo.Batch) *geo.Batch {
	kept := &geo.Batch{
		Offset:  batch.Offset,
		Records: make([]geo.Record, 0, batch.Len()),
		Fields:  batch.Fields,
	}
	byOffset := make(map[int64][]geo.DataQualityIssue, len(batch.Issues))
	for _, issue := range batch.Issues {
		byOffset[issue.Offset] = append(byOffset[issue.Offset], issue)
	}
	skipped := 0
	for i, record := range batch.Records {
		offset := batch.Offset + int64(i)
		params := record.Values()
		result, err := p.filter.Evaluate(params)
		if err != nil {
			logging.Logf(logging.Error, "Filter failed on feature %d: %v. Skipping. Record (masked): %v", offset, err, util.MaskSensitiveData(params))
			skipped++
			continue
		}
		keep, isBool := result.(bool)
		if !isBool {
			logging.Logf(logging.Error, "Filter returned non-boolean for feature %d (type %T): %v. Skipping.", offset, result, result)
			skipped++
			continue
		}
		if !keep {
			logging.Logf(logging.Debug, "Feature %d skipped by filter.", offset)
			skipped++
			continue
		}
		kept.Records = append(kept.Records, record)
		kept.Issues = append(kept.Issues, byOffset[offset]...)
	}
	p.filteredCount.Add(int64(skipped))
	if skipped > 0 {
		logging.Logf(logging.Debug, "Filter '%s' on batch at offset %d: %d kept, %d skipped.", p.filterExpr, batch.Offset, kept.Len(), skipped)
	}
	return kept
}

func (p *processorImpl) handleIssues(source, kept *geo.Batch) error {
	if dropped := len(source.Issues) - len(kept.Issues); dropped > 0 {
		logging.Logf(logging.Debug, "Ignoring %d data-quality issues on filtered features.", dropped)
	}
	for _, issue := range kept.Issues {
		p.issueCount.Add(1)
		if p.mode == config.DataQualityModeHalt {
			logging.Logf(logging.Error, "Data quality: %v. Halting.", issue)
			return fmt.Errorf("data-quality check failed (halting): %w", issue)
		}
		logging.Logf(logging.Warning, "Data quality: %v", issue)
		if p.issueWriter != nil {
			if err := p.issueWriter.Write(issue); err != nil {
				logging.Logf(logging.Error, "Failed to write issue for feature %d to issue file: %v", issue.Offset, err)
			}
		}
	}
	return nil
}
