package io

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"geo-ingest/internal/geo"
	"geo-ingest/internal/logging"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxInitialSheet = "Sheet1" // Sheet created by excelize.NewFile
	xlsxMaxRows      = 1048576  // Excel row limit, header included
	xlsxMaxCellChars = 32767    // Excel cell text limit
)

// XLSXWriter implements BatchWriter for Excel (.xlsx) files using the excelize
// stream writer, so rows are not held in memory as cell objects.
type XLSXWriter struct {
	filePath       string
	sheetName      string
	geometryColumn string
	encode         geometryEncoder
	mu             sync.Mutex
	file           *excelize.File
	stream         *excelize.StreamWriter
	headers        []string
	nextRow        int
	closed         bool
}

// NewXLSXWriter creates a new XLSXWriter. The workbook is saved on Close.
func NewXLSXWriter(filePath, sheetName, geometryFormat, geometryColumn string) (*XLSXWriter, error) {
	enc, err := newGeometryEncoder(geometryFormat)
	if err != nil {
		return nil, err
	}
	if sheetName == "" {
		sheetName = xlsxInitialSheet
	}
	return &XLSXWriter{
		filePath:       filePath,
		sheetName:      sheetName,
		geometryColumn: geometryColumn,
		encode:         enc,
		nextRow:        1,
	}, nil
}

func (xw *XLSXWriter) open() error {
	f := excelize.NewFile()
	if xw.sheetName != xlsxInitialSheet {
		if err := f.SetSheetName(xlsxInitialSheet, xw.sheetName); err != nil {
			f.Close()
			return fmt.Errorf("XLSXWriter failed to name sheet '%s': %w", xw.sheetName, err)
		}
	}
	sw, err := f.NewStreamWriter(xw.sheetName)
	if err != nil {
		f.Close()
		return fmt.Errorf("XLSXWriter failed to create stream writer for sheet '%s': %w", xw.sheetName, err)
	}
	xw.file = f
	xw.stream = sw
	return nil
}

func (xw *XLSXWriter) writeRow(values []interface{}) error {
	if xw.nextRow > xlsxMaxRows {
		return fmt.Errorf("XLSXWriter: sheet '%s' is full (%d rows)", xw.sheetName, xlsxMaxRows)
	}
	cell, err := excelize.CoordinatesToCellName(1, xw.nextRow)
	if err != nil {
		return fmt.Errorf("XLSXWriter failed to calculate cell coordinates for row %d: %w", xw.nextRow, err)
	}
	if err := xw.stream.SetRow(cell, values); err != nil {
		return fmt.Errorf("XLSXWriter failed to write row %d to sheet '%s': %w", xw.nextRow, xw.sheetName, err)
	}
	xw.nextRow++
	return nil
}

// Write streams the rows of one batch into the sheet.
func (xw *XLSXWriter) Write(batch *geo.Batch) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return errors.New("XLSXWriter: write called on closed writer")
	}
	if xw.file == nil {
		if err := xw.open(); err != nil {
			return err
		}
	}
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	if xw.headers == nil {
		xw.headers = tableHeaders(batch.Fields, xw.geometryColumn)
		header := make([]interface{}, len(xw.headers))
		for i, h := range xw.headers {
			header[i] = h
		}
		if err := xw.writeRow(header); err != nil {
			return err
		}
	}

	for i, rec := range batch.Records {
		row := make([]interface{}, len(batch.Fields)+1)
		for j, field := range batch.Fields {
			value := cellValue(rec.Get(field))
			if bVal, ok := value.(bool); ok {
				value = strconv.FormatBool(bVal)
			}
			row[j] = value
		}
		geom, err := xw.encode(rec.Geometry)
		if err != nil {
			return fmt.Errorf("XLSXWriter failed to encode geometry of feature %d: %w", batch.Offset+int64(i), err)
		}
		if len(geom) > xlsxMaxCellChars {
			logging.Logf(logging.Warning, "XLSXWriter: geometry of feature %d exceeds %d characters and was truncated", batch.Offset+int64(i), xlsxMaxCellChars)
			geom = geom[:xlsxMaxCellChars]
		}
		row[len(row)-1] = geom
		if err := xw.writeRow(row); err != nil {
			return err
		}
	}
	logging.Logf(logging.Debug, "XLSXWriter streamed %d rows to sheet '%s'", batch.Len(), xw.sheetName)
	return nil
}

// Close flushes the stream and saves the workbook. An empty workbook is saved
// when nothing was written. Safe to call multiple times.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return nil
	}
	xw.closed = true
	if xw.file == nil {
		if err := xw.open(); err != nil {
			return err
		}
	}
	defer func() {
		xw.file.Close()
		xw.file = nil
		xw.stream = nil
	}()

	if err := xw.stream.Flush(); err != nil {
		return fmt.Errorf("XLSXWriter failed to flush sheet '%s': %w", xw.sheetName, err)
	}
	if err := ensureDir(xw.filePath); err != nil {
		return fmt.Errorf("XLSXWriter failed to create directory for '%s': %w", xw.filePath, err)
	}
	if err := xw.file.SaveAs(xw.filePath); err != nil {
		return fmt.Errorf("XLSXWriter failed to save file '%s': %w", xw.filePath, err)
	}
	logging.Logf(logging.Info, "XLSXWriter wrote %d data rows to sheet '%s' in %s", max(xw.nextRow-2, 0), xw.sheetName, xw.filePath)
	return nil
}
