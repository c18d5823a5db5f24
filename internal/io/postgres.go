package io

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"geo-ingest/internal/config"
	"geo-ingest/internal/geo"
	"geo-ingest/internal/logging"
	"geo-ingest/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgPool is the subset of *pgxpool.Pool the writer uses.
type pgPool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// pgxPoolNewFunc allows overriding pool creation for testing.
var pgxPoolNewFunc = func(ctx context.Context, connString string) (pgPool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Default database connection and query timeout
const defaultDbTimeout = 30 * time.Second

// PostgresWriter implements BatchWriter for PostgreSQL destinations. The pool
// is opened on the first non-empty batch and held until Close; each batch is
// loaded in its own COPY or transaction.
type PostgresWriter struct {
	connStr        string
	targetTable    string
	loaderCfg      *config.LoaderConfig
	geometryColumn string
	encode         geometryEncoder

	mu      sync.Mutex
	pool    pgPool
	written int64
	closed  bool
}

// NewPostgresWriter creates a new PostgresWriter instance.
func NewPostgresWriter(connStr, targetTable string, loaderCfg *config.LoaderConfig, geometryFormat, geometryColumn string) (*PostgresWriter, error) {
	enc, err := newGeometryEncoder(geometryFormat)
	if err != nil {
		return nil, err
	}
	return &PostgresWriter{
		connStr:        connStr,
		targetTable:    targetTable,
		loaderCfg:      loaderCfg,
		geometryColumn: geometryColumn,
		encode:         enc,
	}, nil
}

func (pw *PostgresWriter) useCustomSQL() bool {
	return pw.loaderCfg != nil && strings.ToLower(pw.loaderCfg.Mode) == config.LoaderModeSQL
}

// tableIdentifier splits "schema.table" into a quoted identifier.
func (pw *PostgresWriter) tableIdentifier() pgx.Identifier {
	return pgx.Identifier(strings.Split(pw.targetTable, "."))
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded
}

// connect opens the pool and runs the preload commands. Caller holds the lock.
func (pw *PostgresWriter) connect(ctx context.Context) error {
	expandedConnStr := util.ExpandEnvUniversal(pw.connStr)
	pool, err := pgxPoolNewFunc(ctx, expandedConnStr)
	if err != nil {
		maskedConnStr := util.MaskCredentials(expandedConnStr)
		logging.Logf(logging.Error, "PostgresWriter failed to create connection pool: %s", maskedConnStr)
		return fmt.Errorf("PostgresWriter failed to create connection pool (using %s): %w", maskedConnStr, err)
	}
	pw.pool = pool

	if pw.loaderCfg != nil && len(pw.loaderCfg.Preload) > 0 {
		if err := pw.executeSQLCommands(ctx, pw.loaderCfg.Preload, "preload"); err != nil {
			pool.Close()
			pw.pool = nil
			return err
		}
	}
	if pw.useCustomSQL() {
		logging.Logf(logging.Info, "Using custom SQL loader for table '%s'.", pw.targetTable)
	} else {
		logging.Logf(logging.Info, "Using default COPY FROM loader for table '%s'.", pw.targetTable)
	}
	return nil
}

// batchRows converts a batch into parameter rows ordered like tableHeaders.
func (pw *PostgresWriter) batchRows(batch *geo.Batch) ([][]interface{}, error) {
	rows := make([][]interface{}, len(batch.Records))
	for i, rec := range batch.Records {
		row := make([]interface{}, len(batch.Fields)+1)
		for j, field := range batch.Fields {
			row[j] = pgValue(rec.Get(field))
		}
		if rec.Geometry != nil {
			geom, err := pw.encode(rec.Geometry)
			if err != nil {
				return nil, fmt.Errorf("PostgresWriter failed to encode geometry of feature %d: %w", batch.Offset+int64(i), err)
			}
			row[len(row)-1] = geom
		}
		rows[i] = row
	}
	return rows, nil
}

// pgValue keeps native types pgx can encode; dates stay time.Time and binary stays []byte.
func pgValue(v geo.Value) interface{} {
	switch v.Kind() {
	case geo.KindNull:
		return nil
	case geo.KindBytes:
		return v.RawBytes()
	default:
		return v.Interface()
	}
}

// Write loads one batch into the target table.
func (pw *PostgresWriter) Write(batch *geo.Batch) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return errors.New("PostgresWriter: write called on closed writer")
	}
	if batch == nil || batch.Len() == 0 {
		logging.Logf(logging.Debug, "PostgresWriter: No records to write to table '%s'. Skipping.", pw.targetTable)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDbTimeout*10)
	defer cancel()

	if pw.pool == nil {
		if err := pw.connect(ctx); err != nil {
			return err
		}
	}

	columns := tableHeaders(batch.Fields, pw.geometryColumn)
	rows, err := pw.batchRows(batch)
	if err != nil {
		return err
	}

	var loadErr error
	if pw.useCustomSQL() {
		loadErr = pw.loadWithCustomSQL(ctx, batch.Offset, rows)
	} else {
		loadErr = pw.loadUsingCopy(ctx, columns, rows)
	}
	if loadErr != nil {
		if isTimeout(ctx, loadErr) {
			return fmt.Errorf("PostgresWriter data loading operation timed out: %w", loadErr)
		}
		return loadErr
	}
	pw.written += int64(len(rows))
	return nil
}

// executeSQLCommands executes preload/postload commands within a single transaction.
func (pw *PostgresWriter) executeSQLCommands(ctx context.Context, commands []string, commandType string) error {
	if len(commands) == 0 {
		return nil
	}
	logging.Logf(logging.Debug, "PostgresWriter (%s): Starting transaction for %d commands.", commandType, len(commands))
	tx, err := pw.pool.Begin(ctx)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("PostgresWriter (%s): timed out starting transaction: %w", commandType, ctx.Err())
		}
		return fmt.Errorf("PostgresWriter (%s): failed to begin transaction: %w", commandType, err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(tx, commandType)
		}
	}()

	for i, cmd := range commands {
		logging.Logf(logging.Debug, "Executing %s command #%d: %s", commandType, i+1, cmd)
		if _, err := tx.Exec(ctx, cmd); err != nil {
			if isTimeout(ctx, err) {
				return fmt.Errorf("PostgresWriter (%s): command #%d timed out: %w", commandType, i+1, ctx.Err())
			}
			return fmt.Errorf("PostgresWriter (%s): command #%d failed ('%s'): %w", commandType, i+1, cmd, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("PostgresWriter (%s): failed to commit transaction: %w", commandType, err)
	}
	committed = true
	logging.Logf(logging.Info, "PostgresWriter (%s): Successfully executed and committed %d commands.", commandType, len(commands))
	return nil
}

// rollback uses a fresh context so a cancelled load can still be rolled back.
func rollback(tx pgx.Tx, label string) {
	rbCtx, rbCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rbCancel()
	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logging.Logf(logging.Error, "PostgresWriter (%s): Failed to rollback transaction: %v", label, err)
	}
}

// loadUsingCopy loads one batch using the PostgreSQL COPY FROM protocol.
func (pw *PostgresWriter) loadUsingCopy(ctx context.Context, columns []string, rows [][]interface{}) error {
	copyCount, err := pw.pool.CopyFrom(ctx, pw.tableIdentifier(), columns, pgx.CopyFromRows(rows))
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("PostgresWriter (COPY): operation timed out for table '%s': %w", pw.targetTable, ctx.Err())
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			logging.Logf(logging.Error, "PostgresWriter (COPY) failed for table '%s'. PG Error Code: %s, Message: %s, Detail: %s", pw.targetTable, pgErr.Code, pgErr.Message, pgErr.Detail)
		} else {
			logging.Logf(logging.Error, "PostgresWriter (COPY) failed for table '%s'. Error: %v", pw.targetTable, err)
		}
		return fmt.Errorf("PostgresWriter (COPY) failed for table '%s': %w", pw.targetTable, err)
	}
	if copyCount != int64(len(rows)) {
		logging.Logf(logging.Warning, "PostgresWriter (COPY): Expected to copy %d rows to table '%s', but driver reported %d rows copied.", len(rows), pw.targetTable, copyCount)
	} else {
		logging.Logf(logging.Debug, "PostgresWriter (COPY): Inserted %d rows into table '%s'.", copyCount, pw.targetTable)
	}
	return nil
}

// loadWithCustomSQL runs the configured command once per feature, all queued
// in one pgx.Batch inside one transaction. Any failure rolls back the whole batch.
func (pw *PostgresWriter) loadWithCustomSQL(ctx context.Context, offset int64, rows [][]interface{}) error {
	first, last := offset, offset+int64(len(rows))-1
	tx, err := pw.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("PostgresWriter (SQL): failed to begin transaction for features %d-%d: %w", first, last, err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(tx, "SQL")
		}
	}()

	batch := &pgx.Batch{}
	for _, params := range rows {
		batch.Queue(pw.loaderCfg.Command, params...)
	}
	br := tx.SendBatch(ctx, batch)

	var firstBatchErr error
	for k := range rows {
		if _, execErr := br.Exec(); execErr != nil {
			firstBatchErr = fmt.Errorf("command for feature %d failed: %w", offset+int64(k), execErr)
			break
		}
	}
	if closeErr := br.Close(); closeErr != nil && firstBatchErr == nil {
		firstBatchErr = fmt.Errorf("failed closing batch results for features %d-%d: %w", first, last, closeErr)
	}
	if firstBatchErr != nil {
		logging.Logf(logging.Error, "PostgresWriter (SQL): features %d-%d failed, rolling back transaction: %v", first, last, firstBatchErr)
		return fmt.Errorf("PostgresWriter (SQL): features %d-%d failed: %w", first, last, firstBatchErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("PostgresWriter (SQL): failed to commit transaction for features %d-%d: %w", first, last, err)
	}
	committed = true
	logging.Logf(logging.Debug, "PostgresWriter (SQL): Committed features %d-%d.", first, last)
	return nil
}

// Close runs the postload commands (only when something was loaded) and
// closes the pool. Safe to call multiple times.
func (pw *PostgresWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return nil
	}
	pw.closed = true
	if pw.pool == nil {
		logging.Logf(logging.Debug, "PostgresWriter Close called, no connection was opened.")
		return nil
	}
	defer func() {
		pw.pool.Close()
		pw.pool = nil
	}()

	if pw.loaderCfg != nil && len(pw.loaderCfg.Postload) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), defaultDbTimeout)
		defer cancel()
		if err := pw.executeSQLCommands(ctx, pw.loaderCfg.Postload, "postload"); err != nil {
			return err
		}
	}
	logging.Logf(logging.Info, "PostgresWriter successfully wrote %d records to table '%s'.", pw.written, pw.targetTable)
	return nil
}
