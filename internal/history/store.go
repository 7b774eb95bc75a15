package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"

	"github.com/i72421/pm-graph/internal/models"
)

// Store keeps completed analysis runs in a persistent DuckDB file so
// suspend/resume timings can be compared across captures. Run metadata and
// per-device timings are written once per analysis; everything else is
// read-side aggregation.
type Store struct {
	db   *sql.DB
	path string

	// DuckDB wants a single writer; reads can run concurrently but are
	// capped to keep aggregate queries from stacking up.
	writeMu  sync.Mutex
	querySem chan struct{}
}

// RunSummary is one recorded analysis run.
type RunSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Host         string    `json:"host,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	SuspendMs    float64   `json:"suspendMs"`
	ResumeMs     float64   `json:"resumeMs"`
	DeviceCount  int       `json:"deviceCount"`
	GraphCount   int       `json:"graphCount"`
	WarningCount int       `json:"warningCount"`
}

// DeviceAggregate is one device's timing summary across recorded runs.
type DeviceAggregate struct {
	Name    string  `json:"name"`
	Samples int     `json:"samples"`
	AvgUs   float64 `json:"avgUs"`
	MaxUs   float64 `json:"maxUs"`
}

// DeviceSample is one device's timing inside one recorded run.
type DeviceSample struct {
	RunID     string    `json:"runId"`
	CreatedAt time.Time `json:"createdAt"`
	Phase     string    `json:"phase"`
	LengthUs  float64   `json:"lengthUs"`
}

// ModeSummary aggregates the headline durations of every run captured with
// the same suspend mode.
type ModeSummary struct {
	Mode         string  `json:"mode"`
	Runs         int     `json:"runs"`
	AvgSuspendMs float64 `json:"avgSuspendMs"`
	MinSuspendMs float64 `json:"minSuspendMs"`
	MaxSuspendMs float64 `json:"maxSuspendMs"`
	AvgResumeMs  float64 `json:"avgResumeMs"`
	MinResumeMs  float64 `json:"minResumeMs"`
	MaxResumeMs  float64 `json:"maxResumeMs"`
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db := sql.OpenDB(connector)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id            VARCHAR PRIMARY KEY,
			created_at    TIMESTAMP NOT NULL,
			host          VARCHAR,
			mode          VARCHAR,
			suspend_ms    DOUBLE NOT NULL,
			resume_ms     DOUBLE NOT NULL,
			device_count  INTEGER NOT NULL,
			graph_count   INTEGER NOT NULL,
			warning_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS device_timings (
			run_id    VARCHAR NOT NULL,
			phase     VARCHAR NOT NULL,
			name      VARCHAR NOT NULL,
			start_s   DOUBLE NOT NULL,
			end_s     DOUBLE NOT NULL,
			length_us DOUBLE NOT NULL,
			pid       INTEGER NOT NULL,
			row_num   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timings_run ON device_timings(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timings_name ON device_timings(name)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create history schema: %w", err)
		}
	}

	logrus.WithField("path", path).Debug("History store opened")
	return &Store{
		db:       db,
		path:     path,
		querySem: make(chan struct{}, 3),
	}, nil
}

// acquire takes a query slot, honoring cancellation.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	select {
	case s.querySem <- struct{}{}:
		return func() { <-s.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecordRun stores one completed analysis: its per-device timings in bulk
// through the native Appender, then the run row itself. A run that fails
// midway is rolled back by run id.
func (s *Store) RecordRun(session *models.AnalysisSession, data *models.Data) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	if err := s.appendTimings(session.ID, data); err != nil {
		s.db.Exec("DELETE FROM device_timings WHERE run_id = ?", session.ID)
		return err
	}

	host, mode := "", ""
	if data.Stamp != nil {
		host, mode = data.Stamp.Host, data.Stamp.Mode
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, created_at, host, mode, suspend_ms, resume_ms, device_count, graph_count, warning_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, time.Now().UTC(), host, mode,
		data.SuspendTime(), data.ResumeTime(),
		data.DeviceCount(), data.GraphCount(), len(session.Errors),
	)
	if err != nil {
		s.db.Exec("DELETE FROM device_timings WHERE run_id = ?", session.ID)
		return fmt.Errorf("record run: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"run":     session.ID,
		"devices": data.DeviceCount(),
		"elapsed": time.Since(start),
	}).Debug("Run recorded to history")
	return nil
}

// appendTimings bulk-inserts every device record through the DuckDB
// Appender, which is far faster than row-at-a-time INSERTs.
func (s *Store) appendTimings(runID string, data *models.Data) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb connection")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "device_timings")
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		defer appender.Close()

		for _, phase := range data.Phases {
			for _, dev := range phase.SortedDevices() {
				err := appender.AppendRow(
					runID,
					phase.Name,
					dev.Name,
					dev.Start,
					dev.End,
					dev.Length,
					int32(dev.PID),
					int32(dev.Row),
				)
				if err != nil {
					return fmt.Errorf("append timing for %s: %w", dev.Name, err)
				}
			}
		}
		return appender.Flush()
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, host, mode, suspend_ms, resume_ms, device_count, graph_count, warning_count
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs query: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0, limit)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns one recorded run, or sql.ErrNoRows.
func (s *Store) Run(ctx context.Context, id string) (*RunSummary, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, host, mode, suspend_ms, resume_ms, device_count, graph_count, warning_count
		FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	r, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SlowestDevices aggregates device durations across all recorded runs,
// slowest average first. family narrows the scan to "suspend" or "resume"
// phases; empty means both. Unresolved durations are excluded.
func (s *Store) SlowestDevices(ctx context.Context, family string, limit int) ([]DeviceAggregate, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if limit <= 0 {
		limit = 20
	}
	pattern := "%"
	if family != "" {
		pattern = family + "%"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*) AS samples, AVG(length_us) AS avg_us, MAX(length_us) AS max_us
		FROM device_timings
		WHERE phase LIKE ? AND length_us >= 0
		GROUP BY name
		ORDER BY avg_us DESC
		LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("slowest devices query: %w", err)
	}
	defer rows.Close()

	aggs := make([]DeviceAggregate, 0, limit)
	for rows.Next() {
		var a DeviceAggregate
		if err := rows.Scan(&a.Name, &a.Samples, &a.AvgUs, &a.MaxUs); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// ModeSummaries groups recorded runs by suspend mode, most-used mode first.
func (s *Store) ModeSummaries(ctx context.Context) ([]ModeSummary, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, COUNT(*) AS runs,
			AVG(suspend_ms), MIN(suspend_ms), MAX(suspend_ms),
			AVG(resume_ms), MIN(resume_ms), MAX(resume_ms)
		FROM runs
		GROUP BY mode
		ORDER BY runs DESC, mode`)
	if err != nil {
		return nil, fmt.Errorf("mode summary query: %w", err)
	}
	defer rows.Close()

	var summaries []ModeSummary
	for rows.Next() {
		var m ModeSummary
		var mode sql.NullString
		err := rows.Scan(&mode, &m.Runs,
			&m.AvgSuspendMs, &m.MinSuspendMs, &m.MaxSuspendMs,
			&m.AvgResumeMs, &m.MinResumeMs, &m.MaxResumeMs)
		if err != nil {
			return nil, err
		}
		m.Mode = mode.String
		summaries = append(summaries, m)
	}
	return summaries, rows.Err()
}

// DeviceHistory returns one device's timing in every run it appears in,
// newest run first.
func (s *Store) DeviceHistory(ctx context.Context, name string, limit int) ([]DeviceSample, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.run_id, r.created_at, d.phase, d.length_us
		FROM device_timings d
		JOIN runs r ON r.id = d.run_id
		WHERE d.name = ?
		ORDER BY r.created_at DESC, d.phase
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("device history query: %w", err)
	}
	defer rows.Close()

	samples := make([]DeviceSample, 0, limit)
	for rows.Next() {
		var d DeviceSample
		if err := rows.Scan(&d.RunID, &d.CreatedAt, &d.Phase, &d.LengthUs); err != nil {
			return nil, err
		}
		samples = append(samples, d)
	}
	return samples, rows.Err()
}

// DeleteRun removes a run and its timings.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM device_timings WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("delete timings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// RunCount returns the number of recorded runs.
func (s *Store) RunCount(ctx context.Context) (int, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("run count query: %w", err)
	}
	return n, nil
}

// Close closes the database. The file stays; history persists across
// restarts.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanRun(rows *sql.Rows) (RunSummary, error) {
	var r RunSummary
	var host, mode sql.NullString
	err := rows.Scan(&r.ID, &r.CreatedAt, &host, &mode,
		&r.SuspendMs, &r.ResumeMs, &r.DeviceCount, &r.GraphCount, &r.WarningCount)
	if err != nil {
		return RunSummary{}, err
	}
	r.Host, r.Mode = host.String, mode.String
	return r, nil
}
