package result

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
)

// Repository persists results together with their experiment data.
type Repository interface {
	// Create inserts the result and its ExperimentData in one transaction.
	// It sets r.ID. Returns ErrReferenceIntegrity if the experiment is gone.
	Create(ctx context.Context, r *ExperimentResult) error

	// GetByID returns a result with its data. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*ExperimentResult, error)

	// List returns results in recording order.
	List(ctx context.Context, filter ListFilter) ([]ExperimentResult, error)

	// Latest returns the newest result of an experiment, or nil if it has none.
	Latest(ctx context.Context, experimentID string) (*ExperimentResult, error)

	// Delete removes a result and its data. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed result repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectResult = `
	SELECT r.id, r.experiment_id, r.start_time, r.total_counts, r.number_of_detectors,
		r.single_photon_rate, r.total_time, r.experiment_data_id,
		c.d1, c.d2, c.d3, c.d4, c.d5, c.d6, c.d7, c.d8
	FROM experiment_results r
	JOIN experiment_data d ON d.id = r.experiment_data_id
	JOIN countrates c ON c.id = d.countrates_id`

// Create inserts countrates, experiment data, coincidences and the result row.
func (r *SQLiteRepository) Create(ctx context.Context, res *ExperimentResult) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		cr := res.ExperimentData.CountratePerDetector
		out, err := tx.ExecContext(ctx,
			`INSERT INTO countrates (d1, d2, d3, d4, d5, d6, d7, d8) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			nullableCount(cr.D1), nullableCount(cr.D2), nullableCount(cr.D3), nullableCount(cr.D4),
			nullableCount(cr.D5), nullableCount(cr.D6), nullableCount(cr.D7), nullableCount(cr.D8),
		)
		if err != nil {
			return fmt.Errorf("inserting countrates: %w", err)
		}
		countratesID, _ := out.LastInsertId() //nolint:errcheck // always succeeds on SQLite

		out, err = tx.ExecContext(ctx, `INSERT INTO experiment_data (countrates_id) VALUES (?)`, countratesID)
		if err != nil {
			return fmt.Errorf("inserting experiment data: %w", err)
		}
		dataID, _ := out.LastInsertId() //nolint:errcheck // always succeeds on SQLite

		coincidences := res.ExperimentData.EncodedQubitMeasurements
		for _, label := range coincidences.Labels() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO coincidences (experiment_data_id, label, count) VALUES (?, ?, ?)`,
				dataID, label, int64(coincidences[label]), //nolint:gosec // bounded by validation
			); err != nil {
				return fmt.Errorf("inserting coincidence %q: %w", label, err)
			}
		}

		out, err = tx.ExecContext(ctx, `
			INSERT INTO experiment_results (
				experiment_id, start_time, total_counts, number_of_detectors,
				single_photon_rate, total_time, experiment_data_id
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nullableString(res.ExperimentID),
			database.FormatTime(res.StartTime),
			int64(res.TotalCounts), //nolint:gosec // bounded by validation
			res.NumberOfDetectors,
			res.SinglePhotonRate,
			int64(res.TotalTime), //nolint:gosec // bounded by validation
			dataID,
		)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrReferenceIntegrity
			}
			return fmt.Errorf("inserting result: %w", err)
		}
		res.ID, _ = out.LastInsertId() //nolint:errcheck // always succeeds on SQLite
		return nil
	})
}

// GetByID retrieves a result by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*ExperimentResult, error) {
	row := r.db.QueryRowContext(ctx, selectResult+` WHERE r.id = ?`, id)
	res, dataID, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying result by id: %w", err)
	}

	if res.ExperimentData.EncodedQubitMeasurements, err = r.coincidences(ctx, dataID); err != nil {
		return nil, err
	}
	return res, nil
}

// List retrieves results ordered by start time, then insertion order.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]ExperimentResult, error) {
	query := selectResult
	var args []any
	if filter.ExperimentID != "" {
		query += ` WHERE r.experiment_id = ?`
		args = append(args, filter.ExperimentID)
	}
	query += ` ORDER BY r.start_time, r.id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var (
		results []ExperimentResult
		dataIDs []int64
	)
	for rows.Next() {
		res, dataID, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, *res)
		dataIDs = append(dataIDs, dataID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	rows.Close()

	// The pool holds a single connection, so children are loaded only
	// after the parent cursor is closed.
	for i := range results {
		if results[i].ExperimentData.EncodedQubitMeasurements, err = r.coincidences(ctx, dataIDs[i]); err != nil {
			return nil, err
		}
	}
	if results == nil {
		results = []ExperimentResult{}
	}
	return results, nil
}

// Latest returns the newest result for an experiment.
func (r *SQLiteRepository) Latest(ctx context.Context, experimentID string) (*ExperimentResult, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM experiment_results
		WHERE experiment_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT 1`, experimentID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest result: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes the result row, its experiment data, coincidences and countrates.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var dataID, countratesID int64
		err := tx.QueryRowContext(ctx, `
			SELECT d.id, d.countrates_id
			FROM experiment_results r JOIN experiment_data d ON d.id = r.experiment_data_id
			WHERE r.id = ?`, id,
		).Scan(&dataID, &countratesID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("locating result data: %w", err)
		}

		for _, stmt := range []struct {
			query string
			arg   int64
		}{
			{`DELETE FROM experiment_results WHERE id = ?`, id},
			{`DELETE FROM experiment_data WHERE id = ?`, dataID},
			{`DELETE FROM countrates WHERE id = ?`, countratesID},
		} {
			if _, err := tx.ExecContext(ctx, stmt.query, stmt.arg); err != nil {
				return fmt.Errorf("deleting result %d: %w", id, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) coincidences(ctx context.Context, dataID int64) (Coincidences, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT label, count FROM coincidences WHERE experiment_data_id = ? ORDER BY label`, dataID)
	if err != nil {
		return nil, fmt.Errorf("querying coincidences: %w", err)
	}
	defer rows.Close()

	out := Coincidences{}
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("scanning coincidence: %w", err)
		}
		out[label] = uint64(count) //nolint:gosec // column has CHECK (count >= 0)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating coincidences: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*ExperimentResult, int64, error) {
	var (
		res          ExperimentResult
		experimentID sql.NullString
		startTime    string
		totalCounts  int64
		totalTime    int64
		dataID       int64
		d            [8]sql.NullInt64
	)
	err := row.Scan(
		&res.ID, &experimentID, &startTime, &totalCounts, &res.NumberOfDetectors,
		&res.SinglePhotonRate, &totalTime, &dataID,
		&d[0], &d[1], &d[2], &d[3], &d[4], &d[5], &d[6], &d[7],
	)
	if err != nil {
		return nil, 0, err
	}

	if experimentID.Valid {
		res.ExperimentID = &experimentID.String
	}
	if res.StartTime, err = database.ParseTime(startTime); err != nil {
		return nil, 0, err
	}
	res.TotalCounts = uint64(totalCounts) //nolint:gosec // column has CHECK (>= 0)
	res.TotalTime = uint64(totalTime)     //nolint:gosec // column has CHECK (>= 0)

	cr := &res.ExperimentData.CountratePerDetector
	for i, dst := range []**uint64{&cr.D1, &cr.D2, &cr.D3, &cr.D4, &cr.D5, &cr.D6, &cr.D7, &cr.D8} {
		if d[i].Valid {
			v := uint64(d[i].Int64) //nolint:gosec // column has CHECK (>= 0)
			*dst = &v
		}
	}
	return &res, dataID, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableCount(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true} //nolint:gosec // bounded by validation
}
