package experiment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
)

// Repository defines experiment persistence. Compute settings are always
// read and written together with their experiment.
type Repository interface {
	// Create inserts the experiment and its whole ComputeSettings aggregate
	// in one transaction. Nothing is stored if any part fails.
	Create(ctx context.Context, e *Experiment) error

	// GetByID retrieves an experiment. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Experiment, error)

	// List returns experiments in creation order. An empty ownerID lists all.
	List(ctx context.Context, ownerID string) ([]Experiment, error)

	// Update writes the mutable scalar fields (name, circuit, project,
	// runtime, status). Returns ErrNotFound if absent.
	Update(ctx context.Context, e *Experiment) error

	// Delete removes an experiment and its compute settings. Results that
	// reference it keep their row with the reference set to NULL.
	Delete(ctx context.Context, id string) error

	// OldestQueued returns the head of the queue, or nil if it is empty.
	OldestQueued(ctx context.Context) (*Experiment, error)

	// OwnerOf returns the owning user of an experiment.
	OwnerOf(ctx context.Context, id string) (owner string, found bool, err error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed experiment repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectExperiment = `
	SELECT e.id, e.experiment_name, e.circuit_id, e.project_id, e.max_runtime,
		e.status, e.user_id, e.created_at, e.compute_settings_id,
		cs.amount_qubits, cs.preset_settings,
		qc.id, qc.circuit_configuration
	FROM experiments e
	JOIN compute_settings s ON s.id = e.compute_settings_id
	JOIN cluster_states cs ON cs.id = s.cluster_state_id
	JOIN qubit_computings qc ON qc.id = s.qubit_computing_id`

// Create builds the aggregate bottom-up: cluster state, qubit computing and
// its angles, compute settings and measurements, then the experiment row.
func (r *SQLiteRepository) Create(ctx context.Context, e *Experiment) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		settingsID, err := insertComputeSettings(ctx, tx, &e.ComputeSettings)
		if err != nil {
			return err
		}

		now := database.FormatTime(e.Created)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO experiments (
				id, experiment_name, circuit_id, project_id, max_runtime,
				status, user_id, compute_settings_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ExperimentID, e.ExperimentName, e.CircuitID, nullableString(e.ProjectID),
			e.MaxRuntime, string(e.Status), e.UserID, settingsID, now, now,
		)
		if err != nil {
			return fmt.Errorf("inserting experiment: %w", err)
		}
		return nil
	})
}

func insertComputeSettings(ctx context.Context, tx *sql.Tx, cs *ComputeSettings) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO cluster_states (amount_qubits, preset_settings) VALUES (?, ?)`,
		cs.ClusterState.AmountQubits, string(cs.ClusterState.PresetSettings))
	if err != nil {
		return 0, fmt.Errorf("inserting cluster state: %w", err)
	}
	clusterID, _ := res.LastInsertId() //nolint:errcheck // always succeeds on SQLite

	res, err = tx.ExecContext(ctx,
		`INSERT INTO qubit_computings (circuit_configuration) VALUES (?)`,
		string(cs.QubitComputing.CircuitConfiguration))
	if err != nil {
		return 0, fmt.Errorf("inserting qubit computing: %w", err)
	}
	computingID, _ := res.LastInsertId() //nolint:errcheck // always succeeds on SQLite

	for i, a := range cs.QubitComputing.CircuitAngles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO circuit_angles (qubit_computing_id, position, name, value) VALUES (?, ?, ?, ?)`,
			computingID, i, a.CircuitAngleName, a.CircuitAngleValue,
		); err != nil {
			return 0, fmt.Errorf("inserting circuit angle %d: %w", i, err)
		}
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO compute_settings (cluster_state_id, qubit_computing_id) VALUES (?, ?)`,
		clusterID, computingID)
	if err != nil {
		return 0, fmt.Errorf("inserting compute settings: %w", err)
	}
	settingsID, _ := res.LastInsertId() //nolint:errcheck // always succeeds on SQLite

	for i, m := range cs.EncodedQubitMeasurements {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO qubit_measurements (compute_settings_id, position, encoded_qubit_index, theta, phi)
			VALUES (?, ?, ?, ?, ?)`,
			settingsID, i, nullableInt(m.EncodedQubitIndex), nullableFloat(m.Theta), nullableFloat(m.Phi),
		); err != nil {
			return 0, fmt.Errorf("inserting qubit measurement %d: %w", i, err)
		}
	}

	return settingsID, nil
}

// GetByID retrieves an experiment with its compute settings.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Experiment, error) {
	row := r.db.QueryRowContext(ctx, selectExperiment+` WHERE e.id = ?`, id)
	e, keys, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying experiment by id: %w", err)
	}
	if err := r.loadChildren(ctx, e, keys); err != nil {
		return nil, err
	}
	return e, nil
}

// List retrieves experiments in creation order.
func (r *SQLiteRepository) List(ctx context.Context, ownerID string) ([]Experiment, error) {
	query := selectExperiment
	var args []any
	if ownerID != "" {
		query += ` WHERE e.user_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY e.created_at, e.seq`
	return r.queryExperiments(ctx, query, args...)
}

// OldestQueued returns the IN_QUEUE experiment created first.
func (r *SQLiteRepository) OldestQueued(ctx context.Context) (*Experiment, error) {
	found, err := r.queryExperiments(ctx,
		selectExperiment+` WHERE e.status = ? ORDER BY e.created_at, e.seq LIMIT 1`,
		string(StatusInQueue))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// Update writes the mutable scalar fields.
func (r *SQLiteRepository) Update(ctx context.Context, e *Experiment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE experiments
		SET experiment_name = ?, circuit_id = ?, project_id = ?, max_runtime = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		e.ExperimentName, e.CircuitID, nullableString(e.ProjectID), e.MaxRuntime, string(e.Status),
		database.FormatTime(time.Now()), e.ExperimentID,
	)
	if err != nil {
		return fmt.Errorf("updating experiment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrNotFound
	}
	return nil
}

// Delete removes the experiment row and every compute-settings row it owns.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var settingsID, clusterID, computingID int64
		err := tx.QueryRowContext(ctx, `
			SELECT s.id, s.cluster_state_id, s.qubit_computing_id
			FROM experiments e JOIN compute_settings s ON s.id = e.compute_settings_id
			WHERE e.id = ?`, id,
		).Scan(&settingsID, &clusterID, &computingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("locating compute settings: %w", err)
		}

		// Referencing rows go before the rows they point at.
		steps := []struct {
			what  string
			query string
			arg   any
		}{
			{"detaching results", `UPDATE experiment_results SET experiment_id = NULL WHERE experiment_id = ?`, id},
			{"deleting experiment", `DELETE FROM experiments WHERE id = ?`, id},
			{"deleting compute settings", `DELETE FROM compute_settings WHERE id = ?`, settingsID},
			{"deleting cluster state", `DELETE FROM cluster_states WHERE id = ?`, clusterID},
			{"deleting qubit computing", `DELETE FROM qubit_computings WHERE id = ?`, computingID},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, step.arg); err != nil {
				return fmt.Errorf("%s: %w", step.what, err)
			}
		}
		return nil
	})
}

// OwnerOf returns the user_id of an experiment.
func (r *SQLiteRepository) OwnerOf(ctx context.Context, id string) (string, bool, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM experiments WHERE id = ?`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying experiment owner: %w", err)
	}
	return owner, true, nil
}

// childKeys locates the child rows of one experiment.
type childKeys struct {
	settingsID  int64
	computingID int64
}

func (r *SQLiteRepository) queryExperiments(ctx context.Context, query string, args ...any) ([]Experiment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying experiments: %w", err)
	}
	defer rows.Close()

	var (
		out  []Experiment
		keys []childKeys
	)
	for rows.Next() {
		e, k, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning experiment: %w", err)
		}
		out = append(out, *e)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating experiments: %w", err)
	}
	rows.Close()

	// The pool holds a single connection, so children are loaded only
	// after the parent cursor is closed.
	for i := range out {
		if err := r.loadChildren(ctx, &out[i], keys[i]); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Experiment{}
	}
	return out, nil
}

func (r *SQLiteRepository) loadChildren(ctx context.Context, e *Experiment, k childKeys) error {
	angles, err := r.db.QueryContext(ctx,
		`SELECT name, value FROM circuit_angles WHERE qubit_computing_id = ? ORDER BY position`, k.computingID)
	if err != nil {
		return fmt.Errorf("querying circuit angles: %w", err)
	}
	e.ComputeSettings.QubitComputing.CircuitAngles = []CircuitAngle{}
	for angles.Next() {
		var a CircuitAngle
		if err := angles.Scan(&a.CircuitAngleName, &a.CircuitAngleValue); err != nil {
			angles.Close()
			return fmt.Errorf("scanning circuit angle: %w", err)
		}
		e.ComputeSettings.QubitComputing.CircuitAngles = append(e.ComputeSettings.QubitComputing.CircuitAngles, a)
	}
	err = angles.Err()
	angles.Close()
	if err != nil {
		return fmt.Errorf("iterating circuit angles: %w", err)
	}

	ms, err := r.db.QueryContext(ctx, `
		SELECT encoded_qubit_index, theta, phi FROM qubit_measurements
		WHERE compute_settings_id = ? ORDER BY position`, k.settingsID)
	if err != nil {
		return fmt.Errorf("querying qubit measurements: %w", err)
	}
	defer ms.Close()

	e.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{}
	for ms.Next() {
		var (
			index      sql.NullInt64
			theta, phi sql.NullFloat64
		)
		if err := ms.Scan(&index, &theta, &phi); err != nil {
			return fmt.Errorf("scanning qubit measurement: %w", err)
		}
		var m QubitMeasurement
		if index.Valid {
			v := int(index.Int64)
			m.EncodedQubitIndex = &v
		}
		if theta.Valid {
			m.Theta = &theta.Float64
		}
		if phi.Valid {
			m.Phi = &phi.Float64
		}
		e.ComputeSettings.EncodedQubitMeasurements = append(e.ComputeSettings.EncodedQubitMeasurements, m)
	}
	if err := ms.Err(); err != nil {
		return fmt.Errorf("iterating qubit measurements: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, childKeys, error) {
	var (
		e         Experiment
		k         childKeys
		projectID sql.NullString
		status    string
		preset    string
		circuit   string
		createdAt string
	)
	err := row.Scan(
		&e.ExperimentID, &e.ExperimentName, &e.CircuitID, &projectID, &e.MaxRuntime,
		&status, &e.UserID, &createdAt, &k.settingsID,
		&e.ComputeSettings.ClusterState.AmountQubits, &preset,
		&k.computingID, &circuit,
	)
	if err != nil {
		return nil, k, err
	}

	if projectID.Valid {
		e.ProjectID = &projectID.String
	}
	e.Status = Status(status)
	e.ComputeSettings.ClusterState.PresetSettings = PresetSetting(preset)
	e.ComputeSettings.QubitComputing.CircuitConfiguration = CircuitConfiguration(circuit)
	if e.Created, err = database.ParseTime(createdAt); err != nil {
		return nil, k, err
	}
	return &e, k, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
