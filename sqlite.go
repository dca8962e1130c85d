package main

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"deflickarr/deflick"
)

type Sqlite struct {
	pool *sql.DB
}

func NewSqlite(path string) Sqlite {
	// TOOD: may return an error here
	var err error
	pool, err := sql.Open("sqlite", path)
	if err != nil {
		log.Panic("Error when opening sqlite: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		log.Panicf("unable to connect to database: %v", err)
	}

	return Sqlite{
		pool: pool,
	}
}

//go:embed migrations/*.sql
var embedMigrations embed.FS

func (s *Sqlite) RunMigrations() {
	migrationFs, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		log.Panicf("failed to create fs.FS: %v", err)
	}

	d, err := iofs.New(migrationFs, ".")
	if err != nil {
		log.Panicf("failed to create new instance: %v", err)
	}

	driver, err := sqlite3.WithInstance(s.pool, &sqlite3.Config{})
	if err != nil {
		log.Panic("Error to get driver with instance: ", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		log.Panic("Error to make new instance of migration: ", err)
	}

	err = m.Up()
	if err != nil && err.Error() != "no change" {
		log.Panic("Error doing migrations: ", err)
	}
}

func (s *Sqlite) GetJobs() ([]Job, error) {
	querySQL := `SELECT id, path, output_path FROM jobs WHERE done = false AND failed = false`
	rows, err := s.pool.Query(querySQL)
	if err != nil {
		return []Job{}, err
	}

	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Path, &j.OutputPath); err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}

	// Check for errors from iterating over rows
	if err := rows.Err(); err != nil {
		return []Job{}, err
	}

	return jobs, nil
}

func (s *Sqlite) InsertJob(job *Job) (int64, error) {
	insertSQL := `INSERT INTO jobs (path, output_path, done) VALUES (?, ?, ?)`
	statement, err := s.pool.Prepare(insertSQL)
	if err != nil {
		return 0, err
	}

	defer statement.Close()
	result, err := statement.Exec(job.Path, job.OutputPath, false)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	job.ID = id
	return id, nil
}

func (s *Sqlite) MarkJobAsDone(job *Job) error {
	updateSQL := `UPDATE jobs SET done = true WHERE id = ?`
	statement, err := s.pool.Prepare(updateSQL)
	if err != nil {
		return err
	}
	defer statement.Close()

	_, err = statement.Exec(job.ID)
	if err != nil {
		return err
	}

	return nil
}

func (s *Sqlite) GetJobRetries(job *Job) (int, error) {
	getRetrySQL := `SELECT retries FROM jobs WHERE id = ?`
	statement, err := s.pool.Prepare(getRetrySQL)
	if err != nil {
		return 0, err
	}
	defer statement.Close()

	retries := 0
	err = statement.QueryRow(job.ID).Scan(&retries)
	if err != nil {
		return 0, err
	}

	return retries, nil
}

func (s *Sqlite) UpdateJobRetries(job *Job, retries int) error {
	updateSQL := `UPDATE jobs SET retries = ? WHERE id = ?`
	statement, err := s.pool.Prepare(updateSQL)
	if err != nil {
		return err
	}
	defer statement.Close()

	_, err = statement.Exec(retries, job.ID)
	if err != nil {
		return err
	}

	return nil
}

func (s *Sqlite) FailJob(job *Job, output string, progErr string) error {
	tx, err := s.pool.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	insertSQL := `INSERT INTO failed_jobs (job_id, output, error) VALUES (?, ?, ?)`
	statement, err := tx.Prepare(insertSQL)
	if err != nil {
		return err
	}

	defer statement.Close()
	_, err = statement.Exec(job.ID, output, progErr)
	if err != nil {
		return err
	}

	markFailedSQL := `UPDATE jobs SET failed = ? WHERE id = ?`
	statement, err = tx.Prepare(markFailedSQL)
	if err != nil {
		return err
	}
	defer statement.Close()

	_, err = statement.Exec(true, job.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Sqlite) DeleteJobByID(tx *sql.Tx, id int64) error {
	deleteSQL := `DELETE FROM jobs WHERE id = ?`
	var statement *sql.Stmt
	var err error
	if tx != nil {
		statement, err = tx.Prepare(deleteSQL)
	} else {
		statement, err = s.pool.Prepare(deleteSQL)
	}

	if err != nil {
		return err
	}

	defer statement.Close()
	_, err = statement.Exec(id)
	return err
}

func (s *Sqlite) GetFailedJobs() ([]FailedJob, error) {
	querySQL := `SELECT f.id, f.output, f.error, j.id, j.path, j.output_path FROM failed_jobs f
				INNER JOIN jobs j ON j.id = f.job_id`
	rows, err := s.pool.Query(querySQL)
	if err != nil {
		return []FailedJob{}, err
	}

	defer rows.Close()
	jobs := []FailedJob{}
	for rows.Next() {
		var f FailedJob
		if err := rows.Scan(&f.ID, &f.Output, &f.Error, &f.Job.ID, &f.Job.Path, &f.Job.OutputPath); err != nil {
			return jobs, err
		}
		jobs = append(jobs, f)
	}

	// Check for errors from iterating over rows
	if err := rows.Err(); err != nil {
		return []FailedJob{}, err
	}

	return jobs, nil
}

// CheckpointStore adapts the checkpoints table to deflick.Store. Commits run
// in implicit transactions, so a crash mid-commit never leaves a torn row.
type CheckpointStore struct {
	pool *sql.DB
}

func (s *Sqlite) Checkpoints() *CheckpointStore {
	return &CheckpointStore{pool: s.pool}
}

func (c *CheckpointStore) Load(fingerprint string) (deflick.Checkpoint, bool, error) {
	querySQL := `SELECT last_batch, mode, updated_at FROM checkpoints WHERE fingerprint = ?`
	cp := deflick.Checkpoint{Fingerprint: fingerprint}

	err := c.pool.QueryRow(querySQL, fingerprint).Scan(&cp.LastBatch, &cp.Mode, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return deflick.Checkpoint{}, false, nil
	}
	if err != nil {
		// An unreadable checkpoint means restart from batch 0
		return deflick.Checkpoint{}, false, nil
	}

	return cp, true, nil
}

func (c *CheckpointStore) Commit(cp deflick.Checkpoint) error {
	upsertSQL := `INSERT INTO checkpoints (fingerprint, last_batch, mode, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(fingerprint) DO UPDATE SET last_batch = excluded.last_batch, updated_at = excluded.updated_at`
	statement, err := c.pool.Prepare(upsertSQL)
	if err != nil {
		return err
	}
	defer statement.Close()

	_, err = statement.Exec(cp.Fingerprint, cp.LastBatch, cp.Mode, cp.UpdatedAt)
	return err
}

func (c *CheckpointStore) Clear(fingerprint string) error {
	deleteSQL := `DELETE FROM checkpoints WHERE fingerprint = ?`
	statement, err := c.pool.Prepare(deleteSQL)
	if err != nil {
		return err
	}
	defer statement.Close()

	_, err = statement.Exec(fingerprint)
	return err
}

// ListCheckpoints backs the resume-status API endpoint.
func (s *Sqlite) ListCheckpoints() ([]deflick.Checkpoint, error) {
	querySQL := `SELECT fingerprint, last_batch, mode, updated_at FROM checkpoints`
	rows, err := s.pool.Query(querySQL)
	if err != nil {
		return []deflick.Checkpoint{}, err
	}

	defer rows.Close()
	cps := []deflick.Checkpoint{}
	for rows.Next() {
		var cp deflick.Checkpoint
		if err := rows.Scan(&cp.Fingerprint, &cp.LastBatch, &cp.Mode, &cp.UpdatedAt); err != nil {
			return cps, err
		}
		cps = append(cps, cp)
	}

	if err := rows.Err(); err != nil {
		return []deflick.Checkpoint{}, err
	}

	return cps, nil
}
