package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// PoolInterface defines the database pool operations the job manager needs
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("backtest job not found")

// JobStatus represents the status of a backtest job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// BacktestJob records one CLI invocation: a batch run or a parameter search.
type BacktestJob struct {
	ID             uuid.UUID              `json:"id"`
	Name           string                 `json:"name"`
	Mode           string                 `json:"mode"`
	Status         JobStatus              `json:"status"`
	Strategies     []string               `json:"strategies"`
	Assets         []string               `json:"assets"`
	InitialCapital float64                `json:"initial_capital"`
	Config         map[string]interface{} `json:"config"`
	Results        *JobResults            `json:"results,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// JobResults is the JSON result document stored with a job.
type JobResults struct {
	Metric     string                 `json:"metric,omitempty"`
	BestValue  float64                `json:"best_value,omitempty"`
	BestParams map[string]interface{} `json:"best_params,omitempty"`
	Evaluated  int                    `json:"evaluated"`
	Failed     int                    `json:"failed"`
	Runs       []RunSummary           `json:"runs,omitempty"`
	Skipped    map[string]string      `json:"skipped,omitempty"`
}

// RunSummary carries the headline metrics of one backtest key.
type RunSummary struct {
	Key            string  `json:"key"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	WinRate        float64 `json:"win_rate"`
	TotalTrades    int     `json:"total_trades"`
}

// SummarizeBatch converts a batch into a job result document.
func SummarizeBatch(batch *Batch) *JobResults {
	results := &JobResults{Skipped: make(map[string]string)}
	for _, key := range batch.Keys {
		if skip, ok := batch.Skipped[key]; ok {
			results.Failed++
			results.Skipped[key] = skip.Reason.String()
			continue
		}
		res := batch.Results[key]
		m := res.Metrics()
		results.Evaluated++
		results.Runs = append(results.Runs, RunSummary{
			Key:            key,
			FinalEquity:    res.Output.FinalEquity,
			TotalReturnPct: m.TotalReturnPct,
			SharpeRatio:    m.SharpeRatio,
			MaxDrawdownPct: m.MaxDrawdownPct,
			WinRate:        m.WinRate,
			TotalTrades:    m.TotalTrades,
		})
	}
	return results
}

// JobManager manages backtest jobs
type JobManager struct {
	db     PoolInterface
	logger zerolog.Logger
}

// NewJobManager creates a new backtest job manager
func NewJobManager(db PoolInterface, logger zerolog.Logger) *JobManager {
	return &JobManager{
		db:     db,
		logger: logger.With().Str("component", "job_manager").Logger(),
	}
}

// CreateJob inserts a pending job.
func (m *JobManager) CreateJob(ctx context.Context, job *BacktestJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Status = JobStatusPending

	if err := validateJob(job); err != nil {
		return fmt.Errorf("invalid job configuration: %w", err)
	}

	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal job config: %w", err)
	}

	query := `
		INSERT INTO backtest_jobs (
			id, name, mode, status, strategies, assets,
			initial_capital, config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = m.db.Exec(ctx, query,
		job.ID, job.Name, job.Mode, job.Status, job.Strategies, job.Assets,
		job.InitialCapital, configJSON, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest job: %w", err)
	}

	m.logger.Info().
		Str("job_id", job.ID.String()).
		Str("name", job.Name).
		Str("mode", job.Mode).
		Msg("Created backtest job")
	return nil
}

func validateJob(job *BacktestJob) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Mode == "" {
		return fmt.Errorf("job mode is required")
	}
	if len(job.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	if len(job.Assets) == 0 {
		return fmt.Errorf("at least one asset is required")
	}
	if job.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	return nil
}

// GetJob retrieves a backtest job by ID
func (m *JobManager) GetJob(ctx context.Context, jobID uuid.UUID) (*BacktestJob, error) {
	query := `
		SELECT id, name, mode, status, strategies, assets,
		       initial_capital, config, results, error_message,
		       created_at, started_at, completed_at, updated_at
		FROM backtest_jobs
		WHERE id = $1
	`

	var job BacktestJob
	var configJSON, resultsJSON []byte
	var errorMessage *string
	err := m.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.Name, &job.Mode, &job.Status, &job.Strategies, &job.Assets,
		&job.InitialCapital, &configJSON, &resultsJSON, &errorMessage,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve backtest job: %w", err)
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job config: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		var results JobResults
		if err := json.Unmarshal(resultsJSON, &results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
		job.Results = &results
	}

	return &job, nil
}

// ListJobs returns the most recent jobs, newest first.
func (m *JobManager) ListJobs(ctx context.Context, limit int) ([]*BacktestJob, error) {
	query := `
		SELECT id, name, mode, status, created_at, updated_at
		FROM backtest_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := m.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*BacktestJob, 0)
	for rows.Next() {
		var job BacktestJob
		if err := rows.Scan(&job.ID, &job.Name, &job.Mode, &job.Status, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backtest jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus updates the status of a backtest job
func (m *JobManager) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, errorMsg string) error {
	now := time.Now()

	var startedAt, completedAt *time.Time
	switch status {
	case JobStatusRunning:
		startedAt = &now
	case JobStatusCompleted, JobStatusFailed:
		completedAt = &now
	}

	query := `
		UPDATE backtest_jobs
		SET status = $1,
		    started_at = COALESCE($2, started_at),
		    completed_at = COALESCE($3, completed_at),
		    error_message = $4,
		    updated_at = $5
		WHERE id = $6
	`
	tag, err := m.db.Exec(ctx, query, status, startedAt, completedAt, errorMsg, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SaveResults stores the result document and marks the job completed.
func (m *JobManager) SaveResults(ctx context.Context, jobID uuid.UUID, results *JobResults) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE backtest_jobs
		SET results = $1,
		    status = $2,
		    completed_at = $3,
		    updated_at = $4
		WHERE id = $5
	`
	tag, err := m.db.Exec(ctx, query, resultsJSON, JobStatusCompleted, now, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	m.logger.Info().
		Str("job_id", jobID.String()).
		Int("evaluated", results.Evaluated).
		Int("failed", results.Failed).
		Msg("Saved backtest results")
	return nil
}
