package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/expenseflow-api/internal/models"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
	"github.com/expenseflow/expenseflow-api/pkg/export"
	"github.com/expenseflow/expenseflow-api/pkg/jobs"
	"github.com/expenseflow/expenseflow-api/pkg/storage"
)

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, companyID, id string) (*models.ReportJob, error)
	List(ctx context.Context, companyID string, limit int) ([]models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error
	MarkFinished(ctx context.Context, id, resultURL string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

type reportExpenseRepository interface {
	ListForExport(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseDetail, error)
}

type reportMetrics interface {
	RecordReportJob(status string)
}

// ReportDownload points a client at a generated file.
type ReportDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReportService generates expense exports asynchronously. Requests enqueue a
// job; a worker pool renders the file (CSV, PDF or XLSX), stores it on the
// local filesystem and records a signed download token.
type ReportService struct {
	repo     reportJobRepository
	expenses reportExpenseRepository
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	queue    *jobs.Queue
	metrics  reportMetrics
	logger   *zap.Logger
	retries  int

	csv  *export.CSVExporter
	pdf  *export.PDFExporter
	xlsx *export.XLSXExporter
}

// ReportServiceConfig tunes the report worker pool.
type ReportServiceConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
}

// NewReportService constructs a ReportService with its own job queue. Call
// Start before enqueuing and Stop on shutdown.
func NewReportService(repo reportJobRepository, expenses reportExpenseRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics reportMetrics, cfg ReportServiceConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.WorkerRetries
	if retries <= 0 {
		retries = 3
	}
	s := &ReportService{
		repo:     repo,
		expenses: expenses,
		store:    store,
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
		retries:  retries,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		xlsx:     export.NewXLSXExporter(),
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Enqueue records a job and schedules it for rendering.
func (s *ReportService) Enqueue(ctx context.Context, companyID, userID string, params models.ReportJobParams) (*models.ReportJob, error) {
	switch params.Format {
	case models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	job := &models.ReportJob{
		CompanyID: companyID,
		Params:    params,
		Status:    models.ReportStatusQueued,
		CreatedBy: userID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report", Payload: job.CompanyID}); err != nil {
		now := time.Now().UTC()
		if markErr := s.repo.MarkFailed(ctx, job.ID, "queue is full", now); markErr != nil {
			s.logger.Error("failed to mark rejected job", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report queue is full")
	}

	s.logger.Info("report job enqueued",
		zap.String("job_id", job.ID),
		zap.String("company_id", companyID),
		zap.String("format", string(params.Format)),
	)
	return job, nil
}

// Get returns one job's status.
func (s *ReportService) Get(ctx context.Context, companyID, id string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load report job")
	}
	return job, nil
}

// List returns a company's recent jobs.
func (s *ReportService) List(ctx context.Context, companyID string, limit int) ([]models.ReportJob, error) {
	jobsList, err := s.repo.List(ctx, companyID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list report jobs")
	}
	return jobsList, nil
}

// Download validates a finished job and issues a signed download token.
func (s *ReportService) Download(ctx context.Context, companyID, id string) (*ReportDownload, error) {
	job, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusFinished || job.ResultURL == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "report is not ready for download")
	}

	token, expiresAt, err := s.signer.Generate(job.ID, *job.ResultURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &ReportDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenSigned resolves a signed token to the file on disk.
func (s *ReportService) OpenSigned(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	f, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report file no longer exists")
	}
	return f, nil
}

// Cleanup removes jobs and files past the retention cutoff.
func (s *ReportService) Cleanup(ctx context.Context, retention time.Duration) {
	urls, err := s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	for _, relPath := range urls {
		if relPath == "" {
			continue
		}
		if err := s.store.Delete(relPath); err != nil {
			s.logger.Warn("failed to delete report file", zap.Error(err), zap.String("path", relPath))
		}
	}
	if len(urls) > 0 {
		s.logger.Info("report cleanup completed", zap.Int("removed", len(urls)))
	}
}

// process renders one queued job. Runs on the worker pool.
func (s *ReportService) process(ctx context.Context, qj jobs.Job) error {
	companyID, _ := qj.Payload.(string)
	job, err := s.repo.FindByID(ctx, companyID, qj.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", qj.ID, err)
	}
	if job.Status == models.ReportStatusFinished || job.Status == models.ReportStatusFailed {
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, models.ReportStatusProcessing); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	relPath, err := s.render(ctx, job)
	now := time.Now().UTC()
	if err != nil {
		if qj.Attempt >= s.retries {
			// Out of retries; record the terminal failure.
			if markErr := s.repo.MarkFailed(ctx, job.ID, err.Error(), now); markErr != nil {
				s.logger.Error("failed to mark job failed", zap.Error(markErr))
			}
			if s.metrics != nil {
				s.metrics.RecordReportJob(string(models.ReportStatusFailed))
			}
		}
		return err
	}

	if err := s.repo.MarkFinished(ctx, job.ID, relPath, now); err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordReportJob(string(models.ReportStatusFinished))
	}
	s.logger.Info("report job finished", zap.String("job_id", job.ID), zap.String("path", relPath))
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) (string, error) {
	filter := models.ExpenseFilter{
		CompanyID: job.CompanyID,
		Status:    job.Params.Status,
		Category:  job.Params.Category,
		DateFrom:  job.Params.DateFrom,
		DateTo:    job.Params.DateTo,
	}
	expenses, err := s.expenses.ListForExport(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("load expenses: %w", err)
	}

	data := buildExpenseDataset(expenses)

	var payload []byte
	var ext string
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(data)
		ext = "csv"
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(data, "Expense Report")
		ext = "pdf"
	case models.ReportFormatXLSX:
		payload, err = s.xlsx.Render(data, "Expenses")
		ext = "xlsx"
	default:
		return "", fmt.Errorf("unsupported format %q", job.Params.Format)
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", job.Params.Format, err)
	}

	name := fmt.Sprintf("reports/%s/%s.%s", job.CompanyID, job.ID, ext)
	return s.store.Save(name, payload)
}

var expenseExportHeaders = []string{"Date", "Employee", "Category", "Description", "Amount", "Currency", "Company Amount", "Status"}

func buildExpenseDataset(expenses []models.ExpenseDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, map[string]string{
			"Date":           e.ExpenseDate.Format("2006-01-02"),
			"Employee":       e.EmployeeName,
			"Category":       e.Category,
			"Description":    e.Description,
			"Amount":         strconv.FormatFloat(e.Amount, 'f', 2, 64),
			"Currency":       e.Currency,
			"Company Amount": strconv.FormatFloat(e.AmountInCompanyCurrency, 'f', 2, 64),
			"Status":         string(e.Status),
		})
	}
	return export.Dataset{Headers: expenseExportHeaders, Rows: rows}
}
