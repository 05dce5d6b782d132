package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

const quotationColumns = `id, quotation_number, slug, client_name, client_email, client_phone, total_amount, default_package,
       status, workflow_status, client_verbal_confirmation_date, payment_received_date, payment_amount, payment_reference,
       created_by, assigned_to, created_at, updated_at`

// QuotationRepository persists quotations.
type QuotationRepository struct {
	db *sqlx.DB
}

// NewQuotationRepository constructs the repository.
func NewQuotationRepository(db *sqlx.DB) *QuotationRepository {
	return &QuotationRepository{db: db}
}

// Create inserts a new quotation and populates its generated identifier.
func (r *QuotationRepository) Create(ctx context.Context, q *models.Quotation) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = models.QuotationStatusDraft
	}
	if q.WorkflowStatus == "" {
		q.WorkflowStatus = models.WorkflowDraft
	}
	const query = `INSERT INTO quotations
	(quotation_number, slug, client_name, client_email, client_phone, total_amount, default_package, status, workflow_status,
	 created_by, assigned_to, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		q.QuotationNumber, q.Slug, q.ClientName, q.ClientEmail, q.ClientPhone, q.TotalAmount, q.DefaultPackage,
		q.Status, q.WorkflowStatus, q.CreatedBy, q.AssignedTo, q.CreatedAt, q.UpdatedAt,
	).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("create quotation: %w", err)
	}
	return nil
}

// GetByID fetches a quotation by identifier.
func (r *QuotationRepository) GetByID(ctx context.Context, id int64) (*models.Quotation, error) {
	query := `SELECT ` + quotationColumns + ` FROM quotations WHERE id = $1`
	var q models.Quotation
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		return nil, err
	}
	return &q, nil
}

// List returns quotations matching the filter, newest first, with the total count.
func (r *QuotationRepository) List(ctx context.Context, filter models.QuotationFilter) ([]models.Quotation, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if len(filter.WorkflowStatuses) > 0 {
		args = append(args, pq.Array(workflowStrings(filter.WorkflowStatuses)))
		conditions = append(conditions, fmt.Sprintf("workflow_status = ANY($%d)", len(args)))
	}
	if filter.CreatedBy != "" && filter.AssignedTo != "" {
		args = append(args, filter.CreatedBy, filter.AssignedTo)
		conditions = append(conditions, fmt.Sprintf("(created_by = $%d OR assigned_to = $%d)", len(args)-1, len(args)))
	} else if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	} else if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		conditions = append(conditions, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(client_name ILIKE $%d OR quotation_number ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM quotations%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", quotationColumns, where, size, offset)
	var quotations []models.Quotation
	if err := r.db.SelectContext(ctx, &quotations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM quotations"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count quotations: %w", err)
	}
	return quotations, total, nil
}

// FindOverdueCandidates returns every quotation whose workflow status is not in
// excluded, ordered by id so scans are reproducible.
func (r *QuotationRepository) FindOverdueCandidates(ctx context.Context, excluded []models.WorkflowStatus) ([]models.Quotation, error) {
	query := `SELECT ` + quotationColumns + ` FROM quotations WHERE NOT (workflow_status = ANY($1)) ORDER BY id ASC`
	var quotations []models.Quotation
	if err := r.db.SelectContext(ctx, &quotations, query, pq.Array(workflowStrings(excluded))); err != nil {
		return nil, fmt.Errorf("find overdue candidates: %w", err)
	}
	return quotations, nil
}

// UpdateWorkflowParams groups columns written by a workflow transition. Nil
// pointers leave the stored value untouched.
type UpdateWorkflowParams struct {
	ID                           int64
	ExpectedWorkflowStatus       models.WorkflowStatus
	Status                       models.QuotationStatus
	WorkflowStatus               models.WorkflowStatus
	ClientVerbalConfirmationDate *time.Time
	PaymentReceivedDate          *time.Time
	PaymentAmount                *float64
	PaymentReference             *string
	UpdatedAt                    time.Time
}

// UpdateWorkflow persists a transition only if the row is still in
// ExpectedWorkflowStatus. A lost race yields sql.ErrNoRows.
func (r *QuotationRepository) UpdateWorkflow(ctx context.Context, params UpdateWorkflowParams) error {
	setParts := []string{
		"status = :status",
		"workflow_status = :workflow_status",
		"updated_at = :updated_at",
	}
	if params.ClientVerbalConfirmationDate != nil {
		setParts = append(setParts, "client_verbal_confirmation_date = :client_verbal_confirmation_date")
	}
	if params.PaymentReceivedDate != nil {
		setParts = append(setParts, "payment_received_date = :payment_received_date")
	}
	if params.PaymentAmount != nil {
		setParts = append(setParts, "payment_amount = :payment_amount")
	}
	if params.PaymentReference != nil {
		setParts = append(setParts, "payment_reference = :payment_reference")
	}
	if params.UpdatedAt.IsZero() {
		params.UpdatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf("UPDATE quotations SET %s WHERE id = :id AND workflow_status = :expected_workflow_status",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                              params.ID,
		"expected_workflow_status":        params.ExpectedWorkflowStatus,
		"status":                          params.Status,
		"workflow_status":                 params.WorkflowStatus,
		"updated_at":                      params.UpdatedAt,
		"client_verbal_confirmation_date": params.ClientVerbalConfirmationDate,
		"payment_received_date":           params.PaymentReceivedDate,
		"payment_amount":                  params.PaymentAmount,
		"payment_reference":               params.PaymentReference,
	})
	if err != nil {
		return fmt.Errorf("update quotation workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check quotation update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete hard deletes a quotation; approvals cascade in the schema.
func (r *QuotationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM quotations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check quotation delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SummaryByWorkflow aggregates count and value per workflow status.
func (r *QuotationRepository) SummaryByWorkflow(ctx context.Context) ([]models.WorkflowStageSummary, error) {
	const query = `SELECT workflow_status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total_amount
FROM quotations GROUP BY workflow_status ORDER BY workflow_status`
	var stages []models.WorkflowStageSummary
	if err := r.db.SelectContext(ctx, &stages, query); err != nil {
		return nil, fmt.Errorf("summarise quotations: %w", err)
	}
	return stages, nil
}

func workflowStrings(statuses []models.WorkflowStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
