package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

const approvalColumns = `id, quotation_id, approver_user_id, approval_status, approval_date, comments, created_at, updated_at`

// QuotationApprovalRepository persists approval requests and decisions.
type QuotationApprovalRepository struct {
	db *sqlx.DB
}

// NewQuotationApprovalRepository constructs the repository.
func NewQuotationApprovalRepository(db *sqlx.DB) *QuotationApprovalRepository {
	return &QuotationApprovalRepository{db: db}
}

// Create inserts an approval row.
func (r *QuotationApprovalRepository) Create(ctx context.Context, approval *models.QuotationApproval) error {
	now := time.Now().UTC()
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = now
	}
	approval.UpdatedAt = now
	if approval.ApprovalStatus == "" {
		approval.ApprovalStatus = models.ApprovalPending
	}
	const query = `INSERT INTO quotation_approvals
	(quotation_id, approver_user_id, approval_status, approval_date, comments, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		approval.QuotationID, approval.ApproverUserID, approval.ApprovalStatus, approval.ApprovalDate,
		approval.Comments, approval.CreatedAt, approval.UpdatedAt,
	).Scan(&approval.ID)
	if err != nil {
		return fmt.Errorf("create quotation approval: %w", err)
	}
	return nil
}

// ListByQuotation returns approval history newest first.
func (r *QuotationApprovalRepository) ListByQuotation(ctx context.Context, quotationID int64) ([]models.QuotationApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM quotation_approvals WHERE quotation_id = $1 ORDER BY created_at DESC, id DESC`
	var approvals []models.QuotationApproval
	if err := r.db.SelectContext(ctx, &approvals, query, quotationID); err != nil {
		return nil, fmt.Errorf("list quotation approvals: %w", err)
	}
	return approvals, nil
}

// LatestByQuotation returns the most recently created approval row, or
// sql.ErrNoRows when the quotation has none.
func (r *QuotationApprovalRepository) LatestByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM quotation_approvals WHERE quotation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var approval models.QuotationApproval
	if err := r.db.GetContext(ctx, &approval, query, quotationID); err != nil {
		return nil, err
	}
	return &approval, nil
}

// ApprovedByQuotation returns the approval row holding the approved decision, or
// sql.ErrNoRows when the quotation was never approved.
func (r *QuotationApprovalRepository) ApprovedByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM quotation_approvals
WHERE quotation_id = $1 AND approval_status = 'approved'
ORDER BY approval_date DESC NULLS LAST, id DESC LIMIT 1`
	var approval models.QuotationApproval
	if err := r.db.GetContext(ctx, &approval, query, quotationID); err != nil {
		return nil, err
	}
	return &approval, nil
}

// ApprovalDecisionParams captures an approver's decision.
type ApprovalDecisionParams struct {
	QuotationID int64
	ApproverID  string
	Status      models.ApprovalStatus
	DecidedAt   time.Time
	Comments    *string
}

// RecordDecision stamps the decision on the newest approval row, inserting one
// when the quotation was never formally submitted.
func (r *QuotationApprovalRepository) RecordDecision(ctx context.Context, params ApprovalDecisionParams) (approval *models.QuotationApproval, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approval transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	approval = &models.QuotationApproval{}
	selectQuery := `SELECT ` + approvalColumns + ` FROM quotation_approvals WHERE quotation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1 FOR UPDATE`
	err = tx.GetContext(ctx, approval, selectQuery, params.QuotationID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		approval = &models.QuotationApproval{
			QuotationID:    params.QuotationID,
			ApproverUserID: &params.ApproverID,
			ApprovalStatus: params.Status,
			ApprovalDate:   &params.DecidedAt,
			Comments:       params.Comments,
			CreatedAt:      params.DecidedAt,
			UpdatedAt:      params.DecidedAt,
		}
		const insertQuery = `INSERT INTO quotation_approvals
	(quotation_id, approver_user_id, approval_status, approval_date, comments, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
		if err = tx.QueryRowxContext(ctx, insertQuery,
			approval.QuotationID, approval.ApproverUserID, approval.ApprovalStatus, approval.ApprovalDate,
			approval.Comments, approval.CreatedAt, approval.UpdatedAt,
		).Scan(&approval.ID); err != nil {
			return nil, fmt.Errorf("insert approval decision: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lock approval row: %w", err)
	default:
		approval.ApproverUserID = &params.ApproverID
		approval.ApprovalStatus = params.Status
		approval.ApprovalDate = &params.DecidedAt
		approval.Comments = params.Comments
		approval.UpdatedAt = params.DecidedAt
		const updateQuery = `UPDATE quotation_approvals SET approver_user_id = $1, approval_status = $2, approval_date = $3, comments = $4, updated_at = $5 WHERE id = $6`
		if _, err = tx.ExecContext(ctx, updateQuery,
			params.ApproverID, params.Status, params.DecidedAt, params.Comments, params.DecidedAt, approval.ID,
		); err != nil {
			return nil, fmt.Errorf("update approval decision: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval decision: %w", err)
	}
	return approval, nil
}
