package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stellar-payment-gateway/internal/model"
)

const submissionColumns = `
	id, source_account, transaction_type, idempotency_token, canonical_transaction,
	submitted_ids, submission_attempts, lifecycle_state, ledger_reference,
	transaction_hash, network_result_code, network_result_message, finalized,
	provisionally_accepted, expires_at, created_at, updated_at`

func (p *Postgres) Reserve(ctx context.Context, sub *model.Submission) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO submissions (source_account, transaction_type, idempotency_token, canonical_transaction)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_account, transaction_type, idempotency_token) DO UPDATE SET
			canonical_transaction = EXCLUDED.canonical_transaction,
			submission_attempts = 0,
			lifecycle_state = 'unsubmitted',
			ledger_reference = NULL,
			transaction_hash = NULL,
			network_result_code = NULL,
			network_result_message = NULL,
			finalized = FALSE,
			expires_at = NULL,
			updated_at = NOW()
		WHERE submissions.lifecycle_state = 'failed'
		  AND NOT submissions.provisionally_accepted
		  AND submissions.transaction_hash IS NULL
		  AND submissions.ledger_reference IS NULL
		RETURNING id, submitted_ids, created_at, updated_at
	`,
		sub.SourceAccount, sub.TransactionType, sub.IdempotencyToken, []byte(sub.CanonicalTransaction),
	).Scan(&sub.ID, &sub.SubmittedIDs, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("reserve submission: %w", err)
	}

	sub.SubmissionAttempts = 0
	sub.LifecycleState = model.StateUnsubmitted
	sub.LedgerReference = nil
	sub.TransactionHash = ""
	sub.NetworkResultCode = ""
	sub.NetworkResultMessage = ""
	sub.Finalized = false
	sub.ProvisionallyAccepted = false
	sub.ExpiresAt = nil
	return nil
}

func (p *Postgres) RecordAttempt(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE submissions
		SET submitted_ids = CASE WHEN $2 = ANY(submitted_ids) THEN submitted_ids ELSE array_append(submitted_ids, $2) END,
		    submission_attempts = submission_attempts + 1,
		    expires_at = GREATEST(COALESCE(expires_at, $3), $3),
		    updated_at = NOW()
		WHERE id = $1 AND lifecycle_state = 'unsubmitted'
	`, id, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("record submission attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.transitionError(ctx, id)
	}
	return nil
}

func (p *Postgres) MarkPending(ctx context.Context, id uuid.UUID, ledgerRef uint32) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE submissions
		SET lifecycle_state = 'pending', provisionally_accepted = TRUE, ledger_reference = $2, updated_at = NOW()
		WHERE id = $1 AND lifecycle_state = 'unsubmitted'
	`, id, nullLedger(ledgerRef))
	if err != nil {
		return fmt.Errorf("mark submission pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.transitionError(ctx, id)
	}
	return nil
}

func (p *Postgres) Finalize(ctx context.Context, id uuid.UUID, f model.Finalization) (*model.Submission, error) {
	if err := validFinalization(f); err != nil {
		return nil, err
	}

	row := p.pool.QueryRow(ctx, `
		UPDATE submissions
		SET lifecycle_state = $2,
		    transaction_hash = $3,
		    ledger_reference = COALESCE($4, ledger_reference),
		    network_result_code = $5,
		    network_result_message = $6,
		    finalized = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND lifecycle_state IN ('unsubmitted', 'pending')
		RETURNING `+submissionColumns,
		id, f.State, nullString(f.TransactionHash), nullLedger(f.LedgerReference),
		nullString(f.ResultCode), nullString(f.ResultMessage),
	)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.transitionError(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize submission: %w", err)
	}
	return sub, nil
}

func (p *Postgres) GetSubmission(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (p *Postgres) ListSubmissionsByToken(ctx context.Context, account, token string) ([]*model.Submission, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE source_account = $1 AND idempotency_token = $2
		ORDER BY created_at
	`, account, token)
	if err != nil {
		return nil, fmt.Errorf("list submissions by token: %w", err)
	}
	return collectSubmissions(rows)
}

func (p *Postgres) FindSubmissionByHash(ctx context.Context, account, hash string) (*model.Submission, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE source_account = $1 AND $2 = ANY(submitted_ids)
		ORDER BY updated_at DESC
		LIMIT 1
	`, account, hash)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find submission by hash: %w", err)
	}
	return sub, nil
}

func (p *Postgres) ListSubmissions(ctx context.Context, filters SubmissionFilters) ([]*model.Submission, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filters.Account != "" {
		where += fmt.Sprintf(" AND source_account = $%d", argIdx)
		args = append(args, filters.Account)
		argIdx++
	}
	if filters.TransactionType != nil {
		where += fmt.Sprintf(" AND transaction_type = $%d", argIdx)
		args = append(args, *filters.TransactionType)
		argIdx++
	}
	if filters.State != nil {
		where += fmt.Sprintf(" AND lifecycle_state = $%d", argIdx)
		args = append(args, *filters.State)
		argIdx++
	}
	if filters.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filters.From)
		argIdx++
	}
	if filters.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filters.To)
		argIdx++
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM submissions %s", where)
	if err := p.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	limit, offset := filters.pagination()
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM submissions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, submissionColumns, where, argIdx, argIdx+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (p *Postgres) ListUnfinalized(ctx context.Context) ([]*model.Submission, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE finalized = FALSE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list unfinalized submissions: %w", err)
	}
	return collectSubmissions(rows)
}

// transitionError explains why a guarded update matched no row.
func (p *Postgres) transitionError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM submissions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check submission: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func collectSubmissions(rows pgx.Rows) ([]*model.Submission, error) {
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

func nullLedger(seq uint32) *int64 {
	if seq == 0 {
		return nil
	}
	v := int64(seq)
	return &v
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var sub model.Submission
	var canonical []byte
	var ledgerRef *int64
	var txHash, resultCode, resultMessage *string

	err := row.Scan(
		&sub.ID, &sub.SourceAccount, &sub.TransactionType, &sub.IdempotencyToken, &canonical,
		&sub.SubmittedIDs, &sub.SubmissionAttempts, &sub.LifecycleState, &ledgerRef,
		&txHash, &resultCode, &resultMessage, &sub.Finalized,
		&sub.ProvisionallyAccepted, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.CanonicalTransaction = canonical
	if ledgerRef != nil {
		ref := uint32(*ledgerRef)
		sub.LedgerReference = &ref
	}
	if txHash != nil {
		sub.TransactionHash = *txHash
	}
	if resultCode != nil {
		sub.NetworkResultCode = *resultCode
	}
	if resultMessage != nil {
		sub.NetworkResultMessage = *resultMessage
	}
	return &sub, nil
}
