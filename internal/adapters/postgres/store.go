// Package postgres implements the persistence port on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the transaction aggregate. SaveOutcome runs inside a single
// SQL transaction and guards the terminal transition with a compare-and-swap
// on the transaction state, so a duplicate or racing postback is rejected
// instead of reapplied.
type Store struct {
	db *pgxpool.Pool
}

// NewStore connects to the database and verifies the connection.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// SaveTransaction upserts a single transaction together with its payment and
// instruction rows. Used before dispatch so the callback URL can reference a
// durable transaction id.
func (s *Store) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	payment := tx.Payment
	instruction := tx.Instruction()

	ext, err := json.Marshal(tx.ExtendedData)
	if err != nil {
		return fmt.Errorf("%w: encoding extended data: %v", domain.ErrStorage, err)
	}

	dbtx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer dbtx.Rollback(ctx)

	_, err = dbtx.Exec(ctx, `
		INSERT INTO instructions (id, currency, state, approved_amount, deposited_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			currency = EXCLUDED.currency, state = EXCLUDED.state,
			approved_amount = EXCLUDED.approved_amount, deposited_amount = EXCLUDED.deposited_amount`,
		instruction.ID, instruction.Currency, instruction.State,
		instruction.ApprovedAmount, instruction.DepositedAmount)
	if err != nil {
		return fmt.Errorf("%w: saving instruction: %v", domain.ErrStorage, err)
	}

	_, err = dbtx.Exec(ctx, `
		INSERT INTO payments (id, instruction_id, state, approved_amount, deposited_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			approved_amount = EXCLUDED.approved_amount, deposited_amount = EXCLUDED.deposited_amount`,
		payment.ID, instruction.ID, payment.State,
		payment.ApprovedAmount, payment.DepositedAmount)
	if err != nil {
		return fmt.Errorf("%w: saving payment: %v", domain.ErrStorage, err)
	}

	_, err = dbtx.Exec(ctx, `
		INSERT INTO transactions (id, payment_id, requested_amount, processed_amount,
			reference_number, state, response_code, reason_code, extended_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			processed_amount = EXCLUDED.processed_amount,
			reference_number = EXCLUDED.reference_number, state = EXCLUDED.state,
			response_code = EXCLUDED.response_code, reason_code = EXCLUDED.reason_code,
			extended_data = EXCLUDED.extended_data`,
		tx.ID, payment.ID, tx.RequestedAmount, tx.ProcessedAmount,
		tx.ReferenceNumber, tx.State, tx.ResponseCode, tx.ReasonCode, ext)
	if err != nil {
		return fmt.Errorf("%w: saving transaction: %v", domain.ErrStorage, err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return nil
}

// SaveOutcome atomically records a terminal state transition across the
// three entities. The transaction row update carries the concurrency check:
// zero affected rows means the transaction was already terminal.
func (s *Store) SaveOutcome(ctx context.Context, tx *domain.Transaction, payment *domain.Payment, instruction *domain.Instruction) error {
	ext, err := json.Marshal(tx.ExtendedData)
	if err != nil {
		return fmt.Errorf("%w: encoding extended data: %v", domain.ErrStorage, err)
	}

	dbtx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer dbtx.Rollback(ctx)

	tag, err := dbtx.Exec(ctx, `
		UPDATE transactions
		SET processed_amount = $2, reference_number = $3, state = $4,
			response_code = $5, reason_code = $6, extended_data = $7
		WHERE id = $1 AND state NOT IN ($8, $9)`,
		tx.ID, tx.ProcessedAmount, tx.ReferenceNumber, tx.State,
		tx.ResponseCode, tx.ReasonCode, ext,
		domain.TransactionStateSuccess, domain.TransactionStateFailed)
	if err != nil {
		return fmt.Errorf("%w: updating transaction: %v", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrAlreadyFinalized, tx.ID)
	}

	_, err = dbtx.Exec(ctx, `
		UPDATE payments SET state = $2, approved_amount = $3, deposited_amount = $4
		WHERE id = $1`,
		payment.ID, payment.State, payment.ApprovedAmount, payment.DepositedAmount)
	if err != nil {
		return fmt.Errorf("%w: updating payment: %v", domain.ErrStorage, err)
	}

	_, err = dbtx.Exec(ctx, `
		UPDATE instructions SET state = $2, approved_amount = $3, deposited_amount = $4
		WHERE id = $1`,
		instruction.ID, instruction.State, instruction.ApprovedAmount, instruction.DepositedAmount)
	if err != nil {
		return fmt.Errorf("%w: updating instruction: %v", domain.ErrStorage, err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return nil
}

// FindTransaction loads a transaction with its payment and instruction.
func (s *Store) FindTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		tx          domain.Transaction
		payment     domain.Payment
		instruction domain.Instruction
		ext         []byte
	)

	err := s.db.QueryRow(ctx, `
		SELECT t.id, t.requested_amount, t.processed_amount, t.reference_number,
			t.state, t.response_code, t.reason_code, t.extended_data,
			p.id, p.state, p.approved_amount, p.deposited_amount,
			i.id, i.currency, i.state, i.approved_amount, i.deposited_amount
		FROM transactions t
		JOIN payments p ON p.id = t.payment_id
		JOIN instructions i ON i.id = p.instruction_id
		WHERE t.id = $1`, id).Scan(
		&tx.ID, &tx.RequestedAmount, &tx.ProcessedAmount, &tx.ReferenceNumber,
		&tx.State, &tx.ResponseCode, &tx.ReasonCode, &ext,
		&payment.ID, &payment.State, &payment.ApprovedAmount, &payment.DepositedAmount,
		&instruction.ID, &instruction.Currency, &instruction.State,
		&instruction.ApprovedAmount, &instruction.DepositedAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("%w: loading transaction %s: %v", domain.ErrStorage, id, err)
	}

	if len(ext) > 0 {
		if err := json.Unmarshal(ext, &tx.ExtendedData); err != nil {
			return nil, fmt.Errorf("%w: decoding extended data: %v", domain.ErrStorage, err)
		}
	}

	payment.Instruction = &instruction
	tx.Payment = &payment
	return &tx, nil
}
