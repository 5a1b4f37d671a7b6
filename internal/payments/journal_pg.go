package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalSchema creates the reservation journal. The partial unique index
// enforces one OPEN reservation per order.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS wallet_reservations (
	transaction_id      TEXT PRIMARY KEY,
	order_id            TEXT NOT NULL,
	trade_no            TEXT NOT NULL,
	confirmation_handle TEXT NOT NULL DEFAULT '',
	payment_url         TEXT NOT NULL DEFAULT '',
	amount              BIGINT NOT NULL,
	currency            TEXT NOT NULL,
	payment_id          TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL,
	backend_confirmed   BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS wallet_reservations_one_open
	ON wallet_reservations(order_id) WHERE state = 'OPEN';
ALTER TABLE wallet_reservations ADD COLUMN IF NOT EXISTS payment_id TEXT NOT NULL DEFAULT '';
ALTER TABLE wallet_reservations ADD COLUMN IF NOT EXISTS backend_confirmed BOOLEAN NOT NULL DEFAULT false;
CREATE INDEX IF NOT EXISTS wallet_reservations_order ON wallet_reservations(order_id, state);
`

const uniqueViolation = "23505"

type PgJournal struct{ DB *pgxpool.Pool }

func (j *PgJournal) Record(ctx context.Context, r Reservation) error {
	_, err := j.DB.Exec(ctx, `
		INSERT INTO wallet_reservations
			(transaction_id, order_id, trade_no, confirmation_handle, payment_url, amount, currency, payment_id, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'OPEN')`,
		r.TransactionID, r.OrderID, r.TradeNo, r.ConfirmationHandle, r.PaymentURL, r.Amount, r.Currency, r.PaymentID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errOpenExists(r.OrderID)
	}
	if err != nil {
		return fmt.Errorf("record reservation %s: %w", r.TransactionID, err)
	}
	return nil
}

const reservationCols = `transaction_id, order_id, trade_no, confirmation_handle, payment_url,
	amount, currency, payment_id, state, backend_confirmed, created_at, updated_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var r Reservation
	var state string
	err := row.Scan(&r.TransactionID, &r.OrderID, &r.TradeNo, &r.ConfirmationHandle, &r.PaymentURL,
		&r.Amount, &r.Currency, &r.PaymentID, &state, &r.BackendConfirmed, &r.CreatedAt, &r.UpdatedAt)
	r.State = ReservationState(state)
	return r, err
}

func (j *PgJournal) Open(ctx context.Context, orderID string) (Reservation, bool, error) {
	r, err := scanReservation(j.DB.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM wallet_reservations WHERE order_id=$1 AND state='OPEN'`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (j *PgJournal) ForOrder(ctx context.Context, orderID string, state ReservationState) (Reservation, bool, error) {
	r, err := scanReservation(j.DB.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM wallet_reservations WHERE order_id=$1 AND state=$2
		 ORDER BY updated_at DESC LIMIT 1`, orderID, string(state)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (j *PgJournal) Lookup(ctx context.Context, transactionID string) (Reservation, bool, error) {
	r, err := scanReservation(j.DB.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM wallet_reservations WHERE transaction_id=$1`, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

// Resolve locks the row so a reconciler and a checkout retry cannot close it twice.
func (j *PgJournal) Resolve(ctx context.Context, transactionID string, state ReservationState) error {
	tx, err := j.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var cur string
	err = tx.QueryRow(ctx, `SELECT state FROM wallet_reservations WHERE transaction_id=$1 FOR UPDATE`, transactionID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Newf(apperr.KindNotFound, "journal.resolve", "reservation %s not found", transactionID)
	}
	if err != nil {
		return err
	}
	if ReservationState(cur) != ReservationOpen {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE wallet_reservations SET state=$2, updated_at=now() WHERE transaction_id=$1`,
		transactionID, string(state)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (j *PgJournal) MarkConfirmed(ctx context.Context, transactionID string) error {
	tag, err := j.DB.Exec(ctx,
		`UPDATE wallet_reservations SET backend_confirmed=true, updated_at=now() WHERE transaction_id=$1`, transactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "journal.mark_confirmed", "reservation %s not found", transactionID)
	}
	return nil
}

func (j *PgJournal) Unsettled(ctx context.Context, before time.Time) ([]Reservation, error) {
	rows, err := j.DB.Query(ctx, `SELECT `+reservationCols+` FROM wallet_reservations
		WHERE created_at < $1
		  AND (state='OPEN' OR (state='CAPTURED' AND payment_id <> '' AND NOT backend_confirmed))
		ORDER BY created_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
