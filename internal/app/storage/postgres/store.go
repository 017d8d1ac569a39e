package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage"
	"github.com/google/uuid"
)

// Store implements the storage interfaces backed by PostgreSQL.
// Currency, share and weight columns are BIGINT; accumulator prices
// exceed the int64 range over enough growth and travel as text.
type Store struct {
	db *sql.DB
}

var _ storage.DrawingStore = (*Store)(nil)
var _ storage.TicketStore = (*Store)(nil)
var _ storage.LiquidityStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- DrawingStore -----------------------------------------------------------

func (s *Store) CreateDrawing(ctx context.Context, d drawing.Drawing) (drawing.Drawing, error) {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	tiersJSON, err := json.Marshal(d.Tiers)
	if err != nil {
		return drawing.Drawing{}, err
	}
	winningJSON, err := json.Marshal(d.WinningNumbers)
	if err != nil {
		return drawing.Drawing{}, err
	}
	payoutsJSON, err := json.Marshal(d.Payouts)
	if err != nil {
		return drawing.Drawing{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jackpot_drawings (id, status, normal_max, bonus_max, pick_size, ticket_price, tiers, winning_numbers, winning_bonus, ticket_revenue, prize_pool, total_user_payout, protocol_fee, payouts, tickets_sold, duplicates_sold, opened_at, closed_at, settled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, int64(d.ID), string(d.Status), d.Config.NormalMax, d.Config.BonusMax, d.Config.PickSize, int64(d.Config.TicketPrice),
		tiersJSON, winningJSON, d.WinningBonus, int64(d.TicketRevenue), int64(d.PrizePool), int64(d.TotalUserPayout),
		int64(d.ProtocolFee), payoutsJSON, int64(d.TicketsSold), int64(d.DuplicatesSold),
		d.OpenedAt, toNullTime(d.ClosedAt), toNullTime(d.SettledAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return drawing.Drawing{}, err
	}
	return d, nil
}

func (s *Store) UpdateDrawing(ctx context.Context, d drawing.Drawing) (drawing.Drawing, error) {
	existing, err := s.GetDrawing(ctx, d.ID)
	if err != nil {
		return drawing.Drawing{}, err
	}

	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	tiersJSON, err := json.Marshal(d.Tiers)
	if err != nil {
		return drawing.Drawing{}, err
	}
	winningJSON, err := json.Marshal(d.WinningNumbers)
	if err != nil {
		return drawing.Drawing{}, err
	}
	payoutsJSON, err := json.Marshal(d.Payouts)
	if err != nil {
		return drawing.Drawing{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jackpot_drawings
		SET status = $2, normal_max = $3, bonus_max = $4, pick_size = $5, ticket_price = $6, tiers = $7, winning_numbers = $8, winning_bonus = $9, ticket_revenue = $10, prize_pool = $11, total_user_payout = $12, protocol_fee = $13, payouts = $14, tickets_sold = $15, duplicates_sold = $16, opened_at = $17, closed_at = $18, settled_at = $19, updated_at = $20
		WHERE id = $1
	`, int64(d.ID), string(d.Status), d.Config.NormalMax, d.Config.BonusMax, d.Config.PickSize, int64(d.Config.TicketPrice),
		tiersJSON, winningJSON, d.WinningBonus, int64(d.TicketRevenue), int64(d.PrizePool), int64(d.TotalUserPayout),
		int64(d.ProtocolFee), payoutsJSON, int64(d.TicketsSold), int64(d.DuplicatesSold),
		d.OpenedAt, toNullTime(d.ClosedAt), toNullTime(d.SettledAt), d.UpdatedAt)
	if err != nil {
		return drawing.Drawing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return drawing.Drawing{}, sql.ErrNoRows
	}
	return d, nil
}

func (s *Store) GetDrawing(ctx context.Context, id uint64) (drawing.Drawing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, normal_max, bonus_max, pick_size, ticket_price, tiers, winning_numbers, winning_bonus, ticket_revenue, prize_pool, total_user_payout, protocol_fee, payouts, tickets_sold, duplicates_sold, opened_at, closed_at, settled_at, created_at, updated_at
		FROM jackpot_drawings
		WHERE id = $1
	`, int64(id))
	return scanDrawing(row)
}

func (s *Store) ListDrawings(ctx context.Context) ([]drawing.Drawing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, normal_max, bonus_max, pick_size, ticket_price, tiers, winning_numbers, winning_bonus, ticket_revenue, prize_pool, total_user_payout, protocol_fee, payouts, tickets_sold, duplicates_sold, opened_at, closed_at, settled_at, created_at, updated_at
		FROM jackpot_drawings
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []drawing.Drawing
	for rows.Next() {
		d, err := scanDrawing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func scanDrawing(row rowScanner) (drawing.Drawing, error) {
	var (
		d                  drawing.Drawing
		id                 int64
		status             string
		ticketPrice        int64
		tiersRaw           []byte
		winningRaw         []byte
		revenue            int64
		pool               int64
		userPayout         int64
		fee                int64
		payoutsRaw         []byte
		sold               int64
		dups               int64
		closedAt, settleAt sql.NullTime
	)
	if err := row.Scan(&id, &status, &d.Config.NormalMax, &d.Config.BonusMax, &d.Config.PickSize, &ticketPrice,
		&tiersRaw, &winningRaw, &d.WinningBonus, &revenue, &pool, &userPayout, &fee, &payoutsRaw, &sold, &dups,
		&d.OpenedAt, &closedAt, &settleAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return drawing.Drawing{}, err
	}

	d.ID = uint64(id)
	d.Status = drawing.Status(status)
	d.Config.TicketPrice = uint64(ticketPrice)
	d.TicketRevenue = uint64(revenue)
	d.PrizePool = uint64(pool)
	d.TotalUserPayout = uint64(userPayout)
	d.ProtocolFee = uint64(fee)
	d.TicketsSold = uint64(sold)
	d.DuplicatesSold = uint64(dups)

	if err := json.Unmarshal(tiersRaw, &d.Tiers); err != nil {
		return drawing.Drawing{}, fmt.Errorf("decode tiers for drawing %d: %w", id, err)
	}
	if err := json.Unmarshal(winningRaw, &d.WinningNumbers); err != nil {
		return drawing.Drawing{}, fmt.Errorf("decode winning numbers for drawing %d: %w", id, err)
	}
	if err := json.Unmarshal(payoutsRaw, &d.Payouts); err != nil {
		return drawing.Drawing{}, fmt.Errorf("decode payouts for drawing %d: %w", id, err)
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		d.ClosedAt = &t
	}
	if settleAt.Valid {
		t := settleAt.Time.UTC()
		d.SettledAt = &t
	}
	return d, nil
}

// --- TicketStore ------------------------------------------------------------

func (s *Store) CreateTicket(ctx context.Context, tk ticket.Ticket) (ticket.Ticket, error) {
	if tk.ID == "" {
		tk.ID = uuid.NewString()
	}
	tk.CreatedAt = time.Now().UTC()

	numbersJSON, err := json.Marshal(tk.Numbers)
	if err != nil {
		return ticket.Ticket{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jackpot_tickets (id, drawing_id, account_id, numbers, bonus, duplicate, price, claimed, claimed_amount, created_at, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tk.ID, int64(tk.DrawingID), tk.AccountID, numbersJSON, tk.Bonus, tk.Duplicate,
		int64(tk.Price), tk.Claimed, int64(tk.ClaimedAmount), tk.CreatedAt, toNullTime(tk.ClaimedAt))
	if err != nil {
		return ticket.Ticket{}, err
	}
	return tk, nil
}

func (s *Store) UpdateTicket(ctx context.Context, tk ticket.Ticket) (ticket.Ticket, error) {
	existing, err := s.GetTicket(ctx, tk.ID)
	if err != nil {
		return ticket.Ticket{}, err
	}
	tk.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE jackpot_tickets
		SET claimed = $2, claimed_amount = $3, claimed_at = $4
		WHERE id = $1
	`, tk.ID, tk.Claimed, int64(tk.ClaimedAmount), toNullTime(tk.ClaimedAt))
	if err != nil {
		return ticket.Ticket{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ticket.Ticket{}, sql.ErrNoRows
	}
	return tk, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (ticket.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, drawing_id, account_id, numbers, bonus, duplicate, price, claimed, claimed_amount, created_at, claimed_at
		FROM jackpot_tickets
		WHERE id = $1
	`, id)
	return scanTicket(row)
}

func (s *Store) ListTickets(ctx context.Context, drawingID uint64) ([]ticket.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, drawing_id, account_id, numbers, bonus, duplicate, price, claimed, claimed_amount, created_at, claimed_at
		FROM jackpot_tickets
		WHERE drawing_id = $1
		ORDER BY created_at
	`, int64(drawingID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ticket.Ticket
	for rows.Next() {
		tk, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tk)
	}
	return result, rows.Err()
}

func (s *Store) ListAccountTickets(ctx context.Context, accountID string) ([]ticket.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, drawing_id, account_id, numbers, bonus, duplicate, price, claimed, claimed_amount, created_at, claimed_at
		FROM jackpot_tickets
		WHERE $1 = '' OR account_id = $1
		ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ticket.Ticket
	for rows.Next() {
		tk, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tk)
	}
	return result, rows.Err()
}

func scanTicket(row rowScanner) (ticket.Ticket, error) {
	var (
		tk            ticket.Ticket
		drawingID     int64
		numbersRaw    []byte
		price         int64
		claimedAmount int64
		claimedAt     sql.NullTime
	)
	if err := row.Scan(&tk.ID, &drawingID, &tk.AccountID, &numbersRaw, &tk.Bonus, &tk.Duplicate,
		&price, &tk.Claimed, &claimedAmount, &tk.CreatedAt, &claimedAt); err != nil {
		return ticket.Ticket{}, err
	}

	tk.DrawingID = uint64(drawingID)
	tk.Price = uint64(price)
	tk.ClaimedAmount = uint64(claimedAmount)

	if err := json.Unmarshal(numbersRaw, &tk.Numbers); err != nil {
		return ticket.Ticket{}, fmt.Errorf("decode numbers for ticket %s: %w", tk.ID, err)
	}
	if claimedAt.Valid {
		t := claimedAt.Time.UTC()
		tk.ClaimedAt = &t
	}
	return tk, nil
}

// --- LiquidityStore ---------------------------------------------------------

func (s *Store) UpsertPosition(ctx context.Context, pos liquidity.Position) (liquidity.Position, error) {
	now := time.Now().UTC()
	pos.CreatedAt = now
	pos.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jackpot_positions (lp, consolidated_shares, deposit_amount, deposit_drawing, withdrawal_shares, withdrawal_drawing, claimable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lp) DO UPDATE SET
			consolidated_shares = EXCLUDED.consolidated_shares,
			deposit_amount = EXCLUDED.deposit_amount,
			deposit_drawing = EXCLUDED.deposit_drawing,
			withdrawal_shares = EXCLUDED.withdrawal_shares,
			withdrawal_drawing = EXCLUDED.withdrawal_drawing,
			claimable = EXCLUDED.claimable,
			updated_at = EXCLUDED.updated_at
	`, pos.LP, int64(pos.ConsolidatedShares), int64(pos.LastDeposit.Amount), int64(pos.LastDeposit.DrawingID),
		int64(pos.PendingWithdrawal.Shares), int64(pos.PendingWithdrawal.DrawingID), int64(pos.ClaimableWithdrawals),
		pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return liquidity.Position{}, err
	}
	return pos, nil
}

func (s *Store) GetPosition(ctx context.Context, lp string) (liquidity.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT lp, consolidated_shares, deposit_amount, deposit_drawing, withdrawal_shares, withdrawal_drawing, claimable, created_at, updated_at
		FROM jackpot_positions
		WHERE lp = $1
	`, lp)
	return scanPosition(row)
}

func (s *Store) ListPositions(ctx context.Context) ([]liquidity.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lp, consolidated_shares, deposit_amount, deposit_drawing, withdrawal_shares, withdrawal_drawing, claimable, created_at, updated_at
		FROM jackpot_positions
		ORDER BY lp
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []liquidity.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pos)
	}
	return result, rows.Err()
}

func (s *Store) DeletePosition(ctx context.Context, lp string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM jackpot_positions WHERE lp = $1
	`, lp)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanPosition(row rowScanner) (liquidity.Position, error) {
	var (
		pos               liquidity.Position
		shares            int64
		depositAmount     int64
		depositDrawing    int64
		withdrawalShares  int64
		withdrawalDrawing int64
		claimable         int64
	)
	if err := row.Scan(&pos.LP, &shares, &depositAmount, &depositDrawing, &withdrawalShares, &withdrawalDrawing,
		&claimable, &pos.CreatedAt, &pos.UpdatedAt); err != nil {
		return liquidity.Position{}, err
	}

	pos.ConsolidatedShares = uint64(shares)
	pos.LastDeposit = liquidity.PendingDeposit{Amount: uint64(depositAmount), DrawingID: uint64(depositDrawing)}
	pos.PendingWithdrawal = liquidity.PendingWithdrawal{Shares: uint64(withdrawalShares), DrawingID: uint64(withdrawalDrawing)}
	pos.ClaimableWithdrawals = uint64(claimable)
	return pos, nil
}

func (s *Store) UpsertDrawingState(ctx context.Context, state liquidity.DrawingState) (liquidity.DrawingState, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jackpot_drawing_states (drawing_id, pool_total, pending_deposits, pending_withdrawals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (drawing_id) DO UPDATE SET
			pool_total = EXCLUDED.pool_total,
			pending_deposits = EXCLUDED.pending_deposits,
			pending_withdrawals = EXCLUDED.pending_withdrawals
	`, int64(state.DrawingID), int64(state.PoolTotal), int64(state.PendingDeposits), int64(state.PendingWithdrawals))
	if err != nil {
		return liquidity.DrawingState{}, err
	}
	return state, nil
}

func (s *Store) GetDrawingState(ctx context.Context, drawingID uint64) (liquidity.DrawingState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT drawing_id, pool_total, pending_deposits, pending_withdrawals
		FROM jackpot_drawing_states
		WHERE drawing_id = $1
	`, int64(drawingID))

	var (
		state liquidity.DrawingState
		id    int64
		pool  int64
		deps  int64
		withs int64
	)
	if err := row.Scan(&id, &pool, &deps, &withs); err != nil {
		return liquidity.DrawingState{}, err
	}
	state.DrawingID = uint64(id)
	state.PoolTotal = uint64(pool)
	state.PendingDeposits = uint64(deps)
	state.PendingWithdrawals = uint64(withs)
	return state, nil
}

func (s *Store) ListDrawingStates(ctx context.Context) ([]liquidity.DrawingState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT drawing_id, pool_total, pending_deposits, pending_withdrawals
		FROM jackpot_drawing_states
		ORDER BY drawing_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []liquidity.DrawingState
	for rows.Next() {
		var (
			state liquidity.DrawingState
			id    int64
			pool  int64
			deps  int64
			withs int64
		)
		if err := rows.Scan(&id, &pool, &deps, &withs); err != nil {
			return nil, err
		}
		state.DrawingID = uint64(id)
		state.PoolTotal = uint64(pool)
		state.PendingDeposits = uint64(deps)
		state.PendingWithdrawals = uint64(withs)
		result = append(result, state)
	}
	return result, rows.Err()
}

func (s *Store) CreateAccumulator(ctx context.Context, acc liquidity.Accumulator) (liquidity.Accumulator, error) {
	if acc.Price == nil {
		return liquidity.Accumulator{}, fmt.Errorf("accumulator %d requires a price", acc.DrawingID)
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jackpot_accumulators (drawing_id, price, created_at)
		VALUES ($1, $2, $3)
	`, int64(acc.DrawingID), acc.Price.String(), acc.CreatedAt)
	if err != nil {
		return liquidity.Accumulator{}, err
	}
	return acc, nil
}

func (s *Store) GetAccumulator(ctx context.Context, drawingID uint64) (liquidity.Accumulator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT drawing_id, price, created_at
		FROM jackpot_accumulators
		WHERE drawing_id = $1
	`, int64(drawingID))
	return scanAccumulator(row)
}

func (s *Store) ListAccumulators(ctx context.Context) ([]liquidity.Accumulator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT drawing_id, price, created_at
		FROM jackpot_accumulators
		ORDER BY drawing_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []liquidity.Accumulator
	for rows.Next() {
		acc, err := scanAccumulator(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acc)
	}
	return result, rows.Err()
}

func scanAccumulator(row rowScanner) (liquidity.Accumulator, error) {
	var (
		acc liquidity.Accumulator
		id  int64
		raw string
	)
	if err := row.Scan(&id, &raw, &acc.CreatedAt); err != nil {
		return liquidity.Accumulator{}, err
	}

	price, ok := big.NewInt(0).SetString(raw, 10)
	if !ok {
		return liquidity.Accumulator{}, fmt.Errorf("parse accumulator price %q for drawing %d", raw, id)
	}
	acc.DrawingID = uint64(id)
	acc.Price = price
	return acc, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
