package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_id, restaurant_id, delivery_address_id,
			subtotal, delivery_fee, total, status, delivery_person_id, notes, applied_offers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertItemSQL = `INSERT INTO order_items (order_id, position, product_id, quantity,
			original_unit_price, unit_price, subtotal, offer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertPaymentSQL = `INSERT INTO payments (id, order_id, method, status, transaction_ref, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id::text, customer_id, restaurant_id, delivery_address_id, subtotal, delivery_fee, total,
			status, delivery_person_id, notes, applied_offers, created_at, updated_at
		FROM orders WHERE id = $1`

	getItemsSQL = `SELECT product_id, quantity, original_unit_price, unit_price, subtotal, offer_id
		FROM order_items WHERE order_id = $1 ORDER BY position`

	getPaymentSQL = `SELECT id::text, method, status, transaction_ref, amount, created_at
		FROM payments WHERE order_id = $1`

	updateStatusSQL = `UPDATE orders SET status = $3, delivery_person_id = $4, updated_at = $5
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	getHistorySQL = `SELECT from_status, to_status, actor_id, actor_role, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its items, its payment and the initial history
// entry in a single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return fmt.Errorf("order id %q: %w", o.ID, err)
	}
	if o.Payment == nil {
		return fmt.Errorf("order %s has no payment", o.ID)
	}
	paymentID, err := uuid.Parse(o.Payment.ID)
	if err != nil {
		return fmt.Errorf("payment id %q: %w", o.Payment.ID, err)
	}
	for field, ts := range map[string]time.Time{
		"order created_at":   o.CreatedAt,
		"order updated_at":   o.UpdatedAt,
		"payment created_at": o.Payment.CreatedAt,
	} {
		if err := requireUTC(field, ts); err != nil {
			return err
		}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	applied := o.AppliedOffers
	if applied == nil {
		applied = []int64{}
	}

	batch := &pgx.Batch{}
	batch.Queue(insertOrderSQL,
		id, o.CustomerID, o.RestaurantID, o.DeliveryAddressID,
		o.Subtotal.Round(2), o.DeliveryFee.Round(2), o.Total.Round(2),
		string(o.Status), o.DeliveryPersonID, o.Notes, applied, o.CreatedAt, o.UpdatedAt,
	)
	for i, item := range o.Items {
		batch.Queue(insertItemSQL,
			id, i, item.ProductID, item.Quantity,
			item.OriginalUnitPrice.Round(2), item.UnitPrice.Round(2), item.Subtotal.Round(2), item.OfferID,
		)
	}
	batch.Queue(insertPaymentSQL,
		paymentID, id, string(o.Payment.Method), string(o.Payment.Status),
		o.Payment.TransactionRef, o.Payment.Amount.Round(2), o.Payment.CreatedAt,
	)
	batch.Queue(insertHistorySQL,
		id, "", string(o.Status), o.CustomerID, string(auth.RoleCustomer), o.CreatedAt,
	)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting order %s: %w", o.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order with its items and payment.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	oid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}

	var (
		o        order.Order
		created  time.Time
		updated  time.Time
		courier  *int64
		statusDB string
	)
	err = r.pool.QueryRow(ctx, getOrderSQL, oid).Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.DeliveryAddressID,
		&o.Subtotal, &o.DeliveryFee, &o.Total,
		&statusDB, &courier, &o.Notes, &o.AppliedOffers, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o.Status = order.Status(statusDB)
	o.DeliveryPersonID = courier
	o.CreatedAt = created.UTC()
	o.UpdatedAt = updated.UTC()

	rows, err := r.pool.Query(ctx, getItemsSQL, oid)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %s: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ProductID, &it.Quantity, &it.OriginalUnitPrice, &it.UnitPrice, &it.Subtotal, &it.OfferID)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting items of order %s: %w", id, err)
	}

	var (
		p       order.Payment
		paidAt  time.Time
		method  string
		pstatus string
	)
	err = r.pool.QueryRow(ctx, getPaymentSQL, oid).Scan(&p.ID, &method, &pstatus, &p.TransactionRef, &p.Amount, &paidAt)
	switch {
	case err == nil:
		p.Method = order.PaymentMethod(method)
		p.Status = order.PaymentStatus(pstatus)
		p.CreatedAt = paidAt.UTC()
		o.Payment = &p
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("getting payment of order %s: %w", id, err)
	}

	return &o, nil
}

// UpdateStatus applies a status change if the order is still in change.From
// and records it in the status history.
func (r *OrderRepository) UpdateStatus(ctx context.Context, change order.StatusChange) error {
	oid, err := parseOrderID(change.OrderID)
	if err != nil {
		return err
	}
	if err := requireUTC("status change time", change.At); err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, updateStatusSQL,
		oid, string(change.From), string(change.To), change.DeliveryPersonID, change.At,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", change.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, orderExistsSQL, oid).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %s: %w", change.OrderID, err)
		}
		if !exists {
			return fmt.Errorf("order %s: %w", change.OrderID, fault.ErrNotFound)
		}
		return fmt.Errorf("%w: order %s is no longer %s", fault.ErrInvalidState, change.OrderID, change.From)
	}

	if _, err := tx.Exec(ctx, insertHistorySQL,
		oid, string(change.From), string(change.To), change.ActorID, string(change.ActorRole), change.At,
	); err != nil {
		return fmt.Errorf("recording history of order %s: %w", change.OrderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing status of order %s: %w", change.OrderID, err)
	}
	return nil
}

// History returns the status transitions of an order, oldest first.
func (r *OrderRepository) History(ctx context.Context, id string) ([]order.HistoryEntry, error) {
	oid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, getHistorySQL, oid)
	if err != nil {
		return nil, fmt.Errorf("getting history of order %s: %w", id, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.HistoryEntry, error) {
		var (
			e        order.HistoryEntry
			from, to string
			role     string
			at       time.Time
		)
		err := row.Scan(&from, &to, &e.ActorID, &role, &at)
		e.From = order.Status(from)
		e.To = order.Status(to)
		e.ActorRole = auth.Role(role)
		e.At = at.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting history of order %s: %w", id, err)
	}
	return entries, nil
}

// parseOrderID treats malformed identifiers as unknown orders.
func parseOrderID(id string) (uuid.UUID, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("order %q: %w", id, fault.ErrNotFound)
	}
	return oid, nil
}
