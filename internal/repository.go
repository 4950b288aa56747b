package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/DrGermanius/buyback/internal/ingest"
	"github.com/DrGermanius/buyback/internal/migrations"
	"github.com/DrGermanius/buyback/internal/model"
)

const (
	orderFields = "order_id, order_date, order_time_stamp, old_item_status, buyback_category, partner_id, " +
		"partner_email, partner_shop, old_item_details, base_discount, delivery_fee, tracking_id, " +
		"delivery_date, delivered_with_otp, action_status, locked, created_at, updated_at"

	ingestFields = "order_id, order_date, order_time_stamp, old_item_status, buyback_category, partner_id, " +
		"partner_email, partner_shop, old_item_details, base_discount, delivery_fee, tracking_id, " +
		"delivery_date, delivered_with_otp"

	ingestValues = "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14"
)

const uniqueViolation = "23505"

// action_status and locked are owned by the review workflow and stay out of
// the update set.
const upsertOrderQuery = "INSERT INTO orders (" + ingestFields + ") VALUES (" + ingestValues + ") " +
	"ON CONFLICT (order_id) DO UPDATE SET " +
	"order_date = EXCLUDED.order_date, " +
	"order_time_stamp = EXCLUDED.order_time_stamp, " +
	"old_item_status = EXCLUDED.old_item_status, " +
	"buyback_category = EXCLUDED.buyback_category, " +
	"partner_id = EXCLUDED.partner_id, " +
	"partner_email = EXCLUDED.partner_email, " +
	"partner_shop = EXCLUDED.partner_shop, " +
	"old_item_details = EXCLUDED.old_item_details, " +
	"base_discount = EXCLUDED.base_discount, " +
	"delivery_fee = EXCLUDED.delivery_fee, " +
	"tracking_id = EXCLUDED.tracking_id, " +
	"delivery_date = EXCLUDED.delivery_date, " +
	"delivered_with_otp = EXCLUDED.delivered_with_otp, " +
	"updated_at = now() " +
	"RETURNING " + orderFields

const insertOrderQuery = "INSERT INTO orders (" + ingestFields + ") VALUES (" + ingestValues + ") RETURNING " + orderFields

type IRepository interface {
	UpsertOrder(context.Context, model.Order) (model.Order, error)
	InsertOrders(context.Context, []model.Order) ([]model.Order, error)
	GetOrderByID(context.Context, string) (model.Order, error)
	GetOrders(context.Context, model.OrderFilter) ([]model.Order, error)
	GetStatusCounts(context.Context) ([]model.StatusCount, error)
}

type Repository struct {
	Conn   *sql.DB
	Logger *zap.SugaredLogger
}

func NewRepository(connString string, logger *zap.SugaredLogger) (*Repository, error) {
	conn, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if err = migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Repository{Conn: conn, Logger: logger}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

func (r Repository) Close() error {
	return r.Conn.Close()
}

func (r Repository) UpsertOrder(ctx context.Context, o model.Order) (model.Order, error) {
	row := r.Conn.QueryRowContext(ctx, upsertOrderQuery, ingestArgs(o)...)
	stored, err := scanOrder(row)
	if err != nil {
		return model.Order{}, mapWriteError(err)
	}
	return stored, nil
}

// InsertOrders creates every order in one transaction. Any failure, including
// an order id that already exists, rolls the whole batch back.
func (r Repository) InsertOrders(ctx context.Context, orders []model.Order) ([]model.Order, error) {
	tx, err := r.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, insertOrderQuery)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	created := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		stored, err := scanOrder(stmt.QueryRowContext(ctx, ingestArgs(o)...))
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("order %s: %w", o.OrderID, mapWriteError(err))
		}
		created = append(created, stored)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (r Repository) GetOrderByID(ctx context.Context, orderID string) (model.Order, error) {
	row := r.Conn.QueryRowContext(ctx, "SELECT "+orderFields+" FROM orders WHERE order_id = $1", orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNoRecords
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r Repository) GetOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("old_item_status = $%d", f.Status)
	}
	if f.PartnerShop != "" {
		add("partner_shop = $%d", f.PartnerShop)
	}
	if f.From != nil {
		add("order_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("order_date <= $%d", *f.To)
	}

	q := "SELECT " + orderFields + " FROM orders"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY order_date DESC NULLS LAST, created_at DESC"

	rows, err := r.Conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r Repository) GetStatusCounts(ctx context.Context) ([]model.StatusCount, error) {
	rows, err := r.Conn.QueryContext(ctx,
		"SELECT old_item_status, COUNT(*) FROM orders GROUP BY old_item_status ORDER BY old_item_status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []model.StatusCount
	for rows.Next() {
		var sc model.StatusCount
		if err = rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (model.Order, error) {
	var (
		o                       model.Order
		orderDate, deliveryDate sql.NullTime
		actionStatus            sql.NullString
	)
	err := s.Scan(&o.OrderID, &orderDate, &o.OrderTimeStamp, &o.OldItemStatus, &o.BuybackCategory, &o.PartnerID,
		&o.PartnerEmail, &o.PartnerShop, &o.OldItemDetails, &o.BaseDiscount, &o.DeliveryFee, &o.TrackingID,
		&deliveryDate, &o.DeliveredWithOTP, &actionStatus, &o.Locked, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	if orderDate.Valid {
		o.OrderDate = &orderDate.Time
	}
	if deliveryDate.Valid {
		o.DeliveryDate = &deliveryDate.Time
	}
	if actionStatus.Valid {
		o.ActionStatus = &actionStatus.String
	}
	return o, nil
}

func ingestArgs(o model.Order) []interface{} {
	return []interface{}{
		o.OrderID, nullTime(o.OrderDate), o.OrderTimeStamp, o.OldItemStatus, o.BuybackCategory, o.PartnerID,
		o.PartnerEmail, o.PartnerShop, o.OldItemDetails, o.BaseDiscount, o.DeliveryFee, o.TrackingID,
		nullTime(o.DeliveryDate), o.DeliveredWithOTP,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ingest.ErrDuplicateOrder, pgErr.Detail)
	}
	return err
}
