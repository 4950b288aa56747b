package internal_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"go.uber.org/zap"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/DrGermanius/buyback/internal"
	"github.com/DrGermanius/buyback/internal/ingest"
	"github.com/DrGermanius/buyback/internal/model"
)

var orderColumns = []string{
	"order_id", "order_date", "order_time_stamp", "old_item_status", "buyback_category", "partner_id",
	"partner_email", "partner_shop", "old_item_details", "base_discount", "delivery_fee", "tracking_id",
	"delivery_date", "delivered_with_otp", "action_status", "locked", "created_at", "updated_at",
}

func orderRow(id string, actionStatus interface{}, locked bool) []driver.Value {
	t := time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, t, "14-04-2025 10:30:00", "DELIVERED", "Mobile", "P-7",
		"shop@example.com", "Pune", "Phone X", "1500.00", "49.50", "TRK1",
		nil, true, actionStatus, locked, t, t,
	}
}

var _ = Describe("Repository", func() {
	var (
		repo internal.Repository
		mock sqlmock.Sqlmock
	)
	BeforeEach(func() {
		db, m, err := sqlmock.New()
		Expect(err).ShouldNot(HaveOccurred())

		mock = m
		logger, err := zap.NewDevelopment()
		Expect(err).ShouldNot(HaveOccurred())

		repo = internal.Repository{
			Conn:   db,
			Logger: logger.Sugar(),
		}
	})
	AfterEach(func() {
		err := mock.ExpectationsWereMet()
		Expect(err).ShouldNot(HaveOccurred())
	})
	Context("Repository tests", func() {
		It("UpsertOrder returns the stored row with review fields intact", func() {
			rows := sqlmock.NewRows(orderColumns).AddRow(orderRow("A1", model.ActionStatusReceived, true)...)

			mock.ExpectQuery("INSERT INTO orders (.+) ON CONFLICT \\(order_id\\) DO UPDATE SET (.+) RETURNING (.+)").
				WillReturnRows(rows)

			o, err := repo.UpsertOrder(context.Background(), model.Order{OrderID: "A1", OldItemStatus: "DELIVERED"})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(o.OrderID).To(Equal("A1"))
			Expect(o.ActionStatus).NotTo(BeNil())
			Expect(*o.ActionStatus).To(Equal(model.ActionStatusReceived))
			Expect(o.Locked).To(BeTrue())
			Expect(o.BaseDiscount.String()).To(Equal("1500"))
			Expect(o.DeliveryDate).To(BeNil())
		})
		It("UpsertOrder with error", func() {
			mock.ExpectQuery("INSERT INTO orders (.+) ON CONFLICT").WillReturnError(errors.New("some error"))

			_, err := repo.UpsertOrder(context.Background(), model.Order{OrderID: "A1"})
			Expect(err).Should(HaveOccurred())
		})
		It("InsertOrders commits every order in one transaction", func() {
			mock.ExpectBegin()
			prep := mock.ExpectPrepare("INSERT INTO orders (.+) VALUES (.+) RETURNING (.+)")
			prep.ExpectQuery().WithArgs(
				"A1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(orderRow("A1", nil, false)...))
			prep.ExpectQuery().
				WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(orderRow("A2", nil, false)...))
			mock.ExpectCommit()

			created, err := repo.InsertOrders(context.Background(), []model.Order{{OrderID: "A1"}, {OrderID: "A2"}})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(created).To(HaveLen(2))
			Expect(created[0].ActionStatus).To(BeNil())
		})
		It("InsertOrders rolls back on a duplicate order id", func() {
			mock.ExpectBegin()
			prep := mock.ExpectPrepare("INSERT INTO orders (.+) VALUES (.+) RETURNING (.+)")
			prep.ExpectQuery().
				WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(orderRow("A1", nil, false)...))
			prep.ExpectQuery().
				WillReturnError(&pgconn.PgError{Code: "23505", Detail: "Key (order_id)=(A1) already exists."})
			mock.ExpectRollback()

			_, err := repo.InsertOrders(context.Background(), []model.Order{{OrderID: "A1"}, {OrderID: "A1"}})
			Expect(errors.Is(err, ingest.ErrDuplicateOrder)).To(BeTrue())
		})
		It("InsertOrders with begin error", func() {
			mock.ExpectBegin().WillReturnError(errors.New("some error"))

			_, err := repo.InsertOrders(context.Background(), []model.Order{{OrderID: "A1"}})
			Expect(err).Should(HaveOccurred())
		})
		It("GetOrderByID without error", func() {
			mock.ExpectQuery("SELECT (.+) FROM orders WHERE order_id = \\$1").
				WithArgs("A1").WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(orderRow("A1", nil, false)...)).
				RowsWillBeClosed()

			o, err := repo.GetOrderByID(context.Background(), "A1")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(o.PartnerShop).To(Equal("Pune"))
			Expect(o.OrderDate).NotTo(BeNil())
		})
		It("GetOrderByID without rows", func() {
			mock.ExpectQuery("SELECT (.+) FROM orders WHERE order_id = \\$1").
				WithArgs("missing").WillReturnRows(sqlmock.NewRows(orderColumns))

			_, err := repo.GetOrderByID(context.Background(), "missing")
			Expect(err).To(MatchError(internal.ErrNoRecords))
		})
		It("GetOrders without filter", func() {
			rows := sqlmock.NewRows(orderColumns).
				AddRow(orderRow("A2", nil, false)...).
				AddRow(orderRow("A1", nil, false)...)

			mock.ExpectQuery("SELECT (.+) FROM orders ORDER BY order_date DESC NULLS LAST, created_at DESC").
				WillReturnRows(rows).RowsWillBeClosed()

			orders, err := repo.GetOrders(context.Background(), model.OrderFilter{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(orders).To(HaveLen(2))
		})
		It("GetOrders with filter", func() {
			from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

			mock.ExpectQuery("SELECT (.+) FROM orders WHERE old_item_status = \\$1 AND partner_shop = \\$2 AND order_date >= \\$3 ORDER BY (.+)").
				WithArgs("DELIVERED", "Pune", from).WillReturnRows(sqlmock.NewRows(orderColumns))

			orders, err := repo.GetOrders(context.Background(), model.OrderFilter{Status: "DELIVERED", PartnerShop: "Pune", From: &from})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(orders).To(BeEmpty())
		})
		It("GetOrders with error", func() {
			mock.ExpectQuery("SELECT (.+) FROM orders").WillReturnError(errors.New("some error"))

			_, err := repo.GetOrders(context.Background(), model.OrderFilter{})
			Expect(err).Should(HaveOccurred())
		})
		It("GetStatusCounts without error", func() {
			rows := sqlmock.NewRows([]string{"old_item_status", "count"}).
				AddRow("DELIVERED", 3).
				AddRow("IN TRANSIT", 1)

			mock.ExpectQuery("SELECT old_item_status, COUNT\\(\\*\\) FROM orders GROUP BY old_item_status").
				WillReturnRows(rows)

			counts, err := repo.GetStatusCounts(context.Background())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(counts).To(Equal([]model.StatusCount{{Status: "DELIVERED", Count: 3}, {Status: "IN TRANSIT", Count: 1}}))
		})
	})
})
