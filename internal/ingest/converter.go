package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/DrGermanius/buyback/internal/metrics"
	"github.com/DrGermanius/buyback/internal/model"
)

type Mode string

const (
	ModeInsert Mode = "insert"
	ModeUpsert Mode = "upsert"
)

const (
	extCSV  = ".csv"
	extXLSX = ".xlsx"
)

// Storage is the order collection the converter writes to. Writes are atomic
// per order only.
type Storage interface {
	UpsertOrder(ctx context.Context, order model.Order) (model.Order, error)
	InsertOrders(ctx context.Context, orders []model.Order) ([]model.Order, error)
}

type Converter interface {
	Convert(ctx context.Context, filename string, mode Mode) (Result, error)
}

type Result struct {
	Filename string        `json:"filename"`
	Mode     Mode          `json:"mode"`
	Count    int           `json:"count"`
	Skipped  int           `json:"skipped"`
	Orders   []model.Order `json:"orders"`
}

type FileConverter struct {
	dir     string
	store   Storage
	mapper  *Mapper
	maxRows int
	logger  *zap.SugaredLogger
	metrics *metrics.Registry
}

// NewFileConverter reads uploads from dir. maxRows bounds the data rows of a
// single file; zero disables the bound.
func NewFileConverter(dir string, store Storage, mapper *Mapper, maxRows int, logger *zap.SugaredLogger, reg *metrics.Registry) *FileConverter {
	return &FileConverter{
		dir:     dir,
		store:   store,
		mapper:  mapper,
		maxRows: maxRows,
		logger:  logger,
		metrics: reg,
	}
}

func (c *FileConverter) Convert(ctx context.Context, filename string, mode Mode) (Result, error) {
	res := Result{Filename: filename, Mode: mode}

	if mode != ModeInsert && mode != ModeUpsert {
		return res, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	name, err := CleanFilename(filename)
	if err != nil {
		return res, err
	}
	if !SupportedExt(name) {
		return res, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return res, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", name, err)
	}

	orders, skipped, err := c.readOrders(path)
	if err != nil {
		return res, err
	}
	res.Skipped = skipped
	c.metrics.RowsSkipped.Add(float64(skipped))

	switch mode {
	case ModeUpsert:
		res.Orders = make([]model.Order, 0, len(orders))
		for _, o := range orders {
			stored, err := c.store.UpsertOrder(ctx, o)
			if err != nil {
				res.Count = len(res.Orders)
				c.metrics.Orders.WithLabelValues(string(mode)).Add(float64(res.Count))
				return res, fmt.Errorf("upsert order %s: %w", o.OrderID, err)
			}
			res.Orders = append(res.Orders, stored)
		}
	case ModeInsert:
		if len(orders) > 0 {
			created, err := c.store.InsertOrders(ctx, orders)
			if err != nil {
				return res, fmt.Errorf("insert orders from %s: %w", name, err)
			}
			res.Orders = created
		}
	}

	res.Count = len(res.Orders)
	c.metrics.Orders.WithLabelValues(string(mode)).Add(float64(res.Count))
	return res, nil
}

// readOrders streams the file and maps every data row. Rows without an order
// id cannot be stored and are counted as skipped.
func (c *FileConverter) readOrders(path string) ([]model.Order, int, error) {
	rows, err := openRows(path)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		orders  []model.Order
		skipped int
		n       int
	)
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}

		n++
		if c.maxRows > 0 && n > c.maxRows {
			return nil, 0, fmt.Errorf("%w: more than %d rows in %s", ErrTooManyRows, c.maxRows, filepath.Base(path))
		}

		o := c.mapper.MapRow(row)
		if o.OrderID == "" {
			skipped++
			c.logger.Warnw("Skipping row without order id", "file", filepath.Base(path), "row", n+1)
			continue
		}
		orders = append(orders, o)
	}
	return orders, skipped, nil
}

// CleanFilename rejects anything that is not a bare file name inside the
// uploads directory.
func CleanFilename(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return name, nil
}

func SupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case extCSV, extXLSX:
		return true
	}
	return false
}

// Qualifies reports whether a file in the uploads directory should be
// ingested.
func Qualifies(name string) bool {
	return name != ".gitkeep" && SupportedExt(name)
}
