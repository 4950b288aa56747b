package internal

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/DrGermanius/buyback/internal/dates"
	"github.com/DrGermanius/buyback/internal/ingest"
	"github.com/DrGermanius/buyback/internal/model"
)

type ConvertInput struct {
	Filename string      `json:"filename"`
	Mode     ingest.Mode `json:"mode"`
}

type Handlers struct {
	Service IService
	dates   *dates.Normalizer
	logger  *zap.SugaredLogger
}

func NewHandlers(Service IService, normalizer *dates.Normalizer, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{Service: Service, dates: normalizer, logger: logger}
}

func (h *Handlers) Routes(api fiber.Router, auth *Auth) {
	api.Use(auth.Authenticated())

	orders := api.Group("/orders")
	orders.Get("/", h.GetOrders)
	orders.Get("/status-counts", h.GetStatusCounts)
	orders.Post("/convert", auth.AdminOnly(), h.ConvertFile)
	orders.Get("/:orderId", h.GetOrderByID)

	uploads := api.Group("/uploads")
	uploads.Get("/", h.ListUploads)
	uploads.Post("/", auth.AdminOnly(), h.UploadFile)
	uploads.Delete("/:filename", auth.AdminOnly(), h.DeleteUpload)
}

func (h *Handlers) ConvertFile(c *fiber.Ctx) error {
	var i ConvertInput

	if err := c.BodyParser(&i); err != nil || i.Filename == "" {
		h.logger.Errorw("Error on convert request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Filename is required", "error": errText(err)})
	}

	res, err := h.Service.ConvertFile(c.Context(), i.Filename, i.Mode)
	if err != nil {
		h.logger.Errorw("Error on convert request", "file", i.Filename, "mode", i.Mode, "error", err)
		if ingest.IsClientError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid conversion request", "error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Error processing the file", "error": err.Error()})
	}

	if res.Mode == ingest.ModeInsert {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "File converted and orders saved successfully", "data": res.Orders})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "File converted and orders upserted successfully", "data": res.Orders})
}

func (h *Handlers) GetOrders(c *fiber.Ctx) error {
	f := model.OrderFilter{
		Status:      c.Query("status"),
		PartnerShop: c.Query("partnerShop"),
	}
	var ok bool
	if f.From, ok = h.queryDate(c, "from"); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid date", "error": "from: " + c.Query("from")})
	}
	if f.To, ok = h.queryDate(c, "to"); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid date", "error": "to: " + c.Query("to")})
	}

	orders, err := h.Service.GetOrders(c.Context(), f)
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		if errors.Is(err, ErrInvalidFilter) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid filter", "error": err.Error()})
		}
		h.logger.Errorw("Error on get orders request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to fetch orders", "error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(orders)
}

// queryDate reads an optional calendar date. ok is false only when a value
// is present but cannot be parsed.
func (h *Handlers) queryDate(c *fiber.Ctx, key string) (*time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	t := h.dates.ParseDateOnly(v)
	return t, t != nil
}

func (h *Handlers) GetStatusCounts(c *fiber.Ctx) error {
	counts, err := h.Service.GetStatusCounts(c.Context())
	if err != nil {
		h.logger.Errorw("Error on status counts request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to fetch status counts", "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(counts)
}

func (h *Handlers) GetOrderByID(c *fiber.Ctx) error {
	o, err := h.Service.GetOrderByID(c.Context(), c.Params("orderId"))
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Order not found"})
		}
		h.logger.Errorw("Error on get order request", "order", c.Params("orderId"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to fetch order", "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(o)
}

func (h *Handlers) ListUploads(c *fiber.Ctx) error {
	out, err := h.Service.ListUploads(c.Context())
	if err != nil {
		h.logger.Errorw("Error on list uploads request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to list uploads", "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *Handlers) UploadFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrNoFile.Error(), "error": err.Error()})
	}

	path, err := h.Service.UploadPath(fh.Filename)
	if err != nil {
		if ingest.IsClientError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid upload", "error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to save file", "error": err.Error()})
	}

	if err = c.SaveFile(fh, path); err != nil {
		h.logger.Errorw("Error on upload request", "file", fh.Filename, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to save file", "error": err.Error()})
	}

	h.logger.Infow("File saved", "file", fh.Filename)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "File uploaded successfully", "filename": fh.Filename})
}

func (h *Handlers) DeleteUpload(c *fiber.Ctx) error {
	name := c.Params("filename")

	err := h.Service.DeleteUpload(c.Context(), name)
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "File not found"})
		}
		if ingest.IsClientError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid filename", "error": err.Error()})
		}
		h.logger.Errorw("Error on delete upload request", "file", name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to delete file", "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "File deleted", "filename": name})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
