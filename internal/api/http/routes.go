package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/series-dashboard/internal/series"
	"github.com/i474232898/series-dashboard/internal/session"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *series.Service, sessions *session.Manager) {
	v1 := app.Group("/api/v1")

	v1.Get("/views", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"views": service.Views()})
	})

	v1.Post("/cache/clear", func(c *fiber.Ctx) error {
		service.InvalidateAll()
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Post("/sessions", func(c *fiber.Ctx) error {
		id, _ := sessions.Create()
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": id})
	})

	v1.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		if !sessions.End(c.Params("id")) {
			return fiber.NewError(fiber.StatusNotFound, session.ErrNotFound.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	views := v1.Group("/sessions/:id/views/:view")

	views.Get("/", func(c *fiber.Ctx) error {
		st, err := sessions.Get(c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		res, err := service.Render(c.UserContext(), st, c.Params("view"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(res)
	})

	views.Patch("/selection", func(c *fiber.Ctx) error {
		st, err := sessions.Get(c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}

		var req selectionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		upd, err := req.toUpdate()
		if err != nil {
			return toFiberError(err)
		}

		res, err := service.UpdateSelection(c.UserContext(), st, c.Params("view"), upd)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(res)
	})

	views.Post("/reset", func(c *fiber.Ctx) error {
		st, err := sessions.Get(c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		res, err := service.ResetFilters(c.UserContext(), st, c.Params("view"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(res)
	})

	views.Post("/reload", func(c *fiber.Ctx) error {
		st, err := sessions.Get(c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		res, err := service.ForceReload(c.UserContext(), st, c.Params("view"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(res)
	})
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, series.ErrInvalidParameter):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, series.ErrUnknownView):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render view")
	}
}

// selectionRequest is the body of a selection update; absent fields are left unchanged.
type selectionRequest struct {
	Period     *periodRequest  `json:"period" validate:"omitempty"`
	WindowSize *int            `json:"windowSize" validate:"omitempty,min=1,max=20"`
	Mode       string          `json:"displayMode" validate:"omitempty,oneof=combined per-source"`
	Batches    *batchRequest   `json:"batchRange" validate:"omitempty"`
	Sources    map[string]bool `json:"sources" validate:"omitempty,dive,keys,required,endkeys"`
}

type periodRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type batchRequest struct {
	Min int64 `json:"min"`
	Max int64 `json:"max" validate:"gtefield=Min"`
}

func (r selectionRequest) toUpdate() (series.SelectionUpdate, error) {
	upd := series.SelectionUpdate{
		WindowSize: r.WindowSize,
		Sources:    r.Sources,
	}
	if r.Period != nil {
		start, err := series.ParseDay(r.Period.Start)
		if err != nil {
			return upd, errors.Join(series.ErrInvalidParameter, err)
		}
		end, err := series.ParseDay(r.Period.End)
		if err != nil {
			return upd, errors.Join(series.ErrInvalidParameter, err)
		}
		upd.Period = &series.Period{Start: start, End: end}
	}
	if r.Mode != "" {
		mode := series.DisplayMode(r.Mode)
		upd.Mode = &mode
	}
	if r.Batches != nil {
		upd.Batches = &series.BatchRange{Min: r.Batches.Min, Max: r.Batches.Max}
	}
	return upd, nil
}
