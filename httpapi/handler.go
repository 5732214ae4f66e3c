// Package httpapi exposes literecord stores as read-only JSON endpoints.
package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dir01/literecord"
)

// TotalCountHeader carries the unpaged match count of a list response.
const TotalCountHeader = "X-Total-Count"

// Handler serves list, count, one and get endpoints for a set of stores.
type Handler struct {
	stores map[string]*literecord.Store
	logger *zap.Logger
}

// NewHandler serves each store under its schema name.
func NewHandler(logger *zap.Logger, stores ...*literecord.Store) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{stores: make(map[string]*literecord.Store, len(stores)), logger: logger}
	for _, s := range stores {
		h.stores[s.Schema().Name] = s
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/:entity/count", h.Count)
	r.Get("/:entity/one", h.One)
	r.Get("/:entity/:id", h.Get)
	r.Get("/:entity", h.List)
}

// NewApp returns a fiber app with h mounted at the root.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.Register(app)
	return app
}

// List serves GET /:entity and sets TotalCountHeader to the unpaged count.
func (h *Handler) List(c *fiber.Ctx) error {
	store, params, err := h.resolve(c)
	if err != nil {
		return h.fail(c, err)
	}
	records, err := store.List(c.UserContext(), params)
	if err != nil {
		return h.fail(c, err)
	}
	total, err := store.Count(c.UserContext(), params.CountFilters())
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(TotalCountHeader, strconv.FormatInt(total, 10))

	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.Serialize(literecord.SerializeOptions{})
	}
	return c.JSON(out)
}

// Count serves GET /:entity/count.
func (h *Handler) Count(c *fiber.Ctx) error {
	store, params, err := h.resolve(c)
	if err != nil {
		return h.fail(c, err)
	}
	n, err := store.Count(c.UserContext(), params.CountFilters())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// One serves GET /:entity/one, answering 404 when nothing matches.
func (h *Handler) One(c *fiber.Ctx) error {
	store, params, err := h.resolve(c)
	if err != nil {
		return h.fail(c, err)
	}
	record, err := store.First(c.UserContext(), params)
	if err != nil {
		return h.fail(c, err)
	}
	if record == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "no record matches"})
	}
	return c.JSON(record)
}

// Get serves GET /:entity/:id for schemas with a simple key.
func (h *Handler) Get(c *fiber.Ctx) error {
	store, ok := h.stores[c.Params("entity")]
	if !ok {
		return h.fail(c, errUnknownEntity)
	}
	if store.Schema().IsComposite() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "composite keys cannot be fetched by path, use /one"})
	}
	record, err := store.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if record == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
	}
	return c.JSON(record)
}

var errUnknownEntity = errors.New("unknown entity")

func (h *Handler) resolve(c *fiber.Ctx) (*literecord.Store, literecord.ListParams, error) {
	store, ok := h.stores[c.Params("entity")]
	if !ok {
		return nil, literecord.ListParams{}, errUnknownEntity
	}
	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return nil, literecord.ListParams{}, errors.Join(literecord.ErrInvalidParams, err)
	}
	params, err := literecord.ParseQuery(values)
	if err != nil {
		return nil, literecord.ListParams{}, err
	}
	return store, params, nil
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	body := fiber.Map{"error": err.Error()}
	var verr *literecord.ValidationError
	if errors.As(err, &verr) {
		body["errors"] = verr.Errors
	}
	return c.Status(status).JSON(body)
}

func statusFor(err error) int {
	var (
		unknownRel *literecord.UnknownRelationError
		unresolved *literecord.UnresolvedTargetError
		invalid    *literecord.ValidationError
	)
	switch {
	case errors.Is(err, errUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, literecord.ErrInvalidParams),
		errors.As(err, &unknownRel),
		errors.As(err, &unresolved),
		errors.As(err, &invalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
