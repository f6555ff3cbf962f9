package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mishakrpv/shoplist/internal/apperr"
	"github.com/mishakrpv/shoplist/internal/cart"
	"github.com/mishakrpv/shoplist/internal/logging"
	"github.com/mishakrpv/shoplist/internal/mykafka"
	"github.com/mishakrpv/shoplist/internal/transport"
)

type CartHTTP struct {
	Svc      *cart.Service
	Producer *mykafka.Producer
}

// statusOf translates the engine's error kinds to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *CartHTTP) publish(c echo.Context, topic, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka_publish_error", "error", err)
	}
}

func userIDParam(c echo.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("userID"))
}

func (h *CartHTTP) ListAllCarts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.list_all")

	lines, err := h.Svc.ListAllCarts(ctx)
	if err != nil {
		l.Error("list_all_carts_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *CartHTTP) GetOpenCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_open")

	userID, err := userIDParam(c)
	if err != nil {
		l.Warn("get_open_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid user id")
	}

	lines, err := h.Svc.ListOpenCart(ctx, userID)
	if err != nil {
		l.Error("get_open_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *CartHTTP) GetOrderHistory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.order_history")

	userID, err := userIDParam(c)
	if err != nil {
		l.Warn("order_history_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid user id")
	}

	lines, err := h.Svc.ListOrderHistory(ctx, userID)
	if err != nil {
		l.Error("order_history_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *CartHTTP) AddLine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_line")

	userID, err := userIDParam(c)
	if err != nil {
		l.Warn("add_line_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid user id")
	}

	var req transport.AddLineRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_line_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.ProductID == uuid.Nil {
		l.Warn("add_line_error", "status", 400)
		return c.JSON(http.StatusBadRequest, "product_id required")
	}

	line, err := h.Svc.AddLine(ctx, userID, req.ProductID)
	if err != nil {
		status := statusOf(err)
		l.Warn("add_line_error", "status", status, "error", err)
		return c.JSON(status, err.Error())
	}

	h.publish(c, "cart_events", userID.String(), map[string]any{
		"type":      "line_added",
		"userID":    userID,
		"productID": req.ProductID,
		"lineID":    line.ID,
	})

	l.Info("line added successfully to cart")
	return c.JSON(http.StatusCreated, line)
}

func (h *CartHTTP) RemoveLine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_line")

	lineID, err := uuid.Parse(c.Param("lineID"))
	if err != nil {
		l.Warn("remove_line_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid line id")
	}

	if err := h.Svc.RemoveLine(ctx, lineID); err != nil {
		status := statusOf(err)
		l.Warn("remove_line_error", "status", status, "error", err)
		return c.JSON(status, err.Error())
	}

	h.publish(c, "cart_events", lineID.String(), map[string]any{
		"type":   "line_removed",
		"lineID": lineID,
	})

	l.Info("line removed successfully from cart")
	return c.JSON(http.StatusOK, map[string]any{"deleted_line": lineID})
}

func (h *CartHTTP) Finalize(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.finalize")

	userID, err := userIDParam(c)
	if err != nil {
		l.Warn("finalize_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid user id")
	}

	var req transport.FinalizeRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("finalize_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	result, err := h.Svc.Finalize(ctx, userID, req.StoreID)
	if err != nil {
		status := statusOf(err)
		l.Warn("finalize_error", "status", status, "error", err)
		return c.JSON(status, err.Error())
	}

	h.publish(c, "order_events", userID.String(), map[string]any{
		"type":        "order_created",
		"userID":      userID,
		"orderNumber": result.OrderNumber,
	})

	l.Info("finalize_success", "order_number", result.OrderNumber)
	return c.JSON(http.StatusOK, result)
}

func (h *CartHTTP) Fulfill(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.fulfill")

	orderNumber, err := strconv.ParseInt(c.Param("orderNumber"), 10, 64)
	if err != nil {
		l.Warn("fulfill_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid order number")
	}

	message, err := h.Svc.Fulfill(ctx, orderNumber)
	if err != nil {
		status := statusOf(err)
		l.Warn("fulfill_error", "status", status, "error", err)
		return c.JSON(status, err.Error())
	}

	h.publish(c, "order_events", strconv.FormatInt(orderNumber, 10), map[string]any{
		"type":        "order_fulfilled",
		"orderNumber": orderNumber,
	})

	l.Info("fulfill_success", "order_number", orderNumber)
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: message})
}
