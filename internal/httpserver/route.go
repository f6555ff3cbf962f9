package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mishakrpv/shoplist/internal/logging"
)

type Deps struct {
	CartHandler *CartHTTP
	Logger      *slog.Logger
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if d.Logger != nil {
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				req := c.Request()
				ctx := logging.IntoContext(req.Context(), d.Logger)
				c.SetRequest(req.WithContext(ctx))
				return next(c)
			}
		})
	}

	carts := e.Group("/carts")
	carts.GET("", d.CartHandler.ListAllCarts)
	carts.GET("/:userID", d.CartHandler.GetOpenCart)
	carts.GET("/:userID/orders", d.CartHandler.GetOrderHistory)
	carts.POST("/:userID/items", d.CartHandler.AddLine)
	carts.POST("/:userID/finalize", d.CartHandler.Finalize)
	carts.DELETE("/items/:lineID", d.CartHandler.RemoveLine)

	e.POST("/orders/:orderNumber/fulfill", d.CartHandler.Fulfill)
}
