package httpsvc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/shopqueue/internal/service/lifecycle"
)

type itemRequest struct {
	MenuItemID string `json:"menu_item_id" binding:"required"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
}

type createOrderRequest struct {
	ShopID  string        `json:"shop_id" binding:"required"`
	QueueID string        `json:"queue_id"`
	Items   []itemRequest `json:"items" binding:"dive"`
	Notes   string        `json:"notes"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Message: err.Error()})
		return
	}

	in := lifecycle.CreateOrderInput{
		CustomerID: customerID(c),
		ShopID:     req.ShopID,
		QueueID:    req.QueueID,
		Notes:      req.Notes,
		Items:      make([]lifecycle.ItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, lifecycle.ItemInput{
			MenuItemID: item.MenuItemID,
			Qty:        item.Quantity,
			Notes:      item.Notes,
		})
	}

	view, err := s.orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		s.fail(c, "create_order", err)
		return
	}
	respond(c, http.StatusCreated, "order placed", toOrderResponse(view))
}

func (s *Server) listOrders(c *gin.Context) {
	views, err := s.orders.ListCustomerOrders(c.Request.Context(), customerID(c))
	if err != nil {
		s.fail(c, "list_orders", err)
		return
	}

	respond(c, http.StatusOK, "", toOrderResponses(views))
}

func (s *Server) listShopOrders(c *gin.Context) {
	views, err := s.orders.ListCustomerShopOrders(c.Request.Context(), customerID(c), c.Param("shopId"))
	if err != nil {
		s.fail(c, "list_shop_orders", err)
		return
	}

	respond(c, http.StatusOK, "", toOrderResponses(views))
}

func (s *Server) getOrder(c *gin.Context) {
	view, err := s.orders.GetOrder(c.Request.Context(), customerID(c), c.Param("id"))
	if err != nil {
		s.fail(c, "get_order", err)
		return
	}
	respond(c, http.StatusOK, "", toOrderResponse(view))
}

func (s *Server) cancelOrder(c *gin.Context) {
	view, err := s.orders.CancelOrder(c.Request.Context(), customerID(c), c.Param("id"))
	if err != nil {
		s.fail(c, "cancel_order", err)
		return
	}
	respond(c, http.StatusOK, "order cancelled", toOrderResponse(view))
}

func (s *Server) queuePosition(c *gin.Context) {
	pos, err := s.orders.GetQueuePosition(c.Request.Context(), customerID(c), c.Param("id"))
	if err != nil {
		s.fail(c, "queue_position", err)
		return
	}
	respond(c, http.StatusOK, "", toPositionResponse(pos))
}

func (s *Server) serveOrder(c *gin.Context) {
	view, err := s.orders.CompleteOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "serve_order", err)
		return
	}
	respond(c, http.StatusOK, "order served", toOrderResponse(view))
}

func (s *Server) queueOverview(c *gin.Context) {
	overview, err := s.orders.QueueOverview(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "queue_overview", err)
		return
	}
	respond(c, http.StatusOK, "", toQueueResponse(overview))
}
