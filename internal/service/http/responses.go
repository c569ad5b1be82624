package httpsvc

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/service/lifecycle"
)

// apiResponse — общий конверт ответов API.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type itemResponse struct {
	ID             string `json:"id"`
	MenuItemID     string `json:"menu_item_id"`
	MenuItemName   string `json:"menu_item_name"`
	Quantity       int32  `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
	Notes          string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID                   string         `json:"id"`
	Number               string         `json:"order_number"`
	CustomerID           string         `json:"customer_id"`
	CustomerName         string         `json:"customer_name"`
	ShopID               string         `json:"shop_id"`
	ShopName             string         `json:"shop_name"`
	QueueID              string         `json:"queue_id,omitempty"`
	QueueName            string         `json:"queue_name,omitempty"`
	Status               string         `json:"status"`
	TotalMinor           int64          `json:"total_minor"`
	EstimatedWaitMinutes int            `json:"estimated_wait_minutes"`
	QueuePosition        *int           `json:"queue_position"`
	Items                []itemResponse `json:"items"`
	Notes                string         `json:"notes,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	CancelledAt          *time.Time     `json:"cancelled_at,omitempty"`
}

type positionResponse struct {
	OrderID              string `json:"order_id"`
	OrderNumber          string `json:"order_number"`
	QueueID              string `json:"queue_id"`
	QueueName            string `json:"queue_name"`
	Position             int    `json:"position"`
	TotalInQueue         int    `json:"total_in_queue"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Status               string `json:"status"`
}

type entryResponse struct {
	OrderID              string    `json:"order_id"`
	CustomerID           string    `json:"customer_id"`
	Position             int       `json:"position"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	JoinedAt             time.Time `json:"joined_at"`
}

type queueResponse struct {
	ID               string          `json:"id"`
	ShopID           string          `json:"shop_id"`
	Number           int             `json:"queue_number"`
	Name             string          `json:"queue_name"`
	MaxSize          int             `json:"max_size"`
	CurrentOccupancy int             `json:"current_occupancy"`
	IsFull           bool            `json:"is_full"`
	Entries          []entryResponse `json:"entries"`
}

func toOrderResponse(view lifecycle.OrderView) orderResponse {
	items := make([]itemResponse, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, itemResponse{
			ID:             item.ID,
			MenuItemID:     item.MenuItemID,
			MenuItemName:   item.MenuItemName,
			Quantity:       item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			SubtotalMinor:  item.SubtotalMinor,
			Notes:          item.Notes,
		})
	}

	return orderResponse{
		ID:                   view.ID,
		Number:               view.Number,
		CustomerID:           view.CustomerID,
		CustomerName:         view.CustomerName,
		ShopID:               view.ShopID,
		ShopName:             view.ShopName,
		QueueID:              view.QueueID,
		QueueName:            view.QueueName,
		Status:               string(view.Status),
		TotalMinor:           view.TotalMinor,
		EstimatedWaitMinutes: view.EstimatedWaitMinutes,
		QueuePosition:        view.Position,
		Items:                items,
		Notes:                view.Notes,
		CreatedAt:            view.CreatedAt,
		UpdatedAt:            view.UpdatedAt,
		CompletedAt:          view.CompletedAt,
		CancelledAt:          view.CancelledAt,
	}
}

func toOrderResponses(views []lifecycle.OrderView) []orderResponse {
	result := make([]orderResponse, 0, len(views))
	for _, view := range views {
		result = append(result, toOrderResponse(view))
	}
	return result
}

func toPositionResponse(pos lifecycle.QueuePosition) positionResponse {
	return positionResponse{
		OrderID:              pos.OrderID,
		OrderNumber:          pos.OrderNumber,
		QueueID:              pos.QueueID,
		QueueName:            pos.QueueName,
		Position:             pos.Position,
		TotalInQueue:         pos.TotalActive,
		EstimatedWaitMinutes: pos.EstimatedWaitMinutes,
		Status:               string(pos.Status),
	}
}

func toQueueResponse(overview lifecycle.QueueOverview) queueResponse {
	entries := make([]entryResponse, 0, len(overview.Entries))
	for _, e := range overview.Entries {
		entries = append(entries, entryResponse{
			OrderID:              e.OrderID,
			CustomerID:           e.CustomerID,
			Position:             e.Position,
			EstimatedWaitMinutes: e.EstimatedWaitMinutes,
			JoinedAt:             e.JoinedAt,
		})
	}

	q := overview.Queue
	return queueResponse{
		ID:               q.ID,
		ShopID:           q.ShopID,
		Number:           q.Number,
		Name:             q.Name,
		MaxSize:          q.MaxSize,
		CurrentOccupancy: q.Occupancy,
		IsFull:           overview.Full,
		Entries:          entries,
	}
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, apiResponse{Success: true, Message: message, Data: data})
}

// statusFor переводит вид доменной ошибки в HTTP-статус.
func statusFor(err error) int {
	if domain.IsVersionConflict(err) {
		return http.StatusConflict
	}

	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrRuleViolation:
		return http.StatusUnprocessableEntity
	case domain.ErrUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"id":        c.Param("id"),
	})

	message := err.Error()
	if status == http.StatusInternalServerError {
		entry.Error("operation failed")
		message = "internal error"
	} else {
		entry.Debug("operation rejected")
	}

	c.JSON(status, apiResponse{Message: message})
}
