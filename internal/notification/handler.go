package notification

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"VersatileShare/internal/auth"
	"VersatileShare/internal/realtime"
)

// NotificationHandler exposes the dispatcher and the recipient's record views
// over HTTP.
type NotificationHandler struct {
	service *Service
}

func NewNotificationHandler(service *Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// DispatchRequest is the upstream trigger for a new-resource fan-out,
// typically called by the resource-upload flow.
type DispatchRequest struct {
	Target   Target                `json:"target"`
	Message  string                `json:"message"`
	Resource realtime.ResourceInfo `json:"resource"`
	Email    bool                  `json:"email"`
}

// Dispatch fans a new-resource announcement out to the requested target.
func (h *NotificationHandler) Dispatch(c echo.Context) error {
	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := req.Target.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	if err := h.service.NotifyNewResource(c.Request().Context(), req.Target, req.Message, req.Resource, req.Email); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to dispatch notification"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Notification dispatched"})
}

// InteractionRequest notifies a resource's uploader of a like or comment.
type InteractionRequest struct {
	RecipientID     string `json:"recipientId"`
	ResourceID      string `json:"resourceId"`
	ResourceTitle   string `json:"resourceTitle"`
	InteractionType string `json:"interactionType"`
}

// Interaction reports a like/comment made by the calling student.
func (h *NotificationHandler) Interaction(c echo.Context) error {
	claims, ok := c.Get("user").(*auth.JWTClaims)
	if !ok || claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	var req InteractionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.RecipientID == "" || req.ResourceID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Recipient and resource are required"})
	}

	var verb string
	switch req.InteractionType {
	case realtime.InteractionLike:
		verb = "liked"
	case realtime.InteractionComment:
		verb = "commented on"
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown interaction type"})
	}
	message := fmt.Sprintf("%s %s your resource %q", claims.Name, verb, req.ResourceTitle)

	student := realtime.StudentRef{ID: claims.UserID, Name: claims.Name}
	err := h.service.NotifyResourceInteraction(c.Request().Context(), req.RecipientID, message, req.ResourceID, req.InteractionType, student)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to dispatch notification"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Notification dispatched"})
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	claims, ok := c.Get("user").(*auth.JWTClaims)
	if !ok || claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	limit := int64(20)
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = parsed
	}

	records, err := h.service.ListByRecipient(c.Request().Context(), claims.UserID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list notifications"})
	}
	if records == nil {
		records = []*Notification{}
	}
	return c.JSON(http.StatusOK, records)
}

// MarkReadRequest marks specific records, or everything, as read.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// MarkRead flags the caller's records as read, individually or in bulk.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	claims, ok := c.Get("user").(*auth.JWTClaims)
	if !ok || claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	var req MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if req.All {
		if err := h.service.MarkAllRead(c.Request().Context(), claims.UserID); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to mark notifications read"})
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "All notifications marked read"})
	}

	ids := make([]primitive.ObjectID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid notification id"})
		}
		ids = append(ids, id)
	}
	if err := h.service.MarkRead(c.Request().Context(), ids, claims.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to mark notifications read"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Notifications marked read"})
}
