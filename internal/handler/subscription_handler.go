package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-api/internal/dto"
	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/response"
)

type entitlementService interface {
	CanStartExam(ctx context.Context, studentID string) (*models.Entitlement, error)
	CreateWindow(ctx context.Context, req dto.CreateSubscriptionRequest) (*models.SubscriptionWindow, error)
}

// SubscriptionHandler exposes subscription windows and entitlement checks.
type SubscriptionHandler struct {
	service entitlementService
}

// NewSubscriptionHandler builds a new handler.
func NewSubscriptionHandler(service entitlementService) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// Create godoc
// @Summary Register a subscription window
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubscriptionRequest true "Subscription payload"
// @Success 201 {object} response.Envelope
// @Router /subscriptions [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subscription payload"))
		return
	}
	window, err := h.service.CreateWindow(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// Entitlement godoc
// @Summary Check whether the caller may start an exam now
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /entitlements/me [get]
func (h *SubscriptionHandler) Entitlement(c *gin.Context) {
	claims, err := requireClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entitlement, err := h.service.CanStartExam(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entitlement, nil)
}
