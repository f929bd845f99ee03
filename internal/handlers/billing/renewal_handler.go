// internal/handlers/billing/renewal_handler.go
package billing

import (
	"net/http"
	"strconv"
	"time"

	"athlos-billing/internal/domain/audit"
	"athlos-billing/internal/domain/billing"
	"athlos-billing/internal/middleware"
	xerrors "athlos-billing/internal/pkg/errors"
	"athlos-billing/internal/pkg/response"
	"athlos-billing/internal/repository/postgres"
	"athlos-billing/internal/service/renewal"

	"github.com/gin-gonic/gin"
)

// RenewalHandler is the operator surface over the renewal pipeline. Every
// state-changing operation is audited under the calling operator's identity.
type RenewalHandler struct {
	scanner       *renewal.Scanner
	scheduler     *renewal.Scheduler
	subscriptions *postgres.SubscriptionRepository
	attempts      *postgres.PaymentAttemptRepository
	notifications *postgres.NotificationRepository
	auditor       renewal.Auditor
}

func NewRenewalHandler(
	scanner *renewal.Scanner,
	scheduler *renewal.Scheduler,
	subscriptions *postgres.SubscriptionRepository,
	attempts *postgres.PaymentAttemptRepository,
	notifications *postgres.NotificationRepository,
	auditor renewal.Auditor,
) *RenewalHandler {
	return &RenewalHandler{
		scanner:       scanner,
		scheduler:     scheduler,
		subscriptions: subscriptions,
		attempts:      attempts,
		notifications: notifications,
		auditor:       auditor,
	}
}

// TriggerScan runs one scan pass immediately.
func (h *RenewalHandler) TriggerScan(c *gin.Context) {
	report, err := h.scanner.RunScan(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "scan failed", err)
		return
	}

	response.Success(c, http.StatusOK, "scan completed", report)
}

// RetrySubscription forces a renewal attempt for one subscription,
// bypassing the due-set scan.
func (h *RenewalHandler) RetrySubscription(c *gin.Context) {
	subscriptionID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	result := h.scheduler.RetryOne(c.Request.Context(), subscriptionID)
	if result.Outcome == billing.OutcomeSkipped && result.SkipReason == billing.SkipNotFound {
		response.Error(c, http.StatusNotFound, "subscription not found", nil)
		return
	}

	h.auditor.Record(c.Request.Context(), &audit.Event{
		Actor:  operatorActor(c),
		Action: audit.ActionRenewalManualRetry,
		Details: map[string]interface{}{
			"subscription_id": subscriptionID,
			"outcome":         result.Outcome,
		},
	})

	response.Success(c, http.StatusOK, "retry processed", result)
}

// GetSubscription retrieves a subscription by ID.
func (h *RenewalHandler) GetSubscription(c *gin.Context) {
	subscriptionID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	sub, err := h.subscriptions.FindByID(c.Request.Context(), subscriptionID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "subscription not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// ListAttempts retrieves a subscription's payment attempt history.
func (h *RenewalHandler) ListAttempts(c *gin.Context) {
	subscriptionID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	limit, offset := parsePage(c)

	attempts, total, err := h.attempts.ListBySubscription(c.Request.Context(), subscriptionID, limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list payment attempts", err)
		return
	}

	response.Success(c, http.StatusOK, "attempts retrieved", billing.AttemptListResponse{
		Attempts: attempts,
		Total:    total,
	})
}

// ListNotifications retrieves the renewal notifications sent to a
// subscription's owner.
func (h *RenewalHandler) ListNotifications(c *gin.Context) {
	subscriptionID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	sub, err := h.subscriptions.FindByID(c.Request.Context(), subscriptionID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "subscription not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load subscription", err)
		return
	}

	limit, offset := parsePage(c)

	notifications, err := h.notifications.ListByRecipient(c.Request.Context(), sub.OwnerIdentityID, limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list notifications", err)
		return
	}

	response.Success(c, http.StatusOK, "notifications retrieved", notifications)
}

// UpdateAutoRenew toggles auto-renewal for a subscription.
func (h *RenewalHandler) UpdateAutoRenew(c *gin.Context) {
	subscriptionID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req billing.UpdateAutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.subscriptions.SetAutoRenew(c.Request.Context(), subscriptionID, *req.AutoRenew)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "subscription not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to update subscription", err)
		return
	}

	h.auditor.Record(c.Request.Context(), &audit.Event{
		Actor:  operatorActor(c),
		Action: audit.ActionAutoRenewChanged,
		Details: map[string]interface{}{
			"subscription_id": subscriptionID,
			"auto_renew":      *req.AutoRenew,
		},
	})

	response.Success(c, http.StatusOK, "auto-renew updated", sub)
}

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func parsePage(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// operatorActor names the audit actor for the current request. Requests on
// these routes always passed the auth middleware, so a missing identity only
// occurs for tokens without a subject claim.
func operatorActor(c *gin.Context) string {
	if id, ok := middleware.GetOperatorID(c); ok && id != "" {
		return id
	}
	return "operator"
}
