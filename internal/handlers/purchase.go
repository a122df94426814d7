package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v78"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/events"
	"github.com/courselane/course_platform/internal/ledger"
	"github.com/courselane/course_platform/internal/logging"
	"github.com/courselane/course_platform/internal/middleware/auth"
	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/payments"
	"github.com/courselane/course_platform/internal/util"
)

// CheckoutClient is the slice of the payment processor the handler needs;
// tests substitute a stub.
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, course *models.Course, email string) (*stripe.CheckoutSession, error)
}

type PurchaseHandler struct {
	DB            *gorm.DB
	Ledger        *ledger.Ledger
	Payments      CheckoutClient
	Producer      *events.Producer
	WebhookSecret string
}

// CheckoutSession starts a paid purchase: the response carries the Stripe
// session the client is redirected to. Fulfillment happens later, through the
// webhook, independent of this request.
func (h *PurchaseHandler) CheckoutSession(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	id, err := strconv.Atoi(c.Param("courseID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	var course models.Course
	if err := h.DB.First(&course, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}

	sess, err := h.Payments.CreateCheckoutSession(c.Request().Context(), &course, user.Email)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("checkout_session_failed",
			"status", 500, "course_id", course.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"session": sess,
	})
}

// FreeCourse grants entitlement synchronously, but only for published courses
// that really cost nothing.
func (h *PurchaseHandler) FreeCourse(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	id, err := strconv.Atoi(c.Param("courseID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	var course models.Course
	if err := h.DB.First(&course, id).Error; err != nil || !course.Published {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}

	if course.Price != 0 {
		return echo.NewHTTPError(http.StatusForbidden, "course is not free")
	}

	if err := h.Ledger.Grant(c.Request().Context(), user.ID, course.ID, 0); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}

	h.publishPurchase(c.Request().Context(), user.ID, course.ID, 0)

	return c.JSON(http.StatusOK, echo.Map{"message": "success"})
}

// Webhook consumes payment events from Stripe. The signature is checked
// against the raw body before anything is parsed. Once it passes, the event
// is always acknowledged: Stripe redelivers on non-2xx and the ledger grant
// is idempotent anyway.
func (h *PurchaseHandler) Webhook(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "purchase.webhook")

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	event, err := payments.VerifyEvent(payload, c.Request().Header.Get("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		l.Warn("webhook_rejected", "status", 400, "reason", "signature verification failed", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "webhook signature verification failed")
	}

	if event.Type == stripe.EventTypeCheckoutSessionCompleted {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			l.Error("webhook_fulfill_failed", "event_id", event.ID, "reason", "cannot parse session", "error", err)
		} else if err := h.fulfill(c.Request().Context(), &sess); err != nil {
			l.Error("webhook_fulfill_failed", "event_id", event.ID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// fulfill converts a completed checkout session into one ledger entry:
// buyer by customer email, course by client_reference_id, price from the
// session total in minor units.
func (h *PurchaseHandler) fulfill(ctx context.Context, sess *stripe.CheckoutSession) error {
	email := sess.CustomerEmail
	if email == "" && sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	if email == "" {
		return errors.New("event has no customer email")
	}

	var user models.User
	if err := h.DB.WithContext(ctx).Where("email = ?", util.NormalizeEmail(email)).First(&user).Error; err != nil {
		return fmt.Errorf("resolve buyer %q: %w", email, err)
	}

	courseID, err := strconv.Atoi(sess.ClientReferenceID)
	if err != nil {
		return fmt.Errorf("bad client reference %q: %w", sess.ClientReferenceID, err)
	}
	var course models.Course
	if err := h.DB.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return fmt.Errorf("resolve course %d: %w", courseID, err)
	}

	price := float64(sess.AmountTotal) / 100
	if err := h.Ledger.Grant(ctx, user.ID, course.ID, price); err != nil {
		return err
	}

	h.publishPurchase(ctx, user.ID, course.ID, price)
	return nil
}

func (h *PurchaseHandler) publishPurchase(ctx context.Context, userID, courseID uint, price float64) {
	event := map[string]any{
		"type":      "purchase_recorded",
		"user_id":   userID,
		"course_id": courseID,
		"price":     price,
	}
	if err := h.Producer.Publish(ctx, events.TopicPurchaseEvents, fmt.Sprint(courseID), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}
