package payments

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/courselane/course_platform/internal/models"
)

// Client wraps the Stripe API for one-time course checkout. The course id
// rides along as the session's client_reference_id so the webhook can
// correlate the completed payment back to a course.
type Client struct {
	api        *client.API
	SuccessURL string
	CancelURL  string
	Currency   string
}

func New(apiKey, successURL, cancelURL, currency string) *Client {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Client{
		api:        api,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Currency:   currency,
	}
}

func (p *Client) CreateCheckoutSession(ctx context.Context, course *models.Course, email string) (*stripe.CheckoutSession, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(course.Title),
		Description: stripe.String(course.Summary),
	}
	if course.ImageURL != "" {
		product.Images = stripe.StringSlice([]string{course.ImageURL})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(email),
		ClientReferenceID:  stripe.String(strconv.FormatUint(uint64(course.ID), 10)),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(p.Currency),
				UnitAmount:  stripe.Int64(minorUnits(course.Price)),
				ProductData: product,
			},
		}},
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return sess, nil
}

// minorUnits converts a major-unit price to Stripe's minor units. Rounded,
// not truncated: 499.99 must become 49999, never 49998.
func minorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// VerifyEvent checks the Stripe-Signature header against the raw request body
// and fails closed on any mismatch. The API version pin is ignored so that
// Stripe rolling its version forward does not start dropping payments.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
