// internal/payment/stripe.go
package payment

import (
	"context"
	"fmt"
	"math"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"athlos-billing/internal/domain/billing"
)

// StripeAdapter charges renewals through the Stripe PaymentIntents API using
// the customer's saved payment method (off-session). Stripe deduplicates by
// the idempotency key, so a replayed call for the same billing period never
// creates a second real-world charge.
type StripeAdapter struct {
	apiKey string
}

func NewStripeAdapter(apiKey string) *StripeAdapter {
	stripe.Key = apiKey
	return &StripeAdapter{apiKey: apiKey}
}

func (a *StripeAdapter) Name() string { return "stripe" }

func (a *StripeAdapter) Charge(ctx context.Context, sub *billing.Subscription, opts ChargeOptions) (*ChargeResult, error) {
	customerID, _ := sub.Metadata["stripe_customer_id"].(string)
	if customerID == "" {
		return nil, fmt.Errorf("subscription %d has no stripe customer", sub.ID)
	}

	params := &stripe.PaymentIntentParams{
		Customer:   stripe.String(customerID),
		Amount:     stripe.Int64(toMinorUnits(opts.Amount, opts.Currency)),
		Currency:   stripe.String(opts.Currency),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
		Metadata:   opts.Metadata,
	}
	// Carry the executor's deadline into the HTTP request so a timed-out or
	// cancelled scan aborts the call instead of orphaning it.
	params.Context = ctx
	params.SetIdempotencyKey(opts.IdempotencyKey)

	intent, err := paymentintent.New(params)
	if err != nil {
		// A declined card comes back as an error from Stripe; it is a normal
		// failed outcome for the state machine, not an adapter fault.
		if stripeErr, ok := err.(*stripe.Error); ok {
			return &ChargeResult{
				Success:       false,
				Provider:      a.Name(),
				FailureReason: string(stripeErr.Code),
				ProviderResponse: map[string]interface{}{
					"error_code": string(stripeErr.Code),
					"error_type": string(stripeErr.Type),
					"message":    stripeErr.Msg,
				},
			}, nil
		}
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	result := &ChargeResult{
		Provider: a.Name(),
		Success:  intent.Status == stripe.PaymentIntentStatusSucceeded,
		ProviderResponse: map[string]interface{}{
			"payment_intent_id": intent.ID,
			"status":            string(intent.Status),
		},
	}
	if !result.Success {
		result.FailureReason = fmt.Sprintf("payment intent status %s", intent.Status)
	}
	return result, nil
}

// minorUnitExponents lists the ISO 4217 currencies Stripe treats as zero- or
// three-decimal. Everything else is charged in hundredths.
var minorUnitExponents = map[string]int{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"MGA": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// toMinorUnits converts a decimal amount to the smallest unit Stripe expects
// for the currency (cents for USD, whole yen for JPY, mills for KWD).
func toMinorUnits(amount float64, currency string) int64 {
	exponent := 2
	if e, ok := minorUnitExponents[strings.ToUpper(currency)]; ok {
		exponent = e
	}
	return int64(math.Round(amount * math.Pow10(exponent)))
}
