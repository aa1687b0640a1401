package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentLinkRequest_Validate(t *testing.T) {
	assert.Empty(t, (&PaymentLinkRequest{OrderID: "AB12C", Amount: 1000}).Validate())

	errs := (&PaymentLinkRequest{Amount: 1000}).Validate()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrOrderIDRequired)

	errs = (&PaymentLinkRequest{OrderID: "AB12C", Amount: -5}).Validate()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrValidation)

	// без кода заказа сумма уже не проверяется
	assert.Len(t, (&PaymentLinkRequest{}).Validate(), 1)
}

func TestPaymentNotificationStatus_Outcome(t *testing.T) {
	cases := map[PaymentNotificationStatus]PaymentOutcome{
		PaymentNotificationSettlement: PaymentOutcomePaid,
		PaymentNotificationCapture:    PaymentOutcomePaid,
		PaymentNotificationPending:    PaymentOutcomeAwaiting,
		PaymentNotificationExpire:     PaymentOutcomeFailed,
		PaymentNotificationCancel:     PaymentOutcomeFailed,
		PaymentNotificationDeny:       PaymentOutcomeFailed,
		"refund":                      PaymentOutcomeUnknown,
		"":                            PaymentOutcomeUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.Outcome(), "status %q", status)
	}
}
