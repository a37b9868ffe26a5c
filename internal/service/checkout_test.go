package service

import (
	"context"
	"errors"
	"testing"

	"topup-service/internal/models"
	"topup-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCheckoutFixture() (*CheckoutService, *fakeStore, *fakeQueue) {
	st := newFakeStore()
	st.merchandise[11] = models.Merchandise{ID: 11, Name: "86 Diamonds", Price: 2500, Enabled: true}
	st.merchandise[12] = models.Merchandise{ID: 12, Name: "Weekly Pass", Price: 2000, Enabled: true}
	st.merchandise[13] = models.Merchandise{ID: 13, Name: "Retired", Price: 100, Enabled: false}
	queue := &fakeQueue{}
	return NewCheckoutService(st, queue, zap.NewNop()), st, queue
}

func TestCheckoutPricesLinesAndEnqueues(t *testing.T) {
	svc, st, queue := newCheckoutFixture()

	resp, err := svc.Checkout(context.Background(), &CheckoutRequest{
		TelegramUserID: "900100",
		Cart:           []CartLine{{MerchandiseID: 11, Quantity: 2}, {MerchandiseID: 12, Quantity: 1}},
		Inputs:         models.Inputs{{Key: "User ID", Value: "42"}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7000), resp.TotalAmount)
	assert.Equal(t, []int64{101, 102}, resp.TransactionIDs)
	assert.Equal(t, []int64{101, 102}, queue.fulfillment)

	require.Len(t, st.checkouts, 1)
	assert.Equal(t, []store.CheckoutLine{
		{MerchandiseID: 11, Quantity: 2, Amount: 5000},
		{MerchandiseID: 12, Quantity: 1, Amount: 2000},
	}, st.checkouts[0])
}

func TestCheckoutRejectsDisabledMerchandise(t *testing.T) {
	svc, st, queue := newCheckoutFixture()

	_, err := svc.Checkout(context.Background(), &CheckoutRequest{
		TelegramUserID: "900100",
		Cart:           []CartLine{{MerchandiseID: 13, Quantity: 1}},
	})

	assert.ErrorIs(t, err, store.ErrMerchandiseNotFound)
	assert.Empty(t, st.checkouts)
	assert.Empty(t, queue.fulfillment)
}

func TestCheckoutRejectsBadQuantity(t *testing.T) {
	svc, _, _ := newCheckoutFixture()

	_, err := svc.Checkout(context.Background(), &CheckoutRequest{
		TelegramUserID: "900100",
		Cart:           []CartLine{{MerchandiseID: 11, Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Checkout(context.Background(), &CheckoutRequest{TelegramUserID: "900100"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutInsufficientBalanceEnqueuesNothing(t *testing.T) {
	svc, st, queue := newCheckoutFixture()
	st.checkoutErr = store.ErrInsufficientBalance

	_, err := svc.Checkout(context.Background(), &CheckoutRequest{
		TelegramUserID: "900100",
		Cart:           []CartLine{{MerchandiseID: 11, Quantity: 1}},
	})

	assert.ErrorIs(t, err, store.ErrInsufficientBalance)
	assert.Empty(t, queue.fulfillment)
}

func TestCheckoutSucceedsWhenEnqueueFails(t *testing.T) {
	svc, _, queue := newCheckoutFixture()
	queue.err = errors.New("kafka down")

	resp, err := svc.Checkout(context.Background(), &CheckoutRequest{
		TelegramUserID: "900100",
		Cart:           []CartLine{{MerchandiseID: 11, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Len(t, resp.TransactionIDs, 1)
}
