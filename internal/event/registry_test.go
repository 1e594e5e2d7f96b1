package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryTopic(t *testing.T) {
	r := NewRegistry("catalog.product-events")

	t.Run("known types", func(t *testing.T) {
		for _, et := range []string{
			TypeProductCreated,
			TypeProductUpdated,
			TypeProductPriceUpdated,
			TypeProductDeleted,
		} {
			topic, err := r.Topic(et)
			require.NoError(t, err, et)
			assert.Equal(t, "catalog.product-events", topic)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.Topic("order.created.v1")
		assert.True(t, errors.Is(err, ErrUnknownEventType))
	})

	t.Run("empty type", func(t *testing.T) {
		_, err := r.Topic("")
		assert.True(t, errors.Is(err, ErrUnknownEventType))
	})
}

func TestRegistryDecode(t *testing.T) {
	r := NewRegistry("catalog.product-events")

	t.Run("price updated", func(t *testing.T) {
		payload := []byte(`{
			"event_id": "01HX0000000000000000000000",
			"version": 1,
			"product_id": "01HXPRODUCT000000000000000",
			"old_price_cents": 1234,
			"new_price_cents": 2000,
			"currency": "EUR"
		}`)

		v, err := r.Decode(TypeProductPriceUpdated, payload)
		require.NoError(t, err)

		ev, ok := v.(*ProductPriceUpdated)
		require.True(t, ok)
		assert.Equal(t, int64(1234), ev.OldPriceCents)
		assert.Equal(t, int64(2000), ev.NewPriceCents)
		assert.Equal(t, "EUR", ev.Currency)
	})

	t.Run("created", func(t *testing.T) {
		payload := []byte(`{"product_id":"p1","name":"Desk","price_cents":49900,"currency":"EUR"}`)

		v, err := r.Decode(TypeProductCreated, payload)
		require.NoError(t, err)

		ev, ok := v.(*ProductCreated)
		require.True(t, ok)
		assert.Equal(t, "Desk", ev.Name)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.Decode("bogus.v1", []byte(`{}`))
		assert.True(t, errors.Is(err, ErrUnknownEventType))
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := r.Decode(TypeProductCreated, []byte(`{not json`))
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnknownEventType))
	})
}
