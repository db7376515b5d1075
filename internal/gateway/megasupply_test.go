package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

func TestMegaSupply_PlaceSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/order/place", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "key-1", q.Get("app_key"))
		assert.NotEmpty(t, q.Get("timestamp"))
		assert.NotEmpty(t, q.Get("sign"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id":"MS-100","status":"CREATED"}`))
	}))
	defer srv.Close()

	c := NewMegaSupply(srv.URL, "key-1", "secret-1")
	result, err := c.Place(context.Background(), PlaceRequest{
		ExternalRef: "sub-1",
		Items:       []order.LineItem{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "MS-100", result.SupplierRef)
	assert.Equal(t, order.SupplierPending, result.Status)
}

func TestMegaSupply_StatusMapping(t *testing.T) {
	cases := map[string]order.SupplierStatus{
		"CREATED":    order.SupplierPending,
		"PROCESSING": order.SupplierProcessing,
		"SHIPPED":    order.SupplierShipped,
		"IN TRANSIT": order.SupplierShipped,
		"FINISHED":   order.SupplierDelivered,
		"DELIVERED":  order.SupplierDelivered,
		"CLOSED":     order.SupplierCancelled,
	}

	c := NewMegaSupply("http://unused", "k", "s")
	for native, want := range cases {
		got, err := c.mapStatus(native)
		require.NoError(t, err, native)
		assert.Equal(t, want, got, native)
	}

	_, err := c.mapStatus("WAT")
	var unknown *UnknownStatusError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, supplier.TypeMegaSupply, unknown.Supplier)
}

func TestMegaSupply_BusinessErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"sku discontinued"}`))
	}))
	defer srv.Close()

	c := NewMegaSupply(srv.URL, "k", "s")
	_, err := c.GetDetails(context.Background(), "p1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Transient)
	assert.Equal(t, "sku discontinued", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestMegaSupply_TransientErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"SHIPPED"}`))
	}))
	defer srv.Close()

	c := NewMegaSupply(srv.URL, "k", "s")
	status, err := c.GetStatus(context.Background(), "MS-1")
	require.NoError(t, err)
	assert.Equal(t, order.SupplierShipped, status)
	assert.EqualValues(t, 2, calls.Load())
}

func TestMegaSupply_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewMegaSupply(srv.URL, "k", "s")
	_, err := c.GetStatus(context.Background(), "MS-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Transient)
	assert.EqualValues(t, retryAttempts, calls.Load())
}

func TestMegaSupply_SearchParsesProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/product/search", r.URL.Path)
		require.Equal(t, "usb hub", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"products":[
			{"product_id":"p1","title":"USB Hub","price":"12.49","stock":30,"rating":4.4,
			 "shipping":[{"service":"standard","cost":"1.50","min_days":8,"max_days":20,"tracking":true}]}
		]}`))
	}))
	defer srv.Close()

	c := NewMegaSupply(srv.URL, "k", "s")
	snaps, err := c.Search(context.Background(), "usb hub")
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	snap := snaps[0]
	assert.Equal(t, supplier.TypeMegaSupply, snap.Supplier)
	assert.Equal(t, "p1", snap.ProductID)
	assert.Equal(t, "12.49", snap.Price.String())
	assert.Equal(t, 30, snap.Stock)
	require.Len(t, snap.Shipping, 1)
	assert.Equal(t, "1.5", snap.Shipping[0].Cost.String())
	assert.Equal(t, 8, snap.Shipping[0].MinDays)
	assert.True(t, snap.Shipping[0].HasTracking)
}

func TestMegaSupply_TrackingParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/order/MS-7/tracking", r.URL.Path)
		_, _ = w.Write([]byte(`{"carrier":"ePacket","tracking_number":"EP123","url":"https://t.example/EP123","eta":"2026-09-20"}`))
	}))
	defer srv.Close()

	c := NewMegaSupply(srv.URL, "k", "s")
	tr, err := c.GetTracking(context.Background(), "MS-7")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "ePacket", tr.Carrier)
	assert.Equal(t, "EP123", tr.Number)
	assert.Equal(t, 2026, tr.EstimatedDelivery.Year())
}
