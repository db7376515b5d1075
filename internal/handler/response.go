package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
)

// OrderResponse is the wire shape of a customer order.
type OrderResponse struct {
	ID            string           `json:"id"`
	ExternalID    string           `json:"external_id"`
	Status        string           `json:"status"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	ShippingAddr  order.Address    `json:"shipping_address"`
	Items         []order.LineItem `json:"items"`
	Total         decimal.Decimal  `json:"total"`
	Currency      string           `json:"currency"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SupplierOrderResponse is the wire shape of one supplier sub-order.
type SupplierOrderResponse struct {
	ID          string             `json:"id"`
	OrderID     string             `json:"order_id"`
	Supplier    string             `json:"supplier"`
	SupplierRef string             `json:"supplier_ref,omitempty"`
	Status      string             `json:"status"`
	Items       []order.LineItem   `json:"items"`
	Tracking    *order.Tracking    `json:"tracking,omitempty"`
	ErrorLog    []order.ErrorEntry `json:"error_log,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID,
		ExternalID:    o.ExternalID,
		Status:        string(o.Status),
		CustomerEmail: o.CustomerEmail,
		ShippingAddr:  o.ShippingAddr,
		Items:         o.Items,
		Total:         o.Total,
		Currency:      o.Currency,
		ErrorMessage:  o.ErrorMessage,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toSupplierOrderResponse(so *order.SupplierOrder) SupplierOrderResponse {
	return SupplierOrderResponse{
		ID:          so.ID,
		OrderID:     so.OrderID,
		Supplier:    string(so.Supplier),
		SupplierRef: so.SupplierRef,
		Status:      string(so.Status),
		Items:       so.Items,
		Tracking:    so.Tracking,
		ErrorLog:    so.ErrorLog,
		CreatedAt:   so.CreatedAt,
		UpdatedAt:   so.UpdatedAt,
	}
}

func toSupplierOrderResponses(subs []*order.SupplierOrder) []SupplierOrderResponse {
	out := make([]SupplierOrderResponse, len(subs))
	for i, so := range subs {
		out[i] = toSupplierOrderResponse(so)
	}
	return out
}
