package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

var _ Gateway = (*PrimeParts)(nil)

// PrimeParts is the client for the PrimeParts distributor API. It
// authenticates with OAuth2 client credentials and renews the bearer
// token shortly before expiry.
type PrimeParts struct {
	base         string
	clientID     string
	clientSecret string
	client       *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// tokenSlack renews the token this long before its reported expiry.
const tokenSlack = time.Minute

// NewPrimeParts creates a PrimeParts client for the given API base URL
// and OAuth client credentials.
func NewPrimeParts(baseURL, clientID, clientSecret string) *PrimeParts {
	return &PrimeParts{
		base:         strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *PrimeParts) Supplier() supplier.Type { return supplier.TypePrimeParts }

// bearer returns a valid access token, exchanging client credentials
// when the cached one is missing or close to expiry.
func (c *PrimeParts) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiry) > tokenSlack {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := send(ctx, c.client, c.Supplier(), req)
	if err != nil {
		return "", errors.Wrap(err, "exchange credentials")
	}

	var (
		token     string
		expiresIn int
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "access_token":
			token, err = d.Str()
		case "expires_in":
			expiresIn, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if token == "" {
		return "", &APIError{Supplier: c.Supplier(), Message: "token exchange returned no access_token"}
	}

	c.token = token
	c.expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}

// do executes an authenticated request against the PrimeParts API.
func (c *PrimeParts) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, errors.Wrap(err, "marshal payload")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := send(ctx, c.client, c.Supplier(), req)

	// A 401 means the token was revoked server-side before its
	// reported expiry. Drop it so the next attempt re-authenticates.
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		apiErr.Transient = true
	}
	return resp, err
}

// Place submits a sub-order.
func (c *PrimeParts) Place(ctx context.Context, placeReq PlaceRequest) (*PlaceResult, error) {
	type placeLine struct {
		PartNumber string `json:"part_number"`
		Variant    string `json:"variant,omitempty"`
		Qty        int    `json:"qty"`
	}
	lines := make([]placeLine, len(placeReq.Items))
	for i, li := range placeReq.Items {
		lines[i] = placeLine{PartNumber: li.ProductID, Variant: li.VariantID, Qty: li.Quantity}
	}
	payload := map[string]any{
		"reference": placeReq.ExternalRef,
		"lines":     lines,
		"ship_to":   placeReq.Address,
	}

	var result *PlaceResult
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodPost, "/v1/orders", payload)
		if err != nil {
			return err
		}

		var (
			ref    string
			native string
		)
		d := jx.DecodeBytes(body)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				ref, err = d.Str()
			case "state":
				native, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return errors.Wrap(err, "decode place response")
		}

		status, err := c.mapStatus(native)
		if err != nil {
			return err
		}
		result = &PlaceResult{SupplierRef: ref, Status: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetStatus polls the supplier's order state.
func (c *PrimeParts) GetStatus(ctx context.Context, supplierRef string) (order.SupplierStatus, error) {
	var status order.SupplierStatus
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(supplierRef), nil)
		if err != nil {
			return err
		}
		var native string
		d := jx.DecodeBytes(body)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if key == "state" {
				native, err = d.Str()
				return err
			}
			return d.Skip()
		}); err != nil {
			return errors.Wrap(err, "decode status response")
		}
		status, err = c.mapStatus(native)
		return err
	})
	return status, err
}

// GetTracking fetches the shipment record for a dispatched order.
func (c *PrimeParts) GetTracking(ctx context.Context, supplierRef string) (*order.Tracking, error) {
	var tr *order.Tracking
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(supplierRef)+"/shipment", nil)
		if err != nil {
			return err
		}
		tr, err = parsePrimeShipment(body)
		return err
	})
	return tr, err
}

func parsePrimeShipment(body []byte) (*order.Tracking, error) {
	tr := &order.Tracking{}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "courier":
			tr.Carrier, err = d.Str()
		case "tracking_ref":
			tr.Number, err = d.Str()
		case "tracking_url":
			tr.URL, err = d.Str()
		case "expected_delivery":
			var s string
			if s, err = d.Str(); err == nil && s != "" {
				tr.EstimatedDelivery, err = time.Parse(time.RFC3339, s)
			}
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode shipment response")
	}
	if tr.Number == "" {
		return nil, nil
	}
	return tr, nil
}

// Cancel voids an order that has not been dispatched.
func (c *PrimeParts) Cancel(ctx context.Context, supplierRef, reason string) error {
	payload := map[string]string{"reason": reason}
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, http.MethodPost, "/v1/orders/"+url.PathEscape(supplierRef)+"/void", payload)
		return err
	})
}

// Search queries the parts catalog.
func (c *PrimeParts) Search(ctx context.Context, query string) ([]supplier.ProductSnapshot, error) {
	var snapshots []supplier.ProductSnapshot
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, "/v1/catalog?query="+url.QueryEscape(query), nil)
		if err != nil {
			return err
		}
		snapshots = snapshots[:0]
		d := jx.DecodeBytes(body)
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "results" {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				snap, err := c.parseSnapshot(d)
				if err != nil {
					return err
				}
				snapshots = append(snapshots, snap)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// GetDetails fetches one part's offer for scoring.
func (c *PrimeParts) GetDetails(ctx context.Context, productID string) (*supplier.ProductSnapshot, error) {
	var snap supplier.ProductSnapshot
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, "/v1/catalog/"+url.PathEscape(productID), nil)
		if err != nil {
			return err
		}
		d := jx.DecodeBytes(body)
		snap, err = c.parseSnapshot(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *PrimeParts) parseSnapshot(d *jx.Decoder) (supplier.ProductSnapshot, error) {
	snap := supplier.ProductSnapshot{Supplier: c.Supplier()}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "part_number":
			snap.ProductID, err = d.Str()
		case "name":
			snap.Title, err = d.Str()
		case "unit_price":
			var f float64
			if f, err = d.Float64(); err == nil {
				snap.Price = decimal.NewFromFloat(f)
			}
		case "on_hand":
			snap.Stock, err = d.Int()
		case "seller_score":
			snap.Rating, err = d.Float64()
		case "delivery_options":
			err = d.Arr(func(d *jx.Decoder) error {
				opt, err := parsePrimeDelivery(d)
				if err != nil {
					return err
				}
				snap.Shipping = append(snap.Shipping, opt)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return supplier.ProductSnapshot{}, errors.Wrap(err, "decode part")
	}
	return snap, nil
}

func parsePrimeDelivery(d *jx.Decoder) (supplier.ShippingOption, error) {
	var opt supplier.ShippingOption
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "method":
			opt.Name, err = d.Str()
		case "price":
			var f float64
			if f, err = d.Float64(); err == nil {
				opt.Cost = decimal.NewFromFloat(f)
			}
		case "eta_min_days":
			opt.MinDays, err = d.Int()
		case "eta_max_days":
			opt.MaxDays, err = d.Int()
		case "tracked":
			opt.HasTracking, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return opt, err
}

// mapStatus translates PrimeParts' native vocabulary onto the shared
// supplier-order status enum.
func (c *PrimeParts) mapStatus(native string) (order.SupplierStatus, error) {
	switch strings.ToUpper(native) {
	case "RECEIVED", "ON_HOLD":
		return order.SupplierPending, nil
	case "ACKNOWLEDGED", "PICKING", "PACKED":
		return order.SupplierProcessing, nil
	case "DISPATCHED", "IN_TRANSIT":
		return order.SupplierShipped, nil
	case "DELIVERED":
		return order.SupplierDelivered, nil
	case "VOID":
		return order.SupplierCancelled, nil
	case "FAULT":
		return order.SupplierError, nil
	default:
		return "", &UnknownStatusError{Supplier: c.Supplier(), Native: native}
	}
}
