package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

var _ Gateway = (*MegaSupply)(nil)

// MegaSupply is the client for the MegaSupply wholesale API. Every
// request is authenticated by an HMAC-SHA256 signature over the sorted
// query parameters.
type MegaSupply struct {
	base      string
	appKey    string
	appSecret string
	client    *http.Client
}

// NewMegaSupply creates a MegaSupply client for the given API base URL
// and credentials.
func NewMegaSupply(baseURL, appKey, appSecret string) *MegaSupply {
	return &MegaSupply{
		base:      strings.TrimRight(baseURL, "/"),
		appKey:    appKey,
		appSecret: appSecret,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *MegaSupply) Supplier() supplier.Type { return supplier.TypeMegaSupply }

// sign computes the request signature: parameters sorted by key,
// concatenated as key+value, HMAC-SHA256 with the app secret, upper-hex.
func (c *MegaSupply) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// signedURL builds the full request URL with app_key, timestamp and
// sign parameters appended.
func (c *MegaSupply) signedURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("app_key", c.appKey)
	params.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	params.Set("sign", c.sign(params))
	return c.base + path + "?" + params.Encode()
}

func (c *MegaSupply) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.signedURL(path, params), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	return send(ctx, c.client, c.Supplier(), req)
}

func (c *MegaSupply) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signedURL(path, nil), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return send(ctx, c.client, c.Supplier(), req)
}

// Place submits a sub-order.
func (c *MegaSupply) Place(ctx context.Context, placeReq PlaceRequest) (*PlaceResult, error) {
	type placeItem struct {
		SKU      string `json:"sku"`
		Variant  string `json:"variant,omitempty"`
		Quantity int    `json:"quantity"`
	}
	items := make([]placeItem, len(placeReq.Items))
	for i, li := range placeReq.Items {
		items[i] = placeItem{SKU: li.ProductID, Variant: li.VariantID, Quantity: li.Quantity}
	}
	payload := map[string]any{
		"external_ref": placeReq.ExternalRef,
		"items":        items,
		"address":      placeReq.Address,
	}

	var result *PlaceResult
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.post(ctx, "/api/v2/order/place", payload)
		if err != nil {
			return err
		}
		result, err = c.parsePlaced(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *MegaSupply) parsePlaced(body []byte) (*PlaceResult, error) {
	var (
		ref    string
		native string
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			ref, err = d.Str()
		case "status":
			native, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode place response")
	}

	status, err := c.mapStatus(native)
	if err != nil {
		return nil, err
	}
	return &PlaceResult{SupplierRef: ref, Status: status}, nil
}

// GetStatus polls the supplier's order status.
func (c *MegaSupply) GetStatus(ctx context.Context, supplierRef string) (order.SupplierStatus, error) {
	var status order.SupplierStatus
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.get(ctx, "/api/v2/order/"+url.PathEscape(supplierRef), nil)
		if err != nil {
			return err
		}
		var native string
		d := jx.DecodeBytes(body)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if key == "status" {
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

// GetTracking fetches shipment tracking for a shipped order.
func (c *MegaSupply) GetTracking(ctx context.Context, supplierRef string) (*order.Tracking, error) {
	var tr *order.Tracking
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.get(ctx, "/api/v2/order/"+url.PathEscape(supplierRef)+"/tracking", nil)
		if err != nil {
			return err
		}
		tr, err = parseMegaTracking(body)
		return err
	})
	return tr, err
}

func parseMegaTracking(body []byte) (*order.Tracking, error) {
	tr := &order.Tracking{}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "carrier":
			tr.Carrier, err = d.Str()
		case "tracking_number":
			tr.Number, err = d.Str()
		case "url":
			tr.URL, err = d.Str()
		case "eta":
			var s string
			if s, err = d.Str(); err == nil && s != "" {
				tr.EstimatedDelivery, err = time.Parse("2006-01-02", s)
			}
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode tracking response")
	}
	if tr.Number == "" {
		return nil, nil
	}
	return tr, nil
}

// Cancel requests cancellation of a placed order.
func (c *MegaSupply) Cancel(ctx context.Context, supplierRef, reason string) error {
	payload := map[string]string{"reason": reason}
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := c.post(ctx, "/api/v2/order/"+url.PathEscape(supplierRef)+"/cancel", payload)
		return err
	})
}

// Search queries the supplier catalog.
func (c *MegaSupply) Search(ctx context.Context, query string) ([]supplier.ProductSnapshot, error) {
	var snapshots []supplier.ProductSnapshot
	err := withRetry(ctx, func(ctx context.Context) error {
		params := url.Values{"q": []string{query}}
		body, err := c.get(ctx, "/api/v2/product/search", params)
		if err != nil {
			return err
		}
		snapshots = snapshots[:0]
		d := jx.DecodeBytes(body)
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "products" {
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

// GetDetails fetches one product's offer for scoring.
func (c *MegaSupply) GetDetails(ctx context.Context, productID string) (*supplier.ProductSnapshot, error) {
	var snap supplier.ProductSnapshot
	err := withRetry(ctx, func(ctx context.Context) error {
		body, err := c.get(ctx, "/api/v2/product/"+url.PathEscape(productID), nil)
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

// parseSnapshot decodes one product object from the vendor response.
func (c *MegaSupply) parseSnapshot(d *jx.Decoder) (supplier.ProductSnapshot, error) {
	snap := supplier.ProductSnapshot{Supplier: c.Supplier()}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			snap.ProductID, err = d.Str()
		case "title":
			snap.Title, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				snap.Price, err = decimal.NewFromString(s)
			}
		case "stock":
			snap.Stock, err = d.Int()
		case "rating":
			snap.Rating, err = d.Float64()
		case "shipping":
			err = d.Arr(func(d *jx.Decoder) error {
				opt, err := parseMegaShipping(d)
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
		return supplier.ProductSnapshot{}, errors.Wrap(err, "decode product")
	}
	return snap, nil
}

func parseMegaShipping(d *jx.Decoder) (supplier.ShippingOption, error) {
	var opt supplier.ShippingOption
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "service":
			opt.Name, err = d.Str()
		case "cost":
			var s string
			if s, err = d.Str(); err == nil {
				opt.Cost, err = decimal.NewFromString(s)
			}
		case "min_days":
			opt.MinDays, err = d.Int()
		case "max_days":
			opt.MaxDays, err = d.Int()
		case "tracking":
			opt.HasTracking, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return opt, err
}

// mapStatus translates MegaSupply's native vocabulary onto the shared
// supplier-order status enum.
func (c *MegaSupply) mapStatus(native string) (order.SupplierStatus, error) {
	switch strings.ToUpper(native) {
	case "CREATED", "PAID", "AWAITING_SHIPMENT":
		return order.SupplierPending, nil
	case "PROCESSING", "PREPARING":
		return order.SupplierProcessing, nil
	case "SHIPPED", "IN TRANSIT", "IN_TRANSIT":
		return order.SupplierShipped, nil
	case "FINISHED", "DELIVERED":
		return order.SupplierDelivered, nil
	case "CLOSED", "CANCELLED":
		return order.SupplierCancelled, nil
	case "RISK_REJECTED", "PAYMENT_FAILED":
		return order.SupplierError, nil
	default:
		return "", &UnknownStatusError{Supplier: c.Supplier(), Native: native}
	}
}
