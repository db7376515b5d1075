package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
)

var _ Client = (*RESTClient)(nil)

// RESTClient implements Client against the storefront's admin REST API
// with static token authentication.
type RESTClient struct {
	base   string
	token  string
	client *http.Client
}

// NewRESTClient creates a storefront client for the given admin API
// base URL and access token.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// storefrontError is a non-2xx response from the storefront API.
type storefrontError struct {
	status int
	body   string
}

func (e *storefrontError) Error() string {
	return "storefront: " + e.body
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, errors.Wrap(err, "marshal payload")
		}
	}

	var out []byte
	backoff := retry.WithMaxRetries(2, retry.NewExponential(300*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("X-Access-Token", c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(&storefrontError{status: resp.StatusCode, body: string(data)})
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &storefrontError{status: resp.StatusCode, body: string(data)}
		}
		out = data
		return nil
	})
	return out, err
}

// ListNewOrders fetches orders placed after the watermark.
func (c *RESTClient) ListNewOrders(ctx context.Context, sinceExternalID string) ([]*order.Order, error) {
	path := "/admin/orders?status=open"
	if sinceExternalID != "" {
		path += "&since_id=" + url.QueryEscape(sinceExternalID)
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var orders []*order.Order
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "orders" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			o, err := parseOrder(d)
			if err != nil {
				return err
			}
			orders = append(orders, o)
			return nil
		})
	}); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

// GetOrder fetches one order by its storefront id.
func (c *RESTClient) GetOrder(ctx context.Context, externalID string) (*order.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/admin/orders/"+url.PathEscape(externalID), nil)
	if err != nil {
		return nil, err
	}
	d := jx.DecodeBytes(body)
	return parseOrder(d)
}

// SetFulfillmentStatus reports the customer-facing status back to the
// storefront.
func (c *RESTClient) SetFulfillmentStatus(ctx context.Context, externalID string, status order.Status) error {
	payload := map[string]string{"fulfillment_status": string(status)}
	_, err := c.do(ctx, http.MethodPut, "/admin/orders/"+url.PathEscape(externalID)+"/fulfillment", payload)
	return err
}

// AddFulfillment attaches a tracking number to the storefront order.
func (c *RESTClient) AddFulfillment(ctx context.Context, externalID, carrier, trackingNumber string) error {
	payload := map[string]string{
		"carrier":         carrier,
		"tracking_number": trackingNumber,
	}
	_, err := c.do(ctx, http.MethodPost, "/admin/orders/"+url.PathEscape(externalID)+"/fulfillments", payload)
	return err
}

// parseOrder decodes one storefront order object into the domain shape.
// The storefront id lands in ExternalID; the engine assigns its own id
// at ingest.
func parseOrder(d *jx.Decoder) (*order.Order, error) {
	o := &order.Order{Status: order.StatusNew}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ExternalID, err = d.Str()
		case "email":
			o.CustomerEmail, err = d.Str()
		case "currency":
			o.Currency, err = d.Str()
		case "total_price":
			var s string
			if s, err = d.Str(); err == nil {
				o.Total, err = decimal.NewFromString(s)
			}
		case "created_at":
			var s string
			if s, err = d.Str(); err == nil && s != "" {
				o.CreatedAt, err = time.Parse(time.RFC3339, s)
			}
		case "shipping_address":
			err = parseAddress(d, &o.ShippingAddr)
		case "line_items":
			err = d.Arr(func(d *jx.Decoder) error {
				li, err := parseLineItem(d)
				if err != nil {
					return err
				}
				o.Items = append(o.Items, li)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return o, nil
}

func parseAddress(d *jx.Decoder, addr *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			addr.Name, err = d.Str()
		case "address1":
			addr.Line1, err = d.Str()
		case "address2":
			addr.Line2, err = d.Str()
		case "city":
			addr.City, err = d.Str()
		case "province":
			addr.Region, err = d.Str()
		case "zip":
			addr.PostalCode, err = d.Str()
		case "country_code":
			addr.CountryCode, err = d.Str()
		case "phone":
			addr.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

func parseLineItem(d *jx.Decoder) (order.LineItem, error) {
	var li order.LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			li.ProductID, err = d.Str()
		case "variant_id":
			li.VariantID, err = d.Str()
		case "quantity":
			li.Quantity, err = d.Int()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				li.UnitPrice, err = decimal.NewFromString(s)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	return li, err
}
