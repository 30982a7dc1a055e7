package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product not available")
	ErrCouponInvalid   = errors.New("coupon not applicable")
)

// Tax rates by shipping country, applied to subtotal minus discount.
var taxRates = map[string]decimal.Decimal{
	"IN": decimal.NewFromFloat(0.05),
	"US": decimal.NewFromFloat(0.07),
	"GB": decimal.NewFromFloat(0.20),
	"DE": decimal.NewFromFloat(0.19),
}

var defaultTaxRate = decimal.NewFromFloat(0.10)

// Quote holds server-computed totals in minor currency units.
type Quote struct {
	Items      []models.OrderItem
	Subtotal   int64
	Discount   int64
	Tax        int64
	CouponCode *string
}

type Engine struct {
	catalog store.CatalogStore
	coupons store.CouponStore
	logger  *slog.Logger
}

func NewEngine(catalog store.CatalogStore, coupons store.CouponStore) *Engine {
	return &Engine{
		catalog: catalog,
		coupons: coupons,
		logger:  slog.With("component", "pricing"),
	}
}

// Quote recomputes line prices from the catalog, applies the coupon and the
// country tax rate. Client-submitted prices are ignored; an unknown or
// inactive product fails the whole cart rather than falling back to the
// client value.
func (e *Engine) Quote(ctx context.Context, items []models.CheckoutItem, couponCode, country string) (Quote, error) {
	var q Quote

	for _, line := range items {
		product, err := e.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return q, fmt.Errorf("product %s: %w", line.ProductID, ErrProductNotFound)
			}
			return q, fmt.Errorf("catalog lookup %s: %w", line.ProductID, err)
		}
		if !product.Active {
			return q, fmt.Errorf("product %s: %w", line.ProductID, ErrProductInactive)
		}

		if line.Price != 0 && line.Price != product.Price {
			e.logger.Warn("client price ignored",
				"product_id", line.ProductID,
				"client_price", line.Price,
				"catalog_price", product.Price)
		}

		q.Items = append(q.Items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			WeightGrams: product.WeightGrams,
		})
		q.Subtotal += product.Price * int64(line.Quantity)
	}

	if couponCode != "" {
		discount, err := e.applyCoupon(ctx, couponCode, q.Subtotal)
		if err != nil {
			return q, err
		}
		q.Discount = discount
		q.CouponCode = &couponCode
	}

	q.Tax = TaxFor(country, q.Subtotal-q.Discount)
	return q, nil
}

func (e *Engine) applyCoupon(ctx context.Context, code string, subtotal int64) (int64, error) {
	coupon, err := e.coupons.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("coupon %s: %w", code, ErrCouponInvalid)
		}
		return 0, fmt.Errorf("coupon lookup %s: %w", code, err)
	}

	if !coupon.Usable(time.Now(), subtotal) {
		return 0, fmt.Errorf("coupon %s: %w", code, ErrCouponInvalid)
	}

	return Discount(*coupon, subtotal), nil
}

// Discount computes the coupon's effect on a subtotal, clamped so the
// discount never exceeds the subtotal. Percentage results round half-up to
// whole minor units.
func Discount(coupon models.Coupon, subtotal int64) int64 {
	var discount int64
	switch coupon.DiscountType {
	case models.DiscountPercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(coupon.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
	case models.DiscountFixed:
		discount = coupon.Value
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

const (
	flatShippingRate int64 = 5000
	freeShippingOver int64 = 100000
)

// ShippingFor charges a flat rate below the free-shipping threshold,
// evaluated on the discounted subtotal.
func ShippingFor(discountedSubtotal int64) int64 {
	if discountedSubtotal >= freeShippingOver {
		return 0
	}
	return flatShippingRate
}

// TaxFor computes the tax on a taxable amount for a shipping country,
// rounded half-up to whole minor units. Unknown countries use the default
// rate.
func TaxFor(country string, taxable int64) int64 {
	if taxable <= 0 {
		return 0
	}
	rate, ok := taxRates[country]
	if !ok {
		rate = defaultTaxRate
	}
	return decimal.NewFromInt(taxable).Mul(rate).Round(0).IntPart()
}
