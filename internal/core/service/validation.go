package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/rl1809/import-export/internal/core/domain"
)

// Fields accepted when listing a product, in the order they are checked.
var requiredProductFields = []string{"name", "image", "price", "originCountry", "rating", "quantity"}

// Fields an update may change, in the order they are checked. Identity,
// ownership and createdAt are fixed, and stock only moves through transfers.
var patchableProductFields = []string{"name", "image", "price", "originCountry", "rating"}

// Column limits of the products and transfers tables.
const (
	maxNameLen    = 255
	maxCountryLen = 128
	maxOwnerLen   = 128
	maxUserIDLen  = 128
	maxImageBytes = 65535
	maxPriceScale = 4
	maxPriceUnits = 14
)

var textLimits = map[string]int{
	"name":          maxNameLen,
	"originCountry": maxCountryLen,
}

func invalid(field, reason string) error {
	return &domain.ValidationError{Field: field, Reason: reason}
}

func parseText(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, "is required")
	}
	if field == "image" {
		if len(s) > maxImageBytes {
			return "", invalid(field, fmt.Sprintf("must be at most %d bytes", maxImageBytes))
		}
		return s, nil
	}
	if limit, ok := textLimits[field]; ok && utf8.RuneCountInString(s) > limit {
		return "", invalid(field, fmt.Sprintf("must be at most %d characters", limit))
	}
	return s, nil
}

// toFloat coerces JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toInt coerces v to an integer, rejecting fractional values.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func parsePrice(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(n))
	default:
		f, ok := toFloat(v)
		if !ok {
			return decimal.Zero, invalid("price", "must be a number")
		}
		d = decimal.NewFromFloat(f)
	}
	if err != nil {
		return decimal.Zero, invalid("price", "must be a number")
	}
	if d.IsNegative() {
		return decimal.Zero, invalid("price", "must not be negative")
	}
	if !d.Equal(d.Round(maxPriceScale)) {
		return decimal.Zero, invalid("price", fmt.Sprintf("must have at most %d decimal places", maxPriceScale))
	}
	if len(d.Truncate(0).String()) > maxPriceUnits {
		return decimal.Zero, invalid("price", "is too large")
	}
	return d, nil
}

func parseRating(v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, invalid("rating", "must be a number")
	}
	return f, nil
}

func parseStock(v any) (int, error) {
	n, ok := toInt(v)
	if !ok {
		return 0, invalid("quantity", "must be an integer")
	}
	if n < 0 {
		return 0, invalid("quantity", "must not be negative")
	}
	return n, nil
}

// ParseTransferQuantity coerces a requested import quantity. Anything that is
// not a positive integer is domain.ErrInvalidArgument.
func ParseTransferQuantity(v any) (int, error) {
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: quantity must be an integer", domain.ErrInvalidArgument)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}
	return n, nil
}

// buildProduct validates a listing request and returns the product without
// server-assigned fields.
func buildProduct(fields map[string]any) (domain.Product, error) {
	var p domain.Product
	for _, name := range requiredProductFields {
		v, ok := fields[name]
		if !ok || v == nil {
			return domain.Product{}, invalid(name, "is required")
		}
	}

	var err error
	if p.Name, err = parseText("name", fields["name"]); err != nil {
		return domain.Product{}, err
	}
	if p.Image, err = parseText("image", fields["image"]); err != nil {
		return domain.Product{}, err
	}
	if p.Price, err = parsePrice(fields["price"]); err != nil {
		return domain.Product{}, err
	}
	if p.OriginCountry, err = parseText("originCountry", fields["originCountry"]); err != nil {
		return domain.Product{}, err
	}
	if p.Rating, err = parseRating(fields["rating"]); err != nil {
		return domain.Product{}, err
	}
	if p.Quantity, err = parseStock(fields["quantity"]); err != nil {
		return domain.Product{}, err
	}

	// ownerId is preferred; userId is what older clients send.
	for _, key := range []string{"ownerId", "userId"} {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			p.OwnerID = strings.TrimSpace(s)
			if utf8.RuneCountInString(p.OwnerID) > maxOwnerLen {
				return domain.Product{}, invalid(key, fmt.Sprintf("must be at most %d characters", maxOwnerLen))
			}
			break
		}
	}
	return p, nil
}

// buildPatch validates the supplied subset of descriptive fields. Any other
// key is ignored.
func buildPatch(fields map[string]any) (domain.ProductPatch, error) {
	var patch domain.ProductPatch
	for _, key := range patchableProductFields {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch key {
		case "name", "image", "originCountry":
			s, err := parseText(key, v)
			if err != nil {
				return domain.ProductPatch{}, err
			}
			switch key {
			case "name":
				patch.Name = &s
			case "image":
				patch.Image = &s
			default:
				patch.OriginCountry = &s
			}
		case "price":
			d, err := parsePrice(v)
			if err != nil {
				return domain.ProductPatch{}, err
			}
			patch.Price = &d
		case "rating":
			f, err := parseRating(v)
			if err != nil {
				return domain.ProductPatch{}, err
			}
			patch.Rating = &f
		}
	}
	if patch.Empty() {
		return domain.ProductPatch{}, invalid("", "no updatable fields supplied")
	}
	return patch, nil
}
