package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	USD = "USD"
	INR = "INR"
	EUR = "EUR"
	GBP = "GBP"
	JPY = "JPY"
)

// DefaultRates: сколько единиц валюты за 1 USD.
var DefaultRates = map[string]float64{
	USD: 1,
	INR: 84.50,
	EUR: 0.92,
	GBP: 0.78,
	JPY: 150.25,
}

var signs = map[string]string{
	USD: "$",
	INR: "₹",
	EUR: "€",
	GBP: "£",
	JPY: "¥",
}

// Converter: пересчёт через USD по фиксированной таблице.
type Converter struct {
	rates map[string]float64
}

// New копирует таблицу по умолчанию и накладывает overrides (код -> курс к USD).
func New(overrides map[string]float64) *Converter {
	rates := make(map[string]float64, len(DefaultRates)+len(overrides))
	for k, v := range DefaultRates {
		rates[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			rates[strings.ToUpper(k)] = v
		}
	}
	return &Converter{rates: rates}
}

// Rate: курс к USD, неизвестная валюта = 1.
func (c *Converter) Rate(code string) float64 {
	if r, ok := c.rates[strings.ToUpper(code)]; ok {
		return r
	}
	return 1
}

func (c *Converter) Convert(value float64, from, to string) float64 {
	usd := value / c.Rate(from)
	return usd * c.Rate(to)
}

// ToUSD: цена символа из его валюты в USD.
func (c *Converter) ToUSD(value float64, symbol string) float64 {
	return c.Convert(value, AssetCurrency(symbol), USD)
}

// FromUSD: сумма в USD в валюту символа.
func (c *Converter) FromUSD(value float64, symbol string) float64 {
	return c.Convert(value, USD, AssetCurrency(symbol))
}

// AssetCurrency: индийские листинги (.NS, .BO) в INR, всё остальное в USD.
func AssetCurrency(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.HasSuffix(s, ".NS") || strings.HasSuffix(s, ".BO") {
		return INR
	}
	return USD
}

// Format: "$1,234.56" / "-₹84.50". Округление до центов half-up.
func Format(value float64, code string) string {
	code = strings.ToUpper(code)
	sign, ok := signs[code]
	if !ok {
		sign = code + " "
	}

	d := decimal.NewFromFloat(value).Round(2)
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(sign)
	b.WriteString(group(intPart))
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// DisplayPrice: цена символа в валюте отображения.
func (c *Converter) DisplayPrice(price float64, symbol, to string) string {
	return Format(c.Convert(price, AssetCurrency(symbol), to), to)
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
