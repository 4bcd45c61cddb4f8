package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Currency is a lowercase ISO 4217 code accepted at the checkout boundary.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"
	CurrencyCAD Currency = "cad"
	CurrencyAUD Currency = "aud"
	CurrencyNZD Currency = "nzd"
	CurrencyCHF Currency = "chf"
	CurrencySEK Currency = "sek"
	CurrencyNOK Currency = "nok"
	CurrencyDKK Currency = "dkk"
	CurrencySGD Currency = "sgd"
	CurrencyHKD Currency = "hkd"
	CurrencyMXN Currency = "mxn"
	CurrencyBRL Currency = "brl"
	CurrencyINR Currency = "inr"
	CurrencyPLN Currency = "pln"
	CurrencyCZK Currency = "czk"
	CurrencyHUF Currency = "huf"
	CurrencyILS Currency = "ils"
	CurrencyAED Currency = "aed"
	CurrencySAR Currency = "sar"
	// zero-decimal
	CurrencyJPY Currency = "jpy"
	CurrencyKRW Currency = "krw"
	CurrencyVND Currency = "vnd"
	CurrencyCLP Currency = "clp"
)

var supportedCurrencies = map[Currency]struct{}{
	CurrencyUSD: {}, CurrencyEUR: {}, CurrencyGBP: {}, CurrencyCAD: {}, CurrencyAUD: {},
	CurrencyNZD: {}, CurrencyCHF: {}, CurrencySEK: {}, CurrencyNOK: {}, CurrencyDKK: {},
	CurrencySGD: {}, CurrencyHKD: {}, CurrencyMXN: {}, CurrencyBRL: {}, CurrencyINR: {},
	CurrencyPLN: {}, CurrencyCZK: {}, CurrencyHUF: {}, CurrencyILS: {}, CurrencyAED: {},
	CurrencySAR: {}, CurrencyJPY: {}, CurrencyKRW: {}, CurrencyVND: {}, CurrencyCLP: {},
}

// Currencies without a minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// ParseCurrency normalizes s and checks it against the supported set.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported currency %q", s)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	_, ok := supportedCurrencies[c]
	return ok
}

func (c Currency) String() string {
	return string(c)
}

// RecurringInterval is a billing interval. The empty value means one-time payment.
type RecurringInterval string

const (
	IntervalDay   RecurringInterval = "day"
	IntervalWeek  RecurringInterval = "week"
	IntervalMonth RecurringInterval = "month"
	IntervalYear  RecurringInterval = "year"
)

// ParseRecurringInterval accepts "" (one-time) or one of day, week, month, year.
func ParseRecurringInterval(s string) (RecurringInterval, error) {
	i := RecurringInterval(strings.ToLower(strings.TrimSpace(s)))
	if i == "" || i.Valid() {
		return i, nil
	}
	return "", fmt.Errorf("unsupported interval %q", s)
}

func (i RecurringInterval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

func (i RecurringInterval) String() string {
	return string(i)
}

// IsZeroDecimal reports whether currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToLower(strings.TrimSpace(currency))]
	return ok
}

// ToMinorUnit converts a decimal amount string in major units to the
// currency's minor unit: 12.34 usd -> 1234, 1000 jpy -> 1000.
// ok is false when amount is not a finite number.
func ToMinorUnit(amount, currency string) (int64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0, false
	}
	return ToMinorUnitFloat(f, currency)
}

// ToMinorUnitFloat is ToMinorUnit for an already parsed amount.
func ToMinorUnitFloat(amount float64, currency string) (int64, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	scaled := amount
	if !IsZeroDecimal(currency) {
		scaled = amount * 100
	}
	rounded := math.Round(scaled)
	// float64(math.MaxInt64) is 2^63, which int64 cannot hold.
	if rounded >= math.MaxInt64 || rounded < math.MinInt64 {
		return 0, false
	}
	return int64(rounded), true
}

// FromMinorUnit converts a minor-unit amount back to major units.
func FromMinorUnit(amount int64, currency string) float64 {
	if IsZeroDecimal(currency) {
		return float64(amount)
	}
	return float64(amount) / 100
}
