package util

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	reMoneyNoise   = regexp.MustCompile(`[$,\s]`)
	reMoneyStrip   = regexp.MustCompile(`[^\d.\-]`)
	reLeadingFloat = regexp.MustCompile(`^-?(?:\d+\.?\d*|\.\d+)`)
)

// ParseMoney reads a currency cell such as "$12,500.00". Symbols, separators and any other
// characters outside [0-9.-] are dropped and the longest numeric prefix is parsed.
func ParseMoney(input string) (float64, bool) {
	cleaned := reMoneyNoise.ReplaceAllString(input, "")
	cleaned = reMoneyStrip.ReplaceAllString(cleaned, "")
	token := reLeadingFloat.FindString(cleaned)
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RoundCents rounds half away from zero to two decimals, matching DECIMAL(15,2) columns.
func RoundCents(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}

func RoundCentsPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return FloatPtr(RoundCents(*v))
}

// FormatMoney renders v as a fixed two-decimal string for exports.
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func FormatMoneyPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatMoney(*v)
}
