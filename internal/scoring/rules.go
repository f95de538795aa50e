package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"taxlien/internal"
	"taxlien/internal/util"
)

type typeRule struct {
	match  func(desc string) bool
	result internal.PropertyTypeClass
}

// Order matters: the raw land rule also fires for any description without "building" or
// "structure", so multi family is only reached for descriptions naming one of those.
var propertyTypeRules = []typeRule{
	{containsAny("commercial", "retail", "office", "warehouse", "industrial"), internal.TypeCommercial},
	{containsAny("residential", "single family", "house", "home", "dwelling"), internal.TypeResidential},
	{func(d string) bool {
		return containsAny("vacant", "raw land", "undeveloped", "lot")(d) ||
			(!strings.Contains(d, "building") && !strings.Contains(d, "structure"))
	}, internal.TypeRawLand},
	{containsAny("apartment", "multi-family", "duplex", "condo"), internal.TypeMultiFamily},
}

type locationRule struct {
	match  func(location, address string) bool
	result internal.LocationQualityClass
}

// Location keywords must start a word: "Kansas City" is a city, "Anytown" is not a town.
var (
	highLocation   = regexp.MustCompile(`\b(?:city|downtown|metro)`)
	highAddress    = regexp.MustCompile(`\b(?:main st|downtown)`)
	mediumLocation = regexp.MustCompile(`\b(?:suburb|town|village)`)
	lowLocation    = regexp.MustCompile(`\b(?:rural|county|unincorporated)`)
)

var locationRules = []locationRule{
	{func(l, a string) bool { return highLocation.MatchString(l) || highAddress.MatchString(a) }, internal.LocationHigh},
	{func(l, _ string) bool { return mediumLocation.MatchString(l) }, internal.LocationMedium},
	{func(l, _ string) bool { return lowLocation.MatchString(l) }, internal.LocationLow},
}

var acreagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+\.?\d*)\s*acres?`),
	regexp.MustCompile(`(\d+\.?\d*)\s*ac`),
	regexp.MustCompile(`(\d+\.?\d*)\s*a\.`),
}

func containsAny(probes ...string) func(string) bool {
	return func(s string) bool { return util.ContainsAny(s, probes...) }
}

func lower(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(*v)
}

// ClassifyPropertyType reads the lower-cased legal description.
func ClassifyPropertyType(description *string) internal.PropertyTypeClass {
	d := lower(description)
	for _, r := range propertyTypeRules {
		if r.match(d) {
			return r.result
		}
	}
	return internal.TypeUnknown
}

func AssessLocation(location, address *string) internal.LocationQualityClass {
	l, a := lower(location), lower(address)
	for _, r := range locationRules {
		if r.match(l, a) {
			return r.result
		}
	}
	return internal.LocationUnknown
}

// ExtractAcreage pulls "2.5 acres", "3ac" or "1 a." out of a description.
func ExtractAcreage(description *string) *float64 {
	d := lower(description)
	for _, re := range acreagePatterns {
		m := re.FindStringSubmatch(d)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(m[1], "."), 64)
		if err != nil {
			return nil
		}
		return &v
	}
	return nil
}

var typePoints = map[internal.PropertyTypeClass]int{
	internal.TypeResidential: 15,
	internal.TypeCommercial:  12,
	internal.TypeMultiFamily: 10,
	internal.TypeRawLand:     5,
}

var locationPoints = map[internal.LocationQualityClass]int{
	internal.LocationHigh:   15,
	internal.LocationMedium: 10,
	internal.LocationLow:    5,
}

const unclassifiedPoints = 3

func equityPoints(ratio float64) int {
	switch {
	case ratio >= 5:
		return 30
	case ratio >= 3:
		return 20
	case ratio >= 2:
		return 10
	}
	return 0
}

func agePoints(days int) int {
	years := float64(days) / 365
	switch {
	case years >= 1 && years <= 3:
		return 20
	case years >= 0.5 && years <= 5:
		return 15
	case years >= 0.25:
		return 10
	}
	return 0
}

func acreagePoints(acres *float64) int {
	switch {
	case acres == nil:
		return 0
	case *acres >= 5:
		return 10
	case *acres >= 1:
		return 5
	}
	return 0
}

// competitionPoints favours smaller lots; amount is equityRatio × delinquentAmount.
func competitionPoints(amount float64) int {
	switch {
	case amount < 10000:
		return 10
	case amount < 50000:
		return 5
	}
	return 0
}
