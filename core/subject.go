package core

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// DefaultSalary is used when the salary text carries no number
	DefaultSalary int64 = 50000

	// DefaultExperienceYears is used when the start date is missing or unparseable
	DefaultExperienceYears int64 = 2
)

var salaryNumber = regexp.MustCompile(`\d[\d,]*(\.\d+)?`)

// dateLayouts are tried in order when reading free-text dates
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01",
	"01/02/2006",
	"2006/01/02",
}

// ParseSalary extracts the first number of a salary text such as
// "$80,000 - $100,000" or "95k". It never fails: text without a usable
// number yields DefaultSalary.
func ParseSalary(text string) int64 {
	match := salaryNumber.FindString(text)
	if match == "" {
		return DefaultSalary
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return DefaultSalary
	}

	rest := strings.ToLower(strings.TrimSpace(text[strings.Index(text, match)+len(match):]))
	if strings.HasPrefix(rest, "k") {
		amount = amount.Mul(decimal.NewFromInt(1000))
	}

	if amount.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return DefaultSalary
	}
	return amount.IntPart()
}

// ParseDate reads a free-text date in one of the accepted layouts
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExperienceYears returns the whole years elapsed between startDate and now.
// Unparseable input yields DefaultExperienceYears; a future start date yields 0.
func ExperienceYears(startDate string, now time.Time) int64 {
	start, ok := ParseDate(startDate)
	if !ok {
		return DefaultExperienceYears
	}
	if start.After(now) {
		return 0
	}

	years := int64(now.Year() - start.Year())
	anniversary := start.AddDate(int(years), 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// NormalizeWallet returns the checksummed form of an Ethereum address and
// leaves any other identifier untouched.
func NormalizeWallet(wallet string) string {
	wallet = strings.TrimSpace(wallet)
	if common.IsHexAddress(wallet) {
		return common.HexToAddress(wallet).Hex()
	}
	return wallet
}

// BuildSubject derives the credential subject handed to the issuance widget
func BuildSubject(req CredentialRequest, now time.Time) map[string]any {
	return map[string]any{
		"id":           NormalizeWallet(req.SubjectWallet),
		"Salary":       ParseSalary(req.Details.Salary),
		"Experience":   ExperienceYears(req.Details.StartDate, now),
		"isCryptoUser": 1,
	}
}
