// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package guardrail

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// pattern couples a category regex with an optional validator that rejects
// structurally-matching false positives (e.g. digit runs that fail Luhn).
type pattern struct {
	category  Category
	regex     *regexp.Regexp
	validator func(match string) bool
}

// Detection runs one independent pass per category; overlap between
// categories is resolved afterwards by dedupeOverlaps, not by pattern order.
var patterns = []pattern{
	{
		category: CategoryEmail,
		regex:    regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
	},
	{
		category:  CategoryPhone,
		regex:     regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s][0-9]{3}[-.\s]?[0-9]{4}\b`),
		validator: validPhone,
	},
	{
		category:  CategorySSN,
		regex:     regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`),
		validator: validSSN,
	},
	{
		category: CategoryLicense,
		// State driver's license formats vary; 1-2 letters then 6-8 digits
		// covers the jurisdictions Keystone operates in.
		regex: regexp.MustCompile(`\b[A-Z]{1,2}[0-9]{6,8}\b`),
	},
	{
		category:  CategoryAccount,
		regex:     regexp.MustCompile(`\b[0-9]{10,17}\b`),
		validator: validAccount,
	},
	{
		category: CategoryCreditCard,
		// Visa, MasterCard, Amex, Discover plus separator-grouped 16-digit
		// forms; Luhn filters the rest.
		regex:     regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b|\b\d{4}[- ]\d{4}[- ]\d{4}[- ]\d{4}\b`),
		validator: validCreditCard,
	},
	{
		category: CategoryAddress,
		regex:    regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way)\b\.?`),
	},
	{
		category: CategoryName,
		// Two-capitalized-token heuristic. Accepts some false positives;
		// the allowlist exempts known product and place names.
		regex:     regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`),
		validator: validName,
	},
}

// digitsOf strips everything but digits.
func digitsOf(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// validSSN rejects area/group/serial values the SSA never issues.
func validSSN(match string) bool {
	clean := digitsOf(match)
	if len(clean) != 9 {
		return false
	}

	area, _ := strconv.Atoi(clean[0:3])
	group, _ := strconv.Atoi(clean[3:5])
	serial, _ := strconv.Atoi(clean[5:9])

	if area == 0 || area == 666 || area >= 900 {
		return false
	}
	return group != 0 && serial != 0
}

// validCreditCard requires a Luhn-valid digit string of plausible length.
func validCreditCard(match string) bool {
	clean := digitsOf(match)
	if len(clean) < 13 || len(clean) > 19 {
		return false
	}
	return luhnCheck(clean)
}

// luhnCheck performs the Luhn checksum.
func luhnCheck(number string) bool {
	sum := 0
	alternate := false

	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		alternate = !alternate
	}

	return sum%10 == 0
}

// validAccount keeps digit runs that are not Luhn-valid card numbers; those
// belong to the credit-card pass.
func validAccount(match string) bool {
	if len(match) >= 13 && luhnCheck(match) {
		return false
	}
	return true
}

// validPhone rejects repeated-digit strings and implausible lengths.
func validPhone(match string) bool {
	digits := digitsOf(match)
	if len(digits) < 10 || len(digits) > 11 {
		return false
	}

	first := digits[0]
	for i := 1; i < len(digits); i++ {
		if digits[i] != first {
			return true
		}
	}
	return false
}

// nameStopwords are capitalized bigram leads that are overwhelmingly not
// personal names in listing and compliance text.
var nameStopwords = map[string]bool{
	"New":    true,
	"North":  true,
	"South":  true,
	"East":   true,
	"West":   true,
	"Los":    true,
	"San":    true,
	"Santa":  true,
	"Lake":   true,
	"Fort":   true,
	"Saint":  true,
	"United": true,
	"The":    true,
}

func validName(match string) bool {
	first, _, ok := strings.Cut(match, " ")
	if !ok {
		return false
	}
	return !nameStopwords[first]
}
