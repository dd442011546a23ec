package phone

import (
	"errors"
	"fmt"
	"strings"

	"recon/internal/search/sources"
)

// Parser kinds accepted by NewParser.
const (
	ParserTable  = "table"
	ParserLegacy = "legacy"
)

const (
	minNationalDigits = 4
	maxE164Digits     = 15
)

var (
	ErrEmptyNumber        = errors.New("phone number is empty")
	ErrInvalidDigits      = errors.New("phone number must contain only digits")
	ErrUnknownCallingCode = errors.New("unknown calling code")
	ErrNumberLength       = errors.New("phone number has an invalid length")
)

// callingCodes is the ITU-T E.164 calling code list. The set is prefix-free,
// so at most one entry matches the start of a number.
var callingCodes = buildCodeSet(
	"1", "7",
	"20", "27", "30", "31", "32", "33", "34", "36", "39", "40", "41", "43", "44", "45", "46",
	"47", "48", "49", "51", "52", "53", "54", "55", "56", "57", "58", "60", "61", "62", "63",
	"64", "65", "66", "81", "82", "84", "86", "90", "91", "92", "93", "94", "95", "98",
	"211", "212", "213", "216", "218", "220", "221", "222", "223", "224", "225", "226", "227",
	"228", "229", "230", "231", "232", "233", "234", "235", "236", "237", "238", "239", "240",
	"241", "242", "243", "244", "245", "246", "248", "249", "250", "251", "252", "253", "254",
	"255", "256", "257", "258", "260", "261", "262", "263", "264", "265", "266", "267", "268",
	"269", "290", "291", "297", "298", "299",
	"350", "351", "352", "353", "354", "355", "356", "357", "358", "359", "370", "371", "372",
	"373", "374", "375", "376", "377", "378", "380", "381", "382", "383", "385", "386", "387",
	"389", "420", "421", "423",
	"500", "501", "502", "503", "504", "505", "506", "507", "508", "509", "590", "591", "592",
	"593", "594", "595", "596", "597", "598", "599",
	"670", "672", "673", "674", "675", "676", "677", "678", "679", "680", "681", "682", "683",
	"685", "686", "687", "688", "689", "690", "691", "692",
	"850", "852", "853", "855", "856", "880", "886",
	"960", "961", "962", "963", "964", "965", "966", "967", "968", "970", "971", "972", "973",
	"974", "975", "976", "977", "992", "993", "994", "995", "996", "998",
)

func buildCodeSet(codes ...string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

// NewParser returns the parser for kind, falling back to the table parser.
func NewParser(kind, defaultCountryCode string) sources.PhoneParser {
	if kind == ParserLegacy {
		return LegacyParser{DefaultCountryCode: defaultCountryCode}
	}
	return TableParser{DefaultCountryCode: defaultCountryCode}
}

// TableParser accepts "cc:number", "+<cc><number>" and bare national numbers.
// The calling code of a "+" number is resolved against the E.164 table.
type TableParser struct {
	DefaultCountryCode string
}

func (p TableParser) Parse(query string) (string, string, error) {
	query = strings.TrimSpace(query)
	if cc, number, ok := strings.Cut(query, ":"); ok {
		return splitPair(cc, number)
	}

	if rest, ok := strings.CutPrefix(query, "+"); ok {
		digits := stripSeparators(rest)
		if err := checkDigits(digits); err != nil {
			return "", "", err
		}
		code := matchCallingCode(digits)
		if code == "" {
			return "", "", fmt.Errorf("%w in %q", ErrUnknownCallingCode, query)
		}
		number := digits[len(code):]
		if err := checkLength(code, number); err != nil {
			return "", "", err
		}
		return "+" + code, number, nil
	}

	number := stripSeparators(query)
	if err := checkDigits(number); err != nil {
		return "", "", err
	}
	cc := normalizeCode(p.DefaultCountryCode)
	if err := checkLength(strings.TrimPrefix(cc, "+"), number); err != nil {
		return "", "", err
	}
	return cc, number, nil
}

// LegacyParser keeps the fixed-length split used before the calling-code
// table existed: eleven or more digits after "+" take a two digit code,
// anything shorter is treated as a national number under the default code.
type LegacyParser struct {
	DefaultCountryCode string
}

func (p LegacyParser) Parse(query string) (string, string, error) {
	query = strings.TrimSpace(query)
	if cc, number, ok := strings.Cut(query, ":"); ok {
		return splitPair(cc, number)
	}

	cc := normalizeCode(p.DefaultCountryCode)
	rest, hasPlus := strings.CutPrefix(query, "+")
	if !hasPlus {
		rest = query
	}
	rest = stripSeparators(rest)
	if err := checkDigits(rest); err != nil {
		return "", "", err
	}
	if hasPlus && len(rest) > 10 {
		return "+" + rest[:2], rest[2:], nil
	}
	return cc, rest, nil
}

func splitPair(cc, number string) (string, string, error) {
	code := strings.TrimPrefix(strings.TrimSpace(cc), "+")
	number = stripSeparators(number)
	if err := checkDigits(code); err != nil {
		return "", "", fmt.Errorf("calling code: %w", err)
	}
	if err := checkDigits(number); err != nil {
		return "", "", err
	}
	if err := checkLength(code, number); err != nil {
		return "", "", err
	}
	return "+" + code, number, nil
}

func matchCallingCode(digits string) string {
	for n := 3; n >= 1; n-- {
		if len(digits) > n && callingCodes[digits[:n]] {
			return digits[:n]
		}
	}
	return ""
}

func checkDigits(s string) error {
	if s == "" {
		return ErrEmptyNumber
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ErrInvalidDigits
		}
	}
	return nil
}

func checkLength(code, number string) error {
	if len(number) < minNationalDigits || len(code)+len(number) > maxE164Digits {
		return fmt.Errorf("%w: %d digits", ErrNumberLength, len(number))
	}
	return nil
}

func normalizeCode(cc string) string {
	cc = strings.TrimSpace(cc)
	if cc == "" {
		return "+1"
	}
	if !strings.HasPrefix(cc, "+") {
		return "+" + cc
	}
	return cc
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
