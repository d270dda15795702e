package propstat

import (
	"strconv"
	"strings"
)

// Default header-relative column positions in the housing dataset.
const (
	DefaultSizeColumn  = 4
	DefaultPriceColumn = 13
)

const (
	fieldDelimiter = ","
	blankCutset    = " \t\r\n"
	quotedCutset   = blankCutset + `'"`
)

// Field is an optional numeric value extracted from one column of a record.
type Field struct {
	Value float64
	Valid bool
}

// FieldSet holds the two values of interest derived from one record.
// Either field may be absent independently of the other.
type FieldSet struct {
	Size  Field
	Price Field
}

// Empty reports whether neither field was extracted.
func (f FieldSet) Empty() bool {
	return !f.Size.Valid && !f.Price.Valid
}

// ParseFunc converts a trimmed token into a number. ok is false when the
// token does not start with a number.
type ParseFunc func(token string) (value float64, ok bool)

// Extractor pulls the size and price fields out of raw comma-delimited records.
type Extractor struct {
	SizeColumn  int
	PriceColumn int
	TrimQuotes  bool      // also strip surrounding ' and " from tokens
	Parse       ParseFunc // defaults to ParseLeadingFloat
}

// NewExtractor returns an Extractor for the given columns using lenient
// float parsing.
func NewExtractor(sizeColumn, priceColumn int) Extractor {
	return Extractor{
		SizeColumn:  sizeColumn,
		PriceColumn: priceColumn,
		Parse:       ParseLeadingFloat,
	}
}

// Extract splits record on commas and parses the size and price columns.
// Missing columns and unparsable tokens yield absent fields; Extract never fails.
func (e Extractor) Extract(record string) FieldSet {
	last := e.SizeColumn
	if e.PriceColumn > last {
		last = e.PriceColumn
	}
	// Columns past the last one of interest are left unsplit
	tokens := strings.SplitN(record, fieldDelimiter, last+2)

	return FieldSet{
		Size:  e.field(tokens, e.SizeColumn),
		Price: e.field(tokens, e.PriceColumn),
	}
}

func (e Extractor) field(tokens []string, column int) Field {
	if column < 0 || column >= len(tokens) {
		return Field{}
	}

	cutset := blankCutset
	if e.TrimQuotes {
		cutset = quotedCutset
	}
	token := strings.Trim(tokens[column], cutset)

	parse := e.Parse
	if parse == nil {
		parse = ParseLeadingFloat
	}
	value, ok := parse(token)
	return Field{Value: value, Valid: ok}
}

// ParseLeadingFloat parses the longest prefix of token that forms a decimal
// floating point number, ignoring any trailing characters ("12.5sqft" is 12.5).
// Tokens without a leading number, or whose value overflows, are rejected.
func ParseLeadingFloat(token string) (float64, bool) {
	i := scanSign(token, 0)
	start := i
	i = scanDigits(token, i)
	digits := i - start
	if i < len(token) && token[i] == '.' {
		j := scanDigits(token, i+1)
		digits += j - i - 1
		i = j
	}
	if digits == 0 {
		return 0, false
	}

	// Exponent is only consumed when it is complete
	if i < len(token) && (token[i] == 'e' || token[i] == 'E') {
		j := scanSign(token, i+1)
		if k := scanDigits(token, j); k > j {
			i = k
		}
	}

	value, err := strconv.ParseFloat(token[:i], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseLeadingInt parses an optionally signed run of leading decimal digits
// ("1200.75" is 1200). Tokens without leading digits, or whose value does
// not fit in an int64, are rejected.
func ParseLeadingInt(token string) (float64, bool) {
	i := scanSign(token, 0)
	j := scanDigits(token, i)
	if j == i {
		return 0, false
	}

	value, err := strconv.ParseInt(token[:j], 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(value), true
}

func scanSign(s string, i int) int {
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		return i + 1
	}
	return i
}

func scanDigits(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}
