// ABOUTME: Decoding and validation of the string-encoded account payload
// ABOUTME: Items need a non-empty hesap_kodu and a numeric borc

package syncer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	fieldCode  = "hesap_kodu"
	fieldDebit = "borc"
)

// item is one validated account from the payload.
type item struct {
	code  string
	debit decimal.Decimal
}

// decodePayload parses scriptResult into its raw items. Numbers are kept
// as json.Number so debits never pass through float64.
func decodePayload(scriptResult string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(scriptResult))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in scriptResult: %v", ErrDataFormat, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: invalid JSON in scriptResult: trailing data", ErrDataFormat)
	}

	items, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: API data is not an array", ErrDataFormat)
	}
	return items, nil
}

// parseItem validates a raw payload entry.
func parseItem(raw any) (item, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return item{}, fmt.Errorf("%w: not an object", ErrValidation)
	}

	code, err := parseCode(obj[fieldCode])
	if err != nil {
		return item{}, err
	}

	debit, err := parseDebit(obj[fieldDebit])
	if err != nil {
		return item{}, fmt.Errorf("%s: %w", code, err)
	}

	return item{code: code, debit: debit}, nil
}

func parseCode(v any) (string, error) {
	var code string
	switch c := v.(type) {
	case string:
		code = strings.TrimSpace(c)
	case json.Number:
		code = c.String()
	case nil:
		return "", fmt.Errorf("%w: missing %s", ErrValidation, fieldCode)
	default:
		return "", fmt.Errorf("%w: %s has type %T", ErrValidation, fieldCode, v)
	}

	if code == "" {
		return "", fmt.Errorf("%w: empty %s", ErrValidation, fieldCode)
	}
	for _, seg := range strings.Split(code, ".") {
		if seg == "" {
			return "", fmt.Errorf("%w: %s %q has an empty segment", ErrValidation, fieldCode, code)
		}
	}
	return code, nil
}

func parseDebit(v any) (decimal.Decimal, error) {
	var s string
	switch d := v.(type) {
	case json.Number:
		s = d.String()
	case string:
		s = strings.TrimSpace(d)
	case nil:
		return decimal.Zero, fmt.Errorf("%w: missing %s", ErrValidation, fieldDebit)
	default:
		return decimal.Zero, fmt.Errorf("%w: %s has type %T", ErrValidation, fieldDebit, v)
	}

	debit, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", ErrValidation, fieldDebit, s)
	}
	return debit, nil
}
