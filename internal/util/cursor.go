package util

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor packs the keyset sort values (name, product id) of the last
// row of a page into an opaque URL-safe token.
func EncodeCursor(name, productID string) string {
	raw, _ := json.Marshal([]string{name, productID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. Fails closed: bad base64, bad JSON,
// or the wrong arity all return ErrInvalidCursor.
func DecodeCursor(cursor string) (name, productID string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", ErrInvalidCursor
	}
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		return "", "", ErrInvalidCursor
	}
	if len(vals) != 2 {
		return "", "", ErrInvalidCursor
	}
	return vals[0], vals[1], nil
}
