package models

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Record store tables.
const (
	TableBuyers    = "buyers"
	TableSuppliers = "suppliers"
	TableReferrals = "referrals"
)

// decode copies store attributes into a typed record. Numbers arrive as
// float64 from JSON backends and booleans occasionally as strings, so input
// is weakly typed.
func decode(fields map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

// encode turns a typed record into store attributes.
func encode(in interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	delete(out, "id")
	return out, nil
}
