// Package extract turns free-form conversation text into structured fields.
//
// An Extractor is asked for a named schema (for example "invoice") over a
// slice of messages and returns one value per schema field. Fields the
// conversation does not state, or that fail validation, are nil. Callers
// treat an error the same as an all-nil result.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dshills/dialoggraph/graph/model"
)

// Fields holds one extracted value per schema field; nil means unknown.
type Fields map[string]any

// Extractor is the field-extraction capability used by classifier and
// slot-check nodes.
type Extractor interface {
	Extract(ctx context.Context, schema string, messages []model.Message) (Fields, error)
}

// Func adapts a plain function to the Extractor interface.
type Func func(ctx context.Context, schema string, messages []model.Message) (Fields, error)

// Extract implements Extractor.
func (f Func) Extract(ctx context.Context, schema string, messages []model.Message) (Fields, error) {
	return f(ctx, schema, messages)
}

var (
	// ErrUnknownSchema is returned when the requested schema is not registered.
	ErrUnknownSchema = errors.New("unknown extraction schema")

	// ErrMalformedOutput is returned when the model reply is not a JSON object.
	ErrMalformedOutput = errors.New("model output is not a JSON object")
)

// Decode copies fields into out, a pointer to a struct whose json tags name
// the schema fields. Nil values leave the target untouched, numeric strings
// convert to numbers, and RFC 3339 strings convert to time.Time.
//
// Example:
//
//	var slots struct {
//	    ItemCost  *float64   `json:"item_cost"`
//	    StartTime *time.Time `json:"start_time"`
//	}
//	err := extract.Decode(fields, &slots)
func Decode(fields Fields, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(fields))
}

// Null returns a Fields value with every field of schema set to nil.
func Null(s *Schema) Fields {
	out := make(Fields, len(s.Fields))
	for _, f := range s.Fields {
		out[f] = nil
	}
	return out
}
