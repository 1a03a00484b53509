package validator

import (
	"fmt"

	"github.com/eddielth/pt100-south/plugin"
)

// Validator checks a reading before it is stored or published
type Validator interface {
	Validate(reading plugin.Reading) error
}

// RangeValidator checks that a reading value lies within [Min, Max]
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate reports an error when the field is missing or out of range
func (rv *RangeValidator) Validate(reading plugin.Reading) error {
	value, ok := reading.Readings[rv.Field]
	if !ok {
		return fmt.Errorf("field %s missing from reading %s", rv.Field, reading.Asset)
	}

	if value < rv.Min || value > rv.Max {
		return fmt.Errorf("field %s of %s value %f out of range [%f, %f]", rv.Field, reading.Asset, value, rv.Min, rv.Max)
	}

	return nil
}

// Filter returns the readings of batch that pass v, and the errors of those that did not
func Filter(v Validator, batch plugin.Batch) (plugin.Batch, []error) {
	out := make(plugin.Batch, 0, len(batch))
	var errs []error

	for _, reading := range batch {
		if err := v.Validate(reading); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, reading)
	}

	return out, errs
}
