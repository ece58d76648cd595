package types

import "fmt"

// Op is a filter comparison operator.
type Op string

// Filter operators.
const (
	// OpEq matches records whose field equals Value.
	OpEq Op = "eq"
	// OpIn matches records whose field equals any element of Value ([]any).
	OpIn Op = "in"
	// OpBetween matches the half-open range [Value, Upper).
	OpBetween Op = "between"
	// OpBelow matches records whose field is strictly less than Value.
	OpBelow Op = "below"
	// OpAtLeast matches records whose field is greater than or equal to Value.
	OpAtLeast Op = "at_least"
)

// Filter is one condition on a single indexed field. Compound-index lookups
// are expressed as several OpEq filters.
type Filter struct {
	Field string
	Op    Op
	Value any
	Upper any
}

// Query selects records from a Table. The zero Query returns every record
// in surrogate-ID order.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Eq returns an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// In returns a membership filter.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Between returns a half-open range filter [lower, upper).
func Between(field string, lower, upper any) Filter {
	return Filter{Field: field, Op: OpBetween, Value: lower, Upper: upper}
}

// Below returns a strict upper-bound filter.
func Below(field string, value any) Filter {
	return Filter{Field: field, Op: OpBelow, Value: value}
}

// AtLeast returns an inclusive lower-bound filter.
func AtLeast(field string, value any) Filter {
	return Filter{Field: field, Op: OpAtLeast, Value: value}
}

// Validate checks that the filter is structurally usable. Field names are
// checked by the table that receives it.
func (f Filter) Validate() error {
	if f.Field == "" {
		return fmt.Errorf("%w: empty field", ErrInvalidFilter)
	}
	switch f.Op {
	case OpEq, OpBelow, OpAtLeast:
		if f.Value == nil {
			return fmt.Errorf("%w: %s %s needs a value", ErrInvalidFilter, f.Field, f.Op)
		}
	case OpIn:
		if _, ok := f.Value.([]any); !ok {
			return fmt.Errorf("%w: %s in needs a list", ErrInvalidFilter, f.Field)
		}
	case OpBetween:
		if f.Value == nil || f.Upper == nil {
			return fmt.Errorf("%w: %s between needs both bounds", ErrInvalidFilter, f.Field)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
	}
	return nil
}
