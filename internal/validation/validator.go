package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// discount definitions carry cross-field rules the tags cannot express
	v.RegisterStructValidation(upsertDiscountStructValidation, UpsertDiscountRequest{})

	return v
}

func upsertDiscountStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpsertDiscountRequest)

	switch req.Type {
	case "percentage":
		if req.Value <= 0 || req.Value > 100 {
			sl.ReportError(req.Value, "value", "Value", "percent_range", fmt.Sprintf("%.2f not in (0, 100]", req.Value))
		}
	case "fixed_amount":
		if req.Value <= 0 {
			sl.ReportError(req.Value, "value", "Value", "gt", "0")
		}
	}
	if req.MaxDiscount > 0 && req.Type != "percentage" {
		sl.ReportError(req.MaxDiscount, "max_discount", "MaxDiscount", "percentage_only", "")
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && !req.EndDate.After(req.StartDate) {
		sl.ReportError(req.EndDate, "end_date", "EndDate", "after_start", "")
	}
}
