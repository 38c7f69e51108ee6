// Package contracts holds the request and response schema of every storefront
// endpoint. Both the API server and pkg/apiclient validate against these types,
// so a payload either maps onto a typed value completely or is rejected.
package contracts

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "order_status", func(fl validator.FieldLevel) bool {
		return enums.OrderStatus(fl.Field().String()).IsValid()
	})
	mustRegister(v, "payment_status", func(fl validator.FieldLevel) bool {
		return enums.PaymentStatus(fl.Field().String()).IsValid()
	})
	mustRegister(v, "payment_method", func(fl validator.FieldLevel) bool {
		return enums.PaymentMethod(fl.Field().String()).IsValid()
	})
	mustRegister(v, "transaction_type", func(fl validator.FieldLevel) bool {
		return enums.TransactionType(fl.Field().String()).IsValid()
	})
	mustRegister(v, "transaction_status", func(fl validator.FieldLevel) bool {
		return enums.TransactionStatus(fl.Field().String()).IsValid()
	})
	mustRegister(v, "return_status", func(fl validator.FieldLevel) bool {
		return enums.ReturnStatus(fl.Field().String()).IsValid()
	})
	v.RegisterStructValidation(orderTotalsValidation, Order{})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func orderTotalsValidation(sl validator.StructLevel) {
	order := sl.Current().Interface().(Order)
	if order.TotalCents != order.SubtotalCents+order.TaxCents+order.ShippingFeeCents {
		sl.ReportError(order.TotalCents, "totalAmountCents", "TotalCents", "order_total", "")
	}
}

// Validate runs struct validation and returns a CodeValidation error whose
// details map json field paths to messages.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldPath(fieldErr)] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "order_total":
		return "must equal subtotal + tax + shipping"
	case "order_status", "payment_status", "payment_method", "transaction_type", "transaction_status", "return_status":
		return "is not a known value"
	}
	return "is invalid"
}
