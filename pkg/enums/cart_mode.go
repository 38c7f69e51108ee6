package enums

import "fmt"

// CartMutationMode selects how a posted cart quantity is applied.
//
//	increment: existing + quantity (quantity may be negative); <= 0 deletes the line
//	set:       quantity replaces the stored value; <= 0 deletes the line
type CartMutationMode string

const (
	CartModeIncrement CartMutationMode = "increment"
	CartModeSet       CartMutationMode = "set"
)

func (m CartMutationMode) String() string {
	return string(m)
}

func (m CartMutationMode) IsValid() bool {
	return m == CartModeIncrement || m == CartModeSet
}

// ParseCartMutationMode defaults an empty value to increment.
func ParseCartMutationMode(value string) (CartMutationMode, error) {
	switch CartMutationMode(value) {
	case "":
		return CartModeIncrement, nil
	case CartModeIncrement, CartModeSet:
		return CartMutationMode(value), nil
	}
	return "", fmt.Errorf("invalid cart mode %q", value)
}
