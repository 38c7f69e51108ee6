package enums

import "fmt"

// Role is the access role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

func ParseRole(value string) (Role, error) {
	if r := Role(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", value)
}
