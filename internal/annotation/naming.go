package annotation

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// NamingStrategy turns SQL field names into generated property names.
type NamingStrategy string

// Naming strategies accepted by propertyNameGenerator.
const (
	NamingLowerCamel NamingStrategy = "lowerCamelCase"
	NamingUpperCamel NamingStrategy = "upperCamelCase"
	NamingSnake      NamingStrategy = "snake_case"
	NamingPlain      NamingStrategy = "plain"
)

// ParseNamingStrategy validates a strategy name. Empty selects lowerCamelCase.
func ParseNamingStrategy(s string) (NamingStrategy, error) {
	switch NamingStrategy(s) {
	case "":
		return NamingLowerCamel, nil
	case NamingLowerCamel, NamingUpperCamel, NamingSnake, NamingPlain:
		return NamingStrategy(s), nil
	}
	return "", fmt.Errorf("unknown naming strategy %q (want lowerCamelCase, upperCamelCase, snake_case or plain)", s)
}

// Apply converts name according to the strategy.
func (n NamingStrategy) Apply(name string) string {
	if name == "" {
		return name
	}
	switch n {
	case NamingUpperCamel:
		return inflect.Camelize(name)
	case NamingSnake:
		return inflect.Underscore(name)
	case NamingPlain:
		return name
	default:
		if inflect.Camelize(name) == "" {
			return name
		}
		return inflect.CamelizeDownFirst(name)
	}
}

// PropertyName returns the generated property name of a field: an explicit
// propertyName wins over the strategy.
func PropertyName(field string, f FieldOverrides, strategy NamingStrategy) string {
	if f.PropertyName != "" {
		return f.PropertyName
	}
	return strategy.Apply(field)
}
