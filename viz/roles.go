// Package viz derives renderer-agnostic chart data from a session's table.
package viz

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role names columns by what they mean rather than what they are called.
type Role string

const (
	RoleDate     Role = "date"
	RoleProduct  Role = "product"
	RoleAmount   Role = "amount"
	RoleQuantity Role = "quantity"
	RoleInvoice  Role = "invoice"
)

//go:embed roles.yaml
var rolesYAML []byte

type roleCatalogue struct {
	Roles map[Role][]string `yaml:"roles"`
}

var catalogue roleCatalogue

func init() {
	if err := yaml.Unmarshal(rolesYAML, &catalogue); err != nil {
		panic("viz: invalid embedded role catalogue: " + err.Error())
	}
}

// inferRoles maps each role to the first column whose name contains one of
// the role's synonyms, case-insensitively. Synonyms are tried in catalogue
// order, columns in table order. Only the selected columns participate.
func inferRoles(columns, selected []string) map[Role]string {
	selectedSet := map[string]bool{}
	for _, col := range selected {
		selectedSet[col] = true
	}
	out := map[Role]string{}
	for role, synonyms := range catalogue.Roles {
		if col := findColumn(columns, synonyms); col != "" && selectedSet[col] {
			out[role] = col
		}
	}
	return out
}

func findColumn(columns, synonyms []string) string {
	for _, syn := range synonyms {
		for _, col := range columns {
			if strings.Contains(strings.ToLower(col), strings.ToLower(syn)) {
				return col
			}
		}
	}
	return ""
}
