package report

import "strings"

// Catalog holds the product-name lists that decide which report an order
// line item belongs to. Names match as suffixes of the product name so that
// seasonal prefixes ("2024 Family Membership") still hit.
type Catalog struct {
	Memberships     []string `yaml:"memberships"`
	Moorings        []string `yaml:"moorings"`
	MooringServices []string `yaml:"mooring_services"`

	// PhotoConsent is the customization label asking for photo permission
	// and PhotoApproved the answer that grants it.
	PhotoConsent  string `yaml:"photo_consent"`
	PhotoApproved string `yaml:"photo_approved"`
}

func matchesAny(name string, list []string) bool {
	name = strings.TrimSpace(name)
	for _, candidate := range list {
		if candidate != "" && strings.HasSuffix(name, candidate) {
			return true
		}
	}
	return false
}

// IsMembership reports whether a product name is in the membership list.
func (c Catalog) IsMembership(product string) bool {
	return matchesAny(product, c.Memberships)
}

func (c Catalog) IsMooring(product string) bool {
	return matchesAny(product, c.Moorings)
}

func (c Catalog) IsMooringService(product string) bool {
	return matchesAny(product, c.MooringServices)
}
