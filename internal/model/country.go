package model

import (
	"strings"
	"time"
)

// Country is the locally persisted snapshot of an upstream country lookup.
// Name is the lookup key and is matched case-insensitively.
type Country struct {
	Name      string    `json:"name"`
	Capital   string    `json:"capital"`
	Currency  string    `json:"currency"`
	Languages []string  `json:"languages"`
	FlagURL   string    `json:"flag"`
	UpdatedAt time.Time `json:"-"`
}

// NormalizeCountryName returns the case-folded lookup key for a name.
func NormalizeCountryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CountryResponse is the shape returned to API clients.
type CountryResponse struct {
	Name      string   `json:"name"`
	Capital   string   `json:"capital"`
	Currency  string   `json:"currency"`
	Languages []string `json:"languages"`
	Flag      string   `json:"flag"`
}

// ToResponse converts a Country to CountryResponse.
func (c *Country) ToResponse() CountryResponse {
	languages := c.Languages
	if languages == nil {
		languages = []string{}
	}
	return CountryResponse{
		Name:      c.Name,
		Capital:   c.Capital,
		Currency:  c.Currency,
		Languages: languages,
		Flag:      c.FlagURL,
	}
}
