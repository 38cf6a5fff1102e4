package upstream

import (
	"sort"
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
)

// Unknown fills attributes the upstream did not provide.
const Unknown = "Unknown"

// RawCountry is the subset of a restcountries v3.1 record that is kept.
type RawCountry struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	Capital    []string `json:"capital"`
	Currencies map[string]struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"currencies"`
	Languages map[string]string `json:"languages"`
	Flags     struct {
		PNG string `json:"png"`
		SVG string `json:"svg"`
	} `json:"flags"`
}

// DisplayName is the common name, or the official one when the common name
// is missing. Empty when the record carries neither.
func (r *RawCountry) DisplayName() string {
	if r.Name.Common != "" {
		return r.Name.Common
	}
	return r.Name.Official
}

// ToCountry flattens the record. The capital is the first listed one, the
// currency is the first by ISO code, and languages are ordered by code.
// Missing capital or currency become Unknown.
func (r *RawCountry) ToCountry(now time.Time) *model.Country {
	c := &model.Country{
		Name:      r.DisplayName(),
		Capital:   Unknown,
		Currency:  Unknown,
		Languages: []string{},
		FlagURL:   r.Flags.PNG,
		UpdatedAt: now,
	}
	if len(r.Capital) > 0 && r.Capital[0] != "" {
		c.Capital = r.Capital[0]
	}

	if codes := sortedKeys(r.Currencies); len(codes) > 0 {
		if name := r.Currencies[codes[0]].Name; name != "" {
			c.Currency = name
		}
	}

	for _, code := range sortedKeys(r.Languages) {
		if lang := r.Languages[code]; lang != "" {
			c.Languages = append(c.Languages, lang)
		}
	}

	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
