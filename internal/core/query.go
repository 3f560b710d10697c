package core

// query.go filters and summarizes the loaded record set for the dashboard.
// All functions are pure and keep the input order.

import (
	"sort"
	"strings"
)

// StatusFilter restricts records by their derived active flag.
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusActive   StatusFilter = "active"
	StatusInactive StatusFilter = "inactive"
)

// ParseStatusFilter maps a query value to a StatusFilter; unknown values mean all.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive
	case StatusInactive:
		return StatusInactive
	default:
		return StatusAll
	}
}

// Filter holds every dashboard filter. Conditions are combined with AND and
// empty values are ignored.
type Filter struct {
	Search    string
	Status    StatusFilter
	City      string // exact match on cidade
	Structure string // exact match on CodigoEstrutura
}

// IsZero reports whether the filter lets every record through.
func (f Filter) IsZero() bool {
	return f.Search == "" && (f.Status == "" || f.Status == StatusAll) && f.City == "" && f.Structure == ""
}

// searchFields are the canonical fields matched by free-text search.
var searchFields = []string{
	FieldNome,
	FieldCodigoRevendedor,
	FieldCPFCNPJ,
	FieldTelCelular,
	FieldTelResidencial,
	FieldCidade,
	FieldCodigoEstrutura,
}

// ApplyFilter returns the records matching f, in their original order.
func ApplyFilter(records []Reseller, f Filter) []Reseller {
	search := NormalizeSearch(f.Search)

	out := make([]Reseller, 0, len(records))
	for _, r := range records {
		if f.Status == StatusActive && !r.IsActive {
			continue
		}
		if f.Status == StatusInactive && r.IsActive {
			continue
		}
		if f.City != "" && r.Cidade != f.City {
			continue
		}
		if f.Structure != "" && r.CodigoEstrutura != f.Structure {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r Reseller, normalized string) bool {
	for _, field := range searchFields {
		if strings.Contains(NormalizeSearch(r.Value(field)), normalized) {
			return true
		}
	}
	return false
}

// CityCount is one entry of the top-cities ranking.
type CityCount struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// Stats summarizes a record set.
type Stats struct {
	Total     int         `json:"total"`
	Active    int         `json:"active"`
	Inactive  int         `json:"inactive"`
	TopCities []CityCount `json:"topCities"`
}

// TopCitiesLimit is the number of cities reported in Stats.
const TopCitiesLimit = 3

// ComputeStats counts active and inactive records and ranks cities by record
// count. Ties keep the order in which the cities first appear; blank city
// names are not counted.
func ComputeStats(records []Reseller) Stats {
	stats := Stats{Total: len(records), TopCities: []CityCount{}}

	index := make(map[string]int)
	var cities []CityCount
	for _, r := range records {
		if r.IsActive {
			stats.Active++
		}
		if strings.TrimSpace(r.Cidade) == "" {
			continue
		}
		if i, ok := index[r.Cidade]; ok {
			cities[i].Count++
			continue
		}
		index[r.Cidade] = len(cities)
		cities = append(cities, CityCount{City: r.Cidade, Count: 1})
	}
	stats.Inactive = stats.Total - stats.Active

	sort.SliceStable(cities, func(i, j int) bool {
		return cities[i].Count > cities[j].Count
	})
	if len(cities) > TopCitiesLimit {
		cities = cities[:TopCitiesLimit]
	}
	stats.TopCities = append(stats.TopCities, cities...)
	return stats
}

// UniqueCities returns the distinct non-blank cities, sorted.
func UniqueCities(records []Reseller) []string {
	return uniqueSorted(records, func(r Reseller) string { return r.Cidade })
}

// UniqueStructures returns the distinct non-blank structure codes, sorted.
func UniqueStructures(records []Reseller) []string {
	return uniqueSorted(records, func(r Reseller) string { return r.CodigoEstrutura })
}

func uniqueSorted(records []Reseller, value func(Reseller) string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range records {
		v := value(r)
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
