package chat

import (
	"regexp"
	"strings"

	"github.com/rpenyav/ia-backend/pkg/catalog"
)

var carWords = regexp.MustCompile(`coche|coches|vehiculo|vehículo|auto|automovil|automóvil|suv|berlina|compacto|todoterreno|todocamino`)

// LooksLikeCarQuery reports whether text mentions any vehicle trigger word.
// Matching is by substring on the lower-cased text.
func LooksLikeCarQuery(text string) bool {
	return carWords.MatchString(strings.ToLower(text))
}

// heuristicCategories are checked in order; the first hit wins.
var heuristicCategories = []string{"suv", "berlina", "compacto"}

// HeuristicFilter derives a filter from keywords alone.
func HeuristicFilter(text string) catalog.Filter {
	lower := strings.ToLower(text)
	var f catalog.Filter
	for _, slug := range heuristicCategories {
		if strings.Contains(lower, slug) {
			f.CategorySlug = slug
			break
		}
	}
	return f
}

// MergeFilters combines classifier output with heuristic filters. Each
// field the classifier filled takes precedence; empty ones fall back to
// the heuristic. cls may be nil when classification failed.
func MergeFilters(cls *Classification, heuristic catalog.Filter, limit int) catalog.Filter {
	f := heuristic
	f.Limit = limit
	if cls == nil {
		return f
	}
	if cls.CategorySlug != "" {
		f.CategorySlug = cls.CategorySlug
	}
	if cls.Brand != "" {
		f.Brand = cls.Brand
	}
	if cls.FuelType != "" {
		f.FuelType = cls.FuelType
	}
	if cls.Gearbox != "" {
		f.Gearbox = cls.Gearbox
	}
	if cls.MaxPrice != nil && *cls.MaxPrice > 0 {
		price := *cls.MaxPrice
		f.MaxPrice = &price
	}
	return f
}
