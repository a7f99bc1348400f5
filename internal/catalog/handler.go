package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	pkgcatalog "github.com/rpenyav/ia-backend/pkg/catalog"
)

// SearchResponse is the response for GET /catalog/search.
type SearchResponse struct {
	Filter   pkgcatalog.Filter    `json:"filter"`
	Count    int                  `json:"count"`
	Products []pkgcatalog.Product `json:"products"`
}

// handleSearch maps query parameters onto a Filter:
// ?category=&brand=&fuel=&gearbox=&max_price=&limit=
func (m *Module) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pkgcatalog.Filter{
		CategorySlug: q.Get("category"),
		Brand:        q.Get("brand"),
		FuelType:     q.Get("fuel"),
		Gearbox:      q.Get("gearbox"),
	}
	if raw := q.Get("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "max_price must be a positive number")
			return
		}
		f.MaxPrice = &v
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		f.Limit = n
	}

	products, err := m.store.Search(r.Context(), f)
	if err != nil {
		m.logger.Error("catalog search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog search failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(SearchResponse{Filter: f, Count: len(products), Products: products})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
