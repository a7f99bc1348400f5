// Package catalog defines the vehicle catalog consumed by the chat's
// catalog branch, plus a bundled seed for development installs.
package catalog

// Category groups vehicles ("suv", "berlina", "compacto", ...).
type Category struct {
	Slug string `yaml:"slug" json:"slug"`
	Name string `yaml:"name" json:"name"`
}

// Product is one vehicle listing.
type Product struct {
	ID           string   `yaml:"id" json:"id"`
	Slug         string   `yaml:"slug" json:"slug"`
	Name         string   `yaml:"name" json:"name"`
	Brand        string   `yaml:"brand" json:"brand"`
	Model        string   `yaml:"model" json:"model"`
	Year         int      `yaml:"year" json:"year"`
	Price        float64  `yaml:"price" json:"price"`
	Mileage      int      `yaml:"mileage" json:"mileage"`
	CategorySlug string   `yaml:"category" json:"categorySlug"`
	CategoryName string   `yaml:"-" json:"category"`
	FuelType     string   `yaml:"fuel_type" json:"fuelType"`
	Gearbox      string   `yaml:"gearbox" json:"gearbox"`
	Seats        int      `yaml:"seats" json:"seats"`
	Doors        int      `yaml:"doors" json:"doors"`
	Color        string   `yaml:"color" json:"color,omitempty"`
	Description  string   `yaml:"description" json:"description,omitempty"`
	ImageURL     string   `yaml:"image_url" json:"imageUrl,omitempty"`
	Images       []string `yaml:"images" json:"images,omitempty"`
	Link         string   `yaml:"link" json:"link,omitempty"`
	Active       bool     `yaml:"active" json:"active"`
}

// MainImage is the image shown for the product: the last entry of Images,
// falling back to ImageURL. Empty when neither is set.
func (p Product) MainImage() string {
	if n := len(p.Images); n > 0 {
		return p.Images[n-1]
	}
	return p.ImageURL
}

// Filter narrows a catalog search. Zero values are ignored.
type Filter struct {
	CategorySlug string   `json:"categorySlug,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	FuelType     string   `json:"fuelType,omitempty"`
	Gearbox      string   `json:"gearbox,omitempty"`
	MaxPrice     *float64 `json:"maxPrice,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// DefaultSearchLimit bounds results when Filter.Limit is unset.
const DefaultSearchLimit = 5
