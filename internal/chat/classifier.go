package chat

import (
	"encoding/json"
	"strconv"
	"strings"
)

// classifierPrompt asks the model for a JSON verdict on whether the user is
// looking for vehicles, plus any filters it can extract.
const classifierPrompt = `Eres un analizador de consultas de un usuario que puede estar buscando coches
de un catálogo interno.

Tu único trabajo es decidir si la consulta del usuario está relacionada con
buscar o recomendar coches del catálogo, y extraer filtros básicos.

Debes devolver EXCLUSIVAMENTE un JSON con este formato:

{
  "wantsCars": boolean,
  "categorySlug": string | null,   // "suv", "berlina", "compacto", etc. en minúsculas
  "brand": string | null,          // marca si se menciona (ej. "Toyota")
  "fuelType": string | null,       // "gasolina", "diésel", "híbrido", "eléctrico"
  "gearbox": string | null,        // "manual" o "automático"
  "maxPrice": number | null        // precio máximo en euros
}

REGLAS IMPORTANTES:
- "wantsCars" = true SIEMPRE que el usuario hable de:
  - coche, coches, vehículo, vehiculo, auto, automóvil, automovil
  - SUV, todocamino, todoterreno, berlina, compacto, monovolumen, furgoneta
  - pedir recomendación de un coche, modelo, coche familiar, coche para ciudad, etc.
- Solo "wantsCars" = false cuando la pregunta NO tiene nada que ver con coches.

EJEMPLOS (wantsCars = true):
- "Quiero un SUV por menos de 25.000 euros" → categorySlug: "suv", maxPrice: 25000
- "Busco un coche compacto para ciudad, a buen precio" → categorySlug: "compacto"
- "¿Qué berlina eléctrica me recomiendas?" → categorySlug: "berlina", fuelType: "eléctrico"
- "Tenéis algún Toyota híbrido?" → brand: "Toyota", fuelType: "híbrido"

EJEMPLOS (wantsCars = false):
- "Explícame la diferencia entre IA generativa y un CRM"
- "¿Qué es un asistente conversacional?"

Responde SOLO con el JSON, sin texto adicional.`

const (
	classifierTemperature = 0
	classifierMaxTokens   = 300
)

// Classification is the classifier's verdict on one user turn.
type Classification struct {
	WantsCars    bool     `json:"wantsCars"`
	CategorySlug string   `json:"categorySlug,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	FuelType     string   `json:"fuelType,omitempty"`
	Gearbox      string   `json:"gearbox,omitempty"`
	MaxPrice     *float64 `json:"maxPrice,omitempty"`
}

// rawClassification tolerates the loose typing models produce: nulls,
// quoted numbers and quoted booleans.
type rawClassification struct {
	WantsCars    any     `json:"wantsCars"`
	CategorySlug *string `json:"categorySlug"`
	Brand        *string `json:"brand"`
	FuelType     *string `json:"fuelType"`
	Gearbox      *string `json:"gearbox"`
	MaxPrice     any     `json:"maxPrice"`
}

// ParseClassification extracts the verdict from raw model output. Only the
// span from the first '{' to the last '}' is parsed, so prose around the
// object is ignored. ok is false when there is no such span or it is not
// a JSON object.
func ParseClassification(raw string) (Classification, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return Classification{}, false
	}

	var rc rawClassification
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rc); err != nil {
		return Classification{}, false
	}

	return Classification{
		WantsCars:    truthy(rc.WantsCars),
		CategorySlug: strings.ToLower(trimmed(rc.CategorySlug)),
		Brand:        trimmed(rc.Brand),
		FuelType:     trimmed(rc.FuelType),
		Gearbox:      trimmed(rc.Gearbox),
		MaxPrice:     number(rc.MaxPrice),
	}, true
}

// hasSpan reports whether raw contains a brace-delimited span at all.
func hasSpan(raw string) bool {
	start := strings.Index(raw, "{")
	return start != -1 && strings.LastIndex(raw, "}") > start
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	}
	return false
}

func number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		s := strings.NewReplacer(".", "", " ", "", "€", "").Replace(strings.TrimSpace(t))
		n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if f <= 0 {
		return nil
	}
	return &f
}
