package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpenyav/ia-backend/internal/ingest"
	"github.com/rpenyav/ia-backend/pkg/catalog"
	"github.com/rpenyav/ia-backend/pkg/llm"
)

// chatProduct is the shape of a catalog entry shown to the model.
type chatProduct struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Price        float64 `json:"price"`
	Mileage      int     `json:"mileage"`
	Category     string  `json:"category,omitempty"`
	CategorySlug string  `json:"categorySlug,omitempty"`
	FuelType     string  `json:"fuelType,omitempty"`
	Gearbox      string  `json:"gearbox,omitempty"`
	Seats        int     `json:"seats,omitempty"`
	Doors        int     `json:"doors,omitempty"`
	Color        string  `json:"color,omitempty"`
	Description  string  `json:"description,omitempty"`
	MainImage    string  `json:"mainImage,omitempty"`
	Link         string  `json:"link,omitempty"`
}

func toChatProducts(products []catalog.Product) []chatProduct {
	out := make([]chatProduct, len(products))
	for i, p := range products {
		out[i] = chatProduct{
			ID:           p.ID,
			Name:         p.Name,
			Brand:        p.Brand,
			Model:        p.Model,
			Year:         p.Year,
			Price:        p.Price,
			Mileage:      p.Mileage,
			Category:     p.CategoryName,
			CategorySlug: p.CategorySlug,
			FuelType:     p.FuelType,
			Gearbox:      p.Gearbox,
			Seats:        p.Seats,
			Doors:        p.Doors,
			Color:        p.Color,
			Description:  p.Description,
			MainImage:    p.MainImage(),
			Link:         p.Link,
		}
	}
	return out
}

// Card statuses.
const (
	CardMatch   = "match"
	CardNoMatch = "no_match"
)

// NoMatchMessage is the card message used when the search found nothing.
const NoMatchMessage = "Ahora mismo no hay coches en nuestro catálogo que cumplan exactamente tus filtros. " +
	"Prueba a relajar los filtros: amplía el presupuesto, elige otra categoría o cambia el combustible o el cambio."

// Card is the structured block that closes every catalog answer. It
// features at most one product; Link is omitted when the product has none.
type Card struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Product *CardProduct `json:"product,omitempty"`
}

// CardProduct is the featured product of a Card.
type CardProduct struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Model    string  `json:"model"`
	Year     int     `json:"year"`
	Price    float64 `json:"price"`
	FuelType string  `json:"fuelType,omitempty"`
	Gearbox  string  `json:"gearbox,omitempty"`
	Image    string  `json:"image,omitempty"`
	Link     string  `json:"link,omitempty"`
}

// FeaturedCard builds the card for a result set: the first product when
// there is one, an explicit no-match card otherwise.
func FeaturedCard(products []catalog.Product) Card {
	if len(products) == 0 {
		return Card{Status: CardNoMatch, Message: NoMatchMessage}
	}
	p := products[0]
	return Card{
		Status: CardMatch,
		Product: &CardProduct{
			ID:       p.ID,
			Name:     p.Name,
			Brand:    p.Brand,
			Model:    p.Model,
			Year:     p.Year,
			Price:    p.Price,
			FuelType: p.FuelType,
			Gearbox:  p.Gearbox,
			Image:    p.MainImage(),
			Link:     p.Link,
		},
	}
}

// CardFence opens the fenced block the card is written in.
const CardFence = "```ficha"

const catalogInstructions = `INSTRUCCIONES ESPECÍFICAS PARA CONSULTAS DE COCHES:
- Dispones de un catálogo interno de coches proporcionado en formato JSON en el mensaje del usuario.
- Esos datos (modelos, precios, combustible, categoría...) proceden de la base de datos del cliente y SON FIABLES.
- Debes basar tus recomendaciones EXCLUSIVAMENTE en ese JSON.
- Cada coche tiene un campo 'mainImage' que ya contiene la URL de UNA sola imagen para mostrar al usuario.
- Cuando recomiendes coches, deja claro que forman parte de NUESTRO CATÁLOGO, usando expresiones como
  "de nuestro catálogo de SUV", "de nuestro catálogo de vehículos" o similares.
- Siempre que tenga sentido, puedes empezar la respuesta con una frase del estilo:
  "Te recomiendo X opciones de nuestro catálogo de SUV que se ajustan a tu presupuesto de Y euros:".
- Si el listado NO está vacío, está TERMINANTEMENTE PROHIBIDO decir frases como
  "no tengo acceso a información actualizada" o similares. En su lugar, recomienda modelos concretos del catálogo.
- Si el listado está vacío, explícale al usuario que ahora mismo no hay coches que cumplan sus filtros y sugiérele cambios razonables (más presupuesto, otra categoría, etc.).
- Para mostrar la imagen de un coche, usa la sintaxis Markdown: ` + "`![Nombre del coche](URL_DE_mainImage)`" + `.
- Si un coche no tiene campo 'link', NO escribas ningún enlace para él: ni vacío ni inventado.
- Termina SIEMPRE la respuesta con la FICHA que se te entrega, copiada literalmente dentro de un bloque ` + "```ficha" + `.
  Solo hay una ficha por respuesta; el resto de coches solo pueden mencionarse en el texto.`

// BuildCatalogPrompt builds the messages for the catalog branch. The
// result set is embedded as authoritative JSON, followed by the card the
// model must reproduce.
func BuildCatalogPrompt(system, userText string, products []catalog.Product) []llm.Message {
	list, _ := json.MarshalIndent(toChatProducts(products), "", "  ")
	card, _ := json.Marshal(FeaturedCard(products))

	var b strings.Builder
	b.WriteString("Pregunta del usuario:\n")
	b.WriteString(userText)
	b.WriteString("\n\nA continuación tienes la lista de coches del CATÁLOGO INTERNO que cumplen (o casi cumplen) los filtros del usuario, en formato JSON.\n")
	b.WriteString("Cada coche incluye un campo 'mainImage' con UNA sola URL lista para usar en la respuesta:\n")
	b.Write(list)
	b.WriteString("\n\n")
	if len(products) == 0 {
		b.WriteString("La lista está vacía ([]): dile al usuario que no hay coches que cumplan exactamente sus filtros y sugiérele ajustes.\n")
	} else {
		b.WriteString("La lista NO está vacía: DEBES recomendar modelos concretos de esta lista (menciona marca, modelo, precio, tipo de combustible y usa 'mainImage' para mostrar una imagen en Markdown).\n")
	}
	b.WriteString("\nFICHA (cópiala literalmente al final de tu respuesta):\n")
	b.WriteString(CardFence)
	b.WriteString("\n")
	b.Write(card)
	b.WriteString("\n```")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system + "\n\n" + catalogInstructions},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// BuildPlainPrompt builds the messages for a turn that needs no catalog.
// A non-empty debug note is appended to the system prompt for operators
// tracing classification.
func BuildPlainPrompt(system, userText, debug string) []llm.Message {
	if debug != "" {
		system += "\n\n[DEBUG INTERNO - CATALOGO COCHES]\n" + debug +
			"\n\nNO menciones esta sección DEBUG al usuario final. Solo úsala para entender el contexto."
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: userText},
	}
}

// EnrichWithDocuments folds extracted attachment text into the system prompt.
func EnrichWithDocuments(system string, docs []ingest.Document) string {
	if len(docs) == 0 {
		return system
	}
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n---\n")
	b.WriteString("El usuario ha adjuntado uno o varios documentos (PDF/DOCX/CSV). ")
	b.WriteString("A continuación tienes el texto extraído para que lo uses al responder:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n\n=== Contenido del %s: %s ===\n%s", d.Kind.Label(), d.Name, d.Text)
	}
	return b.String()
}
