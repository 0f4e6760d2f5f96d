package extraction

import (
	"fmt"
	"strings"
)

// Category is the expense type assigned to an invoice
type Category string

const (
	CategoryFood           Category = "food"
	CategoryFuel           Category = "fuel"
	CategoryTransport      Category = "transport"
	CategoryLodging        Category = "lodging"
	CategoryOfficeSupplies Category = "office_supplies"
	CategoryPharmacy       Category = "pharmacy"
	CategoryGroceries      Category = "groceries"
	CategoryOther          Category = "other"
)

// categoryKeywords is scanned top to bottom and the first hit wins.
// Several keywords could belong to more than one category, so the order is part of the contract.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryFood, []string{"RESTAURANTE", "ALMUERZO", "COMIDA", "CAFETERIA", "BAR", "PIZZA", "HAMBURGUESA"}},
	{CategoryFuel, []string{"GASOLINA", "ACPM", "EDS", "GL", "PETROBRAS", "TERPEL", "ESSO", "SHELL"}},
	{CategoryTransport, []string{"TAXI", "UBER", "BUS", "PEAJE", "TRANSMILENIO", "SITP", "METRO"}},
	{CategoryLodging, []string{"HOTEL", "HOSTAL", "ALOJAMIENTO", "HOSPEDAJE", "MOTEL"}},
	{CategoryOfficeSupplies, []string{"PAPELERÍA", "ÚTILES", "OFICINA", "PAPEL", "LAPIZ", "BOLIGRAFO"}},
	{CategoryPharmacy, []string{"FARMACIA", "MEDICINA", "MEDICAMENTO", "DROGUERIA"}},
	{CategoryGroceries, []string{"SUPERMERCADO", "MARKET", "TIENDA", "ALMACEN", "EXITO", "CARULLA"}},
}

// Categories returns every category in classification order, ending with CategoryOther
func Categories() []Category {
	out := make([]Category, 0, len(categoryKeywords)+1)
	for _, entry := range categoryKeywords {
		out = append(out, entry.category)
	}
	return append(out, CategoryOther)
}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	name := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Categories() {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Classify returns the first category whose keywords appear anywhere in text
func Classify(text string) Category {
	upper := strings.ToUpper(text)
	for _, entry := range categoryKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(upper, keyword) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
