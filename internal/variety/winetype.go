package variety

import "strings"

// Canonical wine-type vocabulary for the final producer stream.
const (
	TypeRed       = "red"
	TypeWhite     = "white"
	TypeRose      = "rosé"
	TypeOrange    = "orange"
	TypeSparkling = "sparkling"
	TypeFortified = "fortified"
	TypeDessert   = "dessert"
	TypeFruit     = "fruit wine"
	TypeAperitif  = "apéritif"
	TypeOther     = "other"
)

// wineTypeAliases maps cleaned, lowercased raw type strings onto the
// canonical vocabulary. Raw values come out of LLM research and carry both
// French and English spellings.
var wineTypeAliases = map[string]string{
	"red":          TypeRed,
	"red wine":     TypeRed,
	"rouge":        TypeRed,
	"vin rouge":    TypeRed,
	"white":        TypeWhite,
	"white wine":   TypeWhite,
	"blanc":        TypeWhite,
	"vin blanc":    TypeWhite,
	"rosé":         TypeRose,
	"rose":         TypeRose,
	"rosé wine":    TypeRose,
	"rose wine":    TypeRose,
	"vin rosé":     TypeRose,
	"vin rose":     TypeRose,
	"orange":       TypeOrange,
	"orange wine":  TypeOrange,
	"vin orange":   TypeOrange,
	"skin contact": TypeOrange,
	"skin-contact": TypeOrange,

	"sparkling":           TypeSparkling,
	"sparkling wine":      TypeSparkling,
	"sparkling red":       TypeSparkling,
	"sparkling white":     TypeSparkling,
	"sparkling rosé":      TypeSparkling,
	"sparkling rose":      TypeSparkling,
	"bubbly":              TypeSparkling,
	"mousseux":            TypeSparkling,
	"vin mousseux":        TypeSparkling,
	"pétillant":           TypeSparkling,
	"petillant":           TypeSparkling,
	"pétillant naturel":   TypeSparkling,
	"petillant naturel":   TypeSparkling,
	"pet-nat":             TypeSparkling,
	"pet nat":             TypeSparkling,
	"pét-nat":             TypeSparkling,
	"pét nat":             TypeSparkling,
	"méthode champenoise": TypeSparkling,
	"methode champenoise": TypeSparkling,
	"méthode ancestrale":  TypeSparkling,
	"methode ancestrale":  TypeSparkling,
	"crémant":             TypeSparkling,
	"cremant":             TypeSparkling,

	"fortified":      TypeFortified,
	"fortified wine": TypeFortified,
	"vin fortifié":   TypeFortified,
	"vin fortifie":   TypeFortified,
	"vin muté":       TypeFortified,
	"vin mute":       TypeFortified,
	"port":           TypeFortified,
	"port-style":     TypeFortified,
	"porto":          TypeFortified,
	"vermouth":       TypeFortified,

	"dessert":        TypeDessert,
	"dessert wine":   TypeDessert,
	"vin de dessert": TypeDessert,
	"ice wine":       TypeDessert,
	"icewine":        TypeDessert,
	"vin de glace":   TypeDessert,
	"late harvest":   TypeDessert,
	"vendange tardive": TypeDessert,
	"vin de paille":    TypeDessert,
	"straw wine":       TypeDessert,
	"vin liquoreux":    TypeDessert,
	"sweet wine":       TypeDessert,

	"fruit":         TypeFruit,
	"fruit wine":    TypeFruit,
	"vin de fruits": TypeFruit,
	"vin de fruit":  TypeFruit,
	"apple wine":    TypeFruit,
	"vin de pomme":  TypeFruit,
	"mead":          TypeFruit,
	"hydromel":      TypeFruit,

	"apéritif":     TypeAperitif,
	"aperitif":     TypeAperitif,
	"vin apéritif": TypeAperitif,
	"vin aperitif": TypeAperitif,
}

// CleanWineType strips parenthetical qualifiers and anything after a slash,
// then trims whitespace: "Red (oaked) / reserve" becomes "Red".
func CleanWineType(raw string) string {
	s := raw
	if i := strings.IndexByte(s, '('); i >= 0 {
		j := strings.IndexByte(s[i:], ')')
		if j >= 0 {
			s = s[:i] + s[i+j+1:]
		} else {
			s = s[:i]
		}
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeWineType maps a raw wine-type string onto the canonical
// vocabulary. Empty input stays empty; anything unrecognized becomes other.
func NormalizeWineType(raw string) string {
	cleaned := strings.ToLower(CleanWineType(raw))
	if cleaned == "" {
		return ""
	}
	if canonical, ok := wineTypeAliases[cleaned]; ok {
		return canonical
	}
	return TypeOther
}
