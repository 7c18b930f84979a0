package variety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanWineType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Red", "Red"},
		{"Red (oaked)", "Red"},
		{"Rouge (élevé en fût) / réserve", "Rouge"},
		{"White / Orange", "White"},
		{"  sparkling  ", "sparkling"},
		{"Dessert (late", "Dessert"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanWineType(tt.raw), tt.raw)
	}
}

func TestNormalizeWineType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Red", TypeRed},
		{"Vin rouge", TypeRed},
		{"rose", TypeRose},
		{"Vin Rosé", TypeRose},
		{"Pét-nat", TypeSparkling},
		{"pet nat", TypeSparkling},
		{"Méthode champenoise", TypeSparkling},
		{"Ice Wine", TypeDessert},
		{"Vendange tardive", TypeDessert},
		{"Vin de pomme", TypeFruit},
		{"Hydromel", TypeFruit},
		{"Port-style", TypeFortified},
		{"Skin contact", TypeOrange},
		{"Vin apéritif", TypeAperitif},
		{"Mystery cuvée", TypeOther},
		{"", ""},
		{"Red (still) / table wine", TypeRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeWineType(tt.raw), tt.raw)
	}
}
