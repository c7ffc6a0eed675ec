package recipe

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Catalog errors.
var (
	ErrRecipeNotFound  = errors.New("recipe not found")
	ErrDuplicateRecipe = errors.New("duplicate recipe id")
	ErrInvalidRecipe   = errors.New("invalid recipe")
)

var amountPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Recipe is one catalog entry. Ingredients are free text such as "200 g flour".
type Recipe struct {
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	Servings    int      `toml:"servings"`
	Ingredients []string `toml:"ingredients"`
}

// ScaledIngredients returns the ingredients with every number multiplied by
// servings/r.Servings. Whole results are printed as integers, others with one
// decimal. The ingredients are returned unchanged when either serving count
// is not positive or they are equal.
func (r Recipe) ScaledIngredients(servings int) []string {
	out := make([]string, len(r.Ingredients))
	copy(out, r.Ingredients)
	if servings <= 0 || r.Servings <= 0 || servings == r.Servings {
		return out
	}

	for i, ingredient := range out {
		out[i] = amountPattern.ReplaceAllStringFunc(ingredient, func(match string) string {
			n, err := strconv.ParseFloat(match, 64)
			if err != nil {
				return match
			}
			return formatAmount(n * float64(servings) / float64(r.Servings))
		})
	}
	return out
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func (r Recipe) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecipe)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: %s: missing name", ErrInvalidRecipe, r.ID)
	}
	if r.Servings < 0 {
		return fmt.Errorf("%w: %s: negative servings", ErrInvalidRecipe, r.ID)
	}
	return nil
}

type catalogFile struct {
	Recipes []Recipe `toml:"recipe"`
}

// Catalog is an immutable set of recipes keyed by ID.
type Catalog struct {
	recipes map[string]Recipe
}

// LoadCatalog reads a TOML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a TOML catalog made of [[recipe]] tables.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode recipe catalog: %w", err)
	}

	c := &Catalog{recipes: make(map[string]Recipe, len(file.Recipes))}
	for _, r := range file.Recipes {
		r.ID = strings.TrimSpace(r.ID)
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.recipes[r.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecipe, r.ID)
		}
		c.recipes[r.ID] = r
	}
	return c, nil
}

// Get returns the recipe with the given ID.
func (c *Catalog) Get(id string) (Recipe, error) {
	r, ok := c.recipes[strings.TrimSpace(id)]
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %s", ErrRecipeNotFound, id)
	}
	return r, nil
}

// All returns every recipe sorted by name.
func (c *Catalog) All() []Recipe {
	out := make([]Recipe, 0, len(c.recipes))
	for _, r := range c.recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
