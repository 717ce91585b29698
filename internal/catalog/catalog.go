// Package catalog is the read-only list of countries and subdivisions a
// member can pick from.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var countriesYAML []byte

type Subdivision struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type Country struct {
	Code         string        `yaml:"code"`
	Name         string        `yaml:"name"`
	Subdivisions []Subdivision `yaml:"subdivisions,omitempty"`
}

// Catalog indexes countries by code and by the first letter of their name.
type Catalog struct {
	countries []Country
	byCode    map[string]int
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(countriesYAML)
}

// Parse builds a catalog from YAML. Codes must be unique; countries and
// subdivisions are sorted by name.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Countries []Country `yaml:"countries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse country catalog: %w", err)
	}

	c := &Catalog{
		countries: doc.Countries,
		byCode:    make(map[string]int, len(doc.Countries)),
	}
	sort.Slice(c.countries, func(i, j int) bool { return c.countries[i].Name < c.countries[j].Name })

	for i := range c.countries {
		country := &c.countries[i]
		if country.Code == "" || country.Name == "" {
			return nil, fmt.Errorf("country catalog: entry %d needs a code and a name", i)
		}
		if _, dup := c.byCode[country.Code]; dup {
			return nil, fmt.Errorf("country catalog: duplicate code %q", country.Code)
		}
		c.byCode[country.Code] = i

		seen := make(map[string]bool, len(country.Subdivisions))
		for _, s := range country.Subdivisions {
			if !strings.HasPrefix(s.Code, country.Code+"-") {
				return nil, fmt.Errorf("country catalog: subdivision %q does not belong to %s", s.Code, country.Code)
			}
			if seen[s.Code] {
				return nil, fmt.Errorf("country catalog: duplicate subdivision %q", s.Code)
			}
			seen[s.Code] = true
		}
		sort.Slice(country.Subdivisions, func(a, b int) bool {
			return country.Subdivisions[a].Name < country.Subdivisions[b].Name
		})
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.countries) }

// Country looks up a country by its ISO 3166-1 code.
func (c *Catalog) Country(code string) (Country, bool) {
	i, ok := c.byCode[strings.ToUpper(code)]
	if !ok {
		return Country{}, false
	}
	return c.countries[i], true
}

// Subdivision looks up a subdivision by its ISO 3166-2 code.
func (c *Catalog) Subdivision(countryCode, code string) (Subdivision, bool) {
	country, ok := c.Country(countryCode)
	if !ok {
		return Subdivision{}, false
	}
	for _, s := range country.Subdivisions {
		if s.Code == code {
			return s, true
		}
	}
	return Subdivision{}, false
}

// StartingWith returns the countries whose name starts with letter.
func (c *Catalog) StartingWith(letter string) []Country {
	letter = strings.ToUpper(letter)
	var out []Country
	for _, country := range c.countries {
		if strings.HasPrefix(strings.ToUpper(country.Name), letter) {
			out = append(out, country)
		}
	}
	return out
}

// Letters returns the distinct first letters of country names in order.
func (c *Catalog) Letters() []string {
	var letters []string
	for _, country := range c.countries {
		l := strings.ToUpper(country.Name[:1])
		if len(letters) == 0 || letters[len(letters)-1] != l {
			letters = append(letters, l)
		}
	}
	return letters
}
