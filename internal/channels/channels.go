package channels

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lox/drillprep/internal/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// TimeChannel is the standard name of the timestamp channel, which never
// carries a physical unit.
const TimeChannel = "TIME"

type catalogFile struct {
	Channels []models.ChannelDefinition `yaml:"channels"`
}

// Catalog is an ordered list of channel definitions. Order is the tie-break
// for aliases shared between channels.
type Catalog struct {
	channels []models.ChannelDefinition
}

func NewCatalog(defs []models.ChannelDefinition) *Catalog {
	out := make([]models.ChannelDefinition, len(defs))
	for i, d := range defs {
		out[i] = models.ChannelDefinition{
			ID:           d.ID,
			StandardName: d.StandardName,
			Aliases:      append([]string(nil), d.Aliases...),
		}
	}
	return &Catalog{channels: out}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("channels: embedded catalog: %v", err))
	}
	return c
}

// Parse reads a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, ch := range f.Channels {
		if strings.TrimSpace(ch.StandardName) == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no standard name", i)
		}
	}
	return NewCatalog(f.Channels), nil
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Marshal writes the catalog back out as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(catalogFile{Channels: c.channels})
}

func (c *Catalog) Channels() []models.ChannelDefinition {
	return NewCatalog(c.channels).channels
}

func (c *Catalog) Len() int {
	return len(c.channels)
}

// StandardNames lists every standard name in catalog order.
func (c *Catalog) StandardNames() []string {
	names := make([]string, len(c.channels))
	for i, ch := range c.channels {
		names[i] = ch.StandardName
	}
	return names
}

// Lookup returns the first channel with the given standard name.
func (c *Catalog) Lookup(standardName string) (models.ChannelDefinition, bool) {
	for _, ch := range c.channels {
		if ch.StandardName == standardName {
			return ch, true
		}
	}
	return models.ChannelDefinition{}, false
}

// Resolve maps a raw header to a standard name, or "" when nothing matches.
// An exact alias match anywhere in the catalog beats any substring match.
func (c *Catalog) Resolve(header string) string {
	h := normalize(header)
	if h == "" {
		return ""
	}

	for _, ch := range c.channels {
		for _, alias := range ch.Aliases {
			if normalize(alias) == h {
				return ch.StandardName
			}
		}
	}

	for _, ch := range c.channels {
		for _, alias := range ch.Aliases {
			a := normalize(alias)
			if a == "" {
				continue
			}
			if strings.Contains(h, a) || strings.Contains(a, h) {
				return ch.StandardName
			}
		}
	}
	return ""
}

// SharedAlias is an alias listed under more than one channel. Owners are in
// catalog order, so Owners[0] is the channel Resolve picks.
type SharedAlias struct {
	Alias  string   `json:"alias"`
	Owners []string `json:"owners"`
}

// SharedAliases reports aliases owned by several channels.
func (c *Catalog) SharedAliases() []SharedAlias {
	owners := make(map[string][]string)
	var order []string
	for _, ch := range c.channels {
		seen := make(map[string]bool)
		for _, alias := range ch.Aliases {
			a := normalize(alias)
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			if _, ok := owners[a]; !ok {
				order = append(order, a)
			}
			owners[a] = append(owners[a], ch.StandardName)
		}
	}

	var shared []SharedAlias
	for _, a := range order {
		if len(owners[a]) > 1 {
			shared = append(shared, SharedAlias{Alias: a, Owners: owners[a]})
		}
	}
	sort.SliceStable(shared, func(i, j int) bool { return shared[i].Alias < shared[j].Alias })
	return shared
}

// Search returns channels whose standard name or any alias contains term,
// case-insensitively. An empty term matches everything.
func (c *Catalog) Search(term string) []models.ChannelDefinition {
	t := normalize(term)
	var out []models.ChannelDefinition
	for _, ch := range c.channels {
		if t == "" || strings.Contains(strings.ToLower(ch.StandardName), t) || anyContains(ch.Aliases, t) {
			out = append(out, ch)
		}
	}
	return out
}

func anyContains(aliases []string, t string) bool {
	for _, a := range aliases {
		if strings.Contains(strings.ToLower(a), t) {
			return true
		}
	}
	return false
}

// ParseAliases splits a comma separated alias list, dropping blanks.
func ParseAliases(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
