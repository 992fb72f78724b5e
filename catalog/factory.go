/*
Package catalog provides the attraction catalog and location provider.

PURPOSE:
  Converts JSON attraction definitions into engine.Attraction values and
  serves them to the engine through engine.LocationProvider. Operators
  can swap the catalog by pointing CATALOG_PATH at a JSON file; the
  built-in catalog is embedded in the binary.

JSON SCHEMA:
  [
    {
      "id": "5b3c...",            // optional, derived from name when absent
      "name": "Disneyland",
      "city": "Anaheim",
      "state": "CA",
      "latitude": 33.817595,
      "longitude": -117.922008
    }
  ]

KEY FEATURES:
  - Validates names and coordinate ranges
  - Derives stable IDs from names (uuid v5) so restarts keep IDs
  - Rejects duplicate IDs, allows duplicate names (the engine
    deduplicates rewards by name)

USAGE:
  attractions, err := catalog.ParseAttractions(data)
  attractions, err := catalog.LoadFile("./attractions.json")
  attractions := catalog.DefaultAttractions()

SEE ALSO:
  - provider.go: StaticProvider (engine.LocationProvider)
  - cache.go: CachedProvider
*/
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// AttractionJSON is the JSON representation of an attraction.
type AttractionJSON struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ErrInvalidAttraction is returned for catalog entries that fail validation.
var ErrInvalidAttraction = errors.New("invalid attraction")

// idNamespace scopes name-derived attraction IDs.
var idNamespace = uuid.MustParse("6f1c2b1e-4c1a-4f44-9a53-6a2d3f0e7c11")

//go:embed attractions.json
var defaultCatalog []byte

// =============================================================================
// PARSING
// =============================================================================

// ParseAttractions parses a JSON array of attractions.
func ParseAttractions(data []byte) ([]engine.Attraction, error) {
	var entries []AttractionJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	out := make([]engine.Attraction, 0, len(entries))
	seen := make(map[uuid.UUID]string, len(entries))
	for i, aj := range entries {
		a, err := FromJSON(aj)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if prev, ok := seen[a.ID]; ok {
			return nil, fmt.Errorf("entry %d: %w: id %s already used by %q", i, ErrInvalidAttraction, a.ID, prev)
		}
		seen[a.ID] = a.Name
		out = append(out, a)
	}
	return out, nil
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) ([]engine.Attraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseAttractions(data)
}

// FromJSON validates one entry and converts it.
func FromJSON(aj AttractionJSON) (engine.Attraction, error) {
	if aj.Name == "" {
		return engine.Attraction{}, fmt.Errorf("%w: name is required", ErrInvalidAttraction)
	}
	if aj.Latitude < -90 || aj.Latitude > 90 {
		return engine.Attraction{}, fmt.Errorf("%w: %q latitude %v out of range", ErrInvalidAttraction, aj.Name, aj.Latitude)
	}
	if aj.Longitude < -180 || aj.Longitude > 180 {
		return engine.Attraction{}, fmt.Errorf("%w: %q longitude %v out of range", ErrInvalidAttraction, aj.Name, aj.Longitude)
	}

	id := AttractionID(aj.Name)
	if aj.ID != "" {
		parsed, err := uuid.Parse(aj.ID)
		if err != nil {
			return engine.Attraction{}, fmt.Errorf("%w: %q id: %v", ErrInvalidAttraction, aj.Name, err)
		}
		id = parsed
	}

	return engine.Attraction{
		ID:       id,
		Name:     aj.Name,
		City:     aj.City,
		State:    aj.State,
		Location: engine.Coordinate{Latitude: aj.Latitude, Longitude: aj.Longitude},
	}, nil
}

// ToJSON converts an attraction back to its JSON form.
func ToJSON(a engine.Attraction) AttractionJSON {
	return AttractionJSON{
		ID:        a.ID.String(),
		Name:      a.Name,
		City:      a.City,
		State:     a.State,
		Latitude:  a.Location.Latitude,
		Longitude: a.Location.Longitude,
	}
}

// AttractionID derives the stable ID used when an entry has none.
func AttractionID(name string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(name))
}

// DefaultAttractions returns the built-in catalog.
func DefaultAttractions() []engine.Attraction {
	attractions, err := ParseAttractions(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return attractions
}
