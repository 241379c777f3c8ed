package entity

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Scheme is the closed set of identifier namespaces the engine understands.
// Dispatch on schemes is exhaustive; an unrecognized string fails at parse
// time instead of falling through a map lookup.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeEntityID
	SchemeTaxID
	SchemeBusinessNumber
	SchemeRegistryProfile
	SchemeName
)

var schemeNames = map[Scheme]string{
	SchemeEntityID:        "entity_id",
	SchemeTaxID:           "tax_id",
	SchemeBusinessNumber:  "business_number",
	SchemeRegistryProfile: "registry_profile",
	SchemeName:            "name",
}

func (s Scheme) String() string {
	if n, ok := schemeNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseScheme maps a stored scheme string back to its Scheme.
func ParseScheme(raw string) (Scheme, error) {
	for s, n := range schemeNames {
		if n == raw {
			return s, nil
		}
	}
	return SchemeUnknown, eris.Errorf("entity: unrecognized identifier scheme %q", raw)
}

// MarshalText emits the scheme name, so JSON payloads and map keys carry
// "tax_id" rather than an enum ordinal.
func (s Scheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Recognized reports whether the scheme carries a registry-grade identifier
// usable for deterministic matching. Names are matched fuzzily, never
// deterministically.
func (s Scheme) Recognized() bool {
	switch s {
	case SchemeEntityID, SchemeTaxID, SchemeBusinessNumber, SchemeRegistryProfile:
		return true
	case SchemeName, SchemeUnknown:
		return false
	}
	return false
}

// NormalizeIdentifier canonicalizes an identifier value for comparison and
// storage: separators and whitespace stripped, case folded.
func (s Scheme) NormalizeIdentifier(value string) string {
	v := strings.TrimSpace(value)
	switch s {
	case SchemeTaxID, SchemeBusinessNumber, SchemeRegistryProfile:
		v = strings.NewReplacer("-", "", " ", "", ".", "", "/", "").Replace(v)
		return strings.ToUpper(v)
	case SchemeEntityID:
		return strings.ToLower(v)
	case SchemeName:
		return strings.ToUpper(strings.Join(strings.Fields(v), " "))
	case SchemeUnknown:
		return v
	}
	return v
}
