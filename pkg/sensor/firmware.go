package sensor

import (
	"regexp"

	"github.com/pkg/errors"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Binding associates a sensor's logical id with its read channel.
type Binding struct {
	ID      string  `yaml:"id"`
	Channel Channel `yaml:"channel"`
}

// FirmwareVersion is the sensor set of one firmware build. Binding order is
// the key order of every response produced under this version.
type FirmwareVersion struct {
	VersionID int       `yaml:"version"`
	Bindings  []Binding `yaml:"bindings"`
}

// Validate checks ids for uniqueness and wire safety.
func (v FirmwareVersion) Validate() error {
	seen := make(map[string]struct{}, len(v.Bindings))
	for i, b := range v.Bindings {
		if !idPattern.MatchString(b.ID) {
			return errors.Errorf("binding %d: invalid id %q", i, b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return errors.Errorf("binding %d: duplicate id %q", i, b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return nil
}

// IDs returns the binding ids in declared order.
func (v FirmwareVersion) IDs() []string {
	ids := make([]string, len(v.Bindings))
	for i, b := range v.Bindings {
		ids[i] = b.ID
	}
	return ids
}

func (v FirmwareVersion) clone() FirmwareVersion {
	out := FirmwareVersion{VersionID: v.VersionID, Bindings: make([]Binding, len(v.Bindings))}
	copy(out.Bindings, v.Bindings)
	return out
}

// Catalog maps the sensor names a host may ask for to their standard wiring.
var Catalog = map[string]Binding{
	"temperature": {ID: "temp", Channel: A(0)},
	"light":       {ID: "light", Channel: A(1)},
	"humidity":    {ID: "humidity", Channel: A(2)},
	"sound":       {ID: "sound", Channel: A(3)},
	"motion":      {ID: "motion", Channel: D(2)},
}

// FromCatalog builds a firmware version from catalog sensor names, in the
// order given. Repeated names are kept once.
func FromCatalog(versionID int, names ...string) (FirmwareVersion, error) {
	v := FirmwareVersion{VersionID: versionID}
	seen := map[string]bool{}
	for _, name := range names {
		b, ok := Catalog[name]
		if !ok {
			return FirmwareVersion{}, errors.Errorf("unknown sensor %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		v.Bindings = append(v.Bindings, b)
	}
	return v, nil
}
