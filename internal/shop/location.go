package shop

import (
	"fmt"
	"strconv"
	"strings"
)

// Location identifies the container block a shop is bound to.
// It is comparable and used as the registry's primary key.
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

// String returns the serialized form "world,x,y,z".
func (l Location) String() string {
	return fmt.Sprintf("%s,%d,%d,%d", l.World, l.X, l.Y, l.Z)
}

// Key returns the storage identifier for this location. Commas are not
// valid in store identifiers, so they are replaced with underscores.
func (l Location) Key() string {
	return strings.ReplaceAll(l.String(), ",", "_")
}

func (l Location) Validate() error {
	if l.World == "" {
		return fmt.Errorf("location world is required")
	}
	return nil
}

// MarshalText serializes the location as "world,x,y,z" for JSON use.
func (l Location) MarshalText() ([]byte, error) {
	if l.World == "" {
		return nil, fmt.Errorf("cannot serialize location with empty world")
	}
	return []byte(l.String()), nil
}

func (l *Location) UnmarshalText(text []byte) error {
	loc, err := ParseLocation(string(text))
	if err != nil {
		return err
	}
	*l = loc
	return nil
}

// ParseLocation parses the "world,x,y,z" form produced by String.
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Location{}, fmt.Errorf("invalid location %q: expected world,x,y,z", s)
	}
	if parts[0] == "" {
		return Location{}, fmt.Errorf("invalid location %q: empty world", s)
	}

	coords := make([]int, 3)
	for i, p := range parts[1:] {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Location{}, fmt.Errorf("invalid location %q: parsing coordinate %q: %w", s, p, err)
		}
		coords[i] = n
	}

	return Location{
		World: parts[0],
		X:     coords[0],
		Y:     coords[1],
		Z:     coords[2],
	}, nil
}
