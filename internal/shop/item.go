package shop

import (
	"fmt"
	"maps"
	"strings"
)

// Item describes the traded good: a host item type plus any
// variant data (enchantments, custom names, durability). Quantity is
// never part of the descriptor.
type Item struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`
}

func (i Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("item id is required")
	}
	return nil
}

// Name returns the custom display name if set, otherwise a readable
// form of the item id ("oak_planks" -> "oak planks").
func (i Item) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return strings.ToLower(strings.ReplaceAll(i.ID, "_", " "))
}

// Matches reports whether two descriptors refer to the same good,
// including variant data.
func (i Item) Matches(other Item) bool {
	return i.ID == other.ID &&
		i.DisplayName == other.DisplayName &&
		maps.Equal(i.Attrs, other.Attrs)
}

func (i Item) clone() Item {
	c := i
	if i.Attrs != nil {
		c.Attrs = maps.Clone(i.Attrs)
	}
	return c
}
