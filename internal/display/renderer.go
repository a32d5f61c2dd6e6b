package display

import "github.com/pixelmine/shopd/internal/shop"

// Renderer is the host's floating-label collaborator. It is optional
// and may do network I/O; the synchronizer only calls it from the
// background pool and treats every failure as "label omitted".
// ShowItem reports whether the shop's sample-item visual should be
// rendered alongside the text.
type Renderer interface {
	Show(player string, loc shop.Location, text string, showItem bool) (handle string, err error)
	Update(handle, text string, showItem bool) error
	Hide(handle string) error
}

// Resolver substitutes host placeholders into label text per player.
// Optional; on error the unresolved text is used as-is.
type Resolver interface {
	Resolve(player, text string) (string, error)
}

// NopRenderer is the absent-collaborator stand-in: labels silently
// disappear while everything else keeps working.
type NopRenderer struct{}

func (NopRenderer) Show(string, shop.Location, string, bool) (string, error) { return "", nil }
func (NopRenderer) Update(string, string, bool) error                        { return nil }
func (NopRenderer) Hide(string) error                                        { return nil }
