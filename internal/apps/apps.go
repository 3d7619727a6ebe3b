// Package apps maps human-facing application names to the DPI application IDs
// the network controller understands. The table is static; unknown names are
// dropped during resolution and callers decide whether an empty result is an
// error.
package apps

import "sort"

// Catalog resolves application names to controller application IDs.
type Catalog struct {
	ids map[string]string
}

// DefaultCatalog returns the built-in application table.
func DefaultCatalog() *Catalog {
	return &Catalog{ids: map[string]string{
		"Fortnite":  "655369",
		"Roblox":    "851993",
		"YouTube":   "851969",
		"TikTok":    "852161",
		"Instagram": "655417",
		"Snapchat":  "655445",
		"Netflix":   "655366",
		"Minecraft": "852027",
		"Discord":   "852083",
		"Twitch":    "655502",
	}}
}

// ResolveIDs maps names to application IDs, silently dropping names that are
// not in the catalog. Order follows the input.
func (c *Catalog) ResolveIDs(names []string) []string {
	var ids []string
	for _, name := range names {
		if id, ok := c.ids[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Names returns every known application name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.ids))
	for name := range c.ids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
