// Package resorts holds the ski sites a search can target.
package resorts

// Resort is a ski site known to the suppliers.
type Resort struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

var all = []Resort{
	{ID: 1, Name: "Val Thorens"},
	{ID: 2, Name: "Courchevel"},
	{ID: 3, Name: "Tignes"},
	{ID: 4, Name: "La Plagne"},
	{ID: 5, Name: "Chamonix"},
}

// All returns every resort ordered by id. The returned slice is a copy.
func All() []Resort {
	out := make([]Resort, len(all))
	copy(out, all)
	return out
}

// Lookup returns the resort with the given id.
func Lookup(id int) (Resort, bool) {
	for _, r := range all {
		if r.ID == id {
			return r, true
		}
	}
	return Resort{}, false
}
