package dispatcher

import "github.com/google/uuid"

// newID generates a prefixed random id for entities the server itself
// creates (scenes, projects, scene objects, action points...).
func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}
