package entity

import (
	"strings"

	"github.com/gosimple/slug"
)

// Slugify transliterates s to lowercase ASCII and joins its words with
// underscores. A name with nothing left to keep becomes "unnamed".
func Slugify(s string) string {
	words := strings.FieldsFunc(slug.Make(s), func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(words) == 0 {
		return "unnamed"
	}
	return strings.Join(words, "_")
}
