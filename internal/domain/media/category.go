package media

import "strings"

type Category string

const (
	CategoryProduct Category = "product"
	CategoryPerson  Category = "person"
	CategoryOther   Category = "other"
)

// ParseCategory validates an explicit category sent with an upload.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryProduct:
		return CategoryProduct, true
	case CategoryPerson:
		return CategoryPerson, true
	case CategoryOther:
		return CategoryOther, true
	}
	return "", false
}

// InferCategory derives a category from free-text title. Only used when an
// upload arrives without an explicit category.
func InferCategory(title string) Category {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "product"):
		return CategoryProduct
	case strings.Contains(t, "person"):
		return CategoryPerson
	default:
		return CategoryOther
	}
}

// ResolveCategory returns the explicit category when given, otherwise the
// title-derived one. ok is false for an explicit but unknown value.
func ResolveCategory(explicit, title string) (Category, bool) {
	if strings.TrimSpace(explicit) == "" {
		return InferCategory(title), true
	}
	return ParseCategory(explicit)
}
