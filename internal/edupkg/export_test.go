package edupkg

// Catalog exposes the software catalog for tests.
func Catalog() map[string][]string {
	return catalog
}
