package store

// Sanitize neutralizes spreadsheet formula injection by quoting a field that
// starts with = + - or @. Applying it twice is the same as applying it once.
func Sanitize(field string) string {
	if field == "" {
		return field
	}
	switch field[0] {
	case '=', '+', '-', '@':
		return "'" + field
	}
	return field
}

// SanitizeRecord returns a sanitized copy of rec.
func SanitizeRecord(rec []string) []string {
	out := make([]string, len(rec))
	for i, f := range rec {
		out[i] = Sanitize(f)
	}
	return out
}
