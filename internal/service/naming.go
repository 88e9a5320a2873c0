package service

import "strings"

// subjectCode derives the subject natural key from a course shortname:
// everything before the first separator, e.g. "FBTI01-2526-1" -> "FBTI01".
func subjectCode(shortName string) string {
	trimmed := strings.TrimSpace(shortName)
	if trimmed == "" {
		return "NO_CODE"
	}
	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	if len(fields) == 0 {
		return "NO_CODE"
	}
	return fields[0]
}

// subjectName strips the instructor suffix some course names carry, e.g.
// "Ciudadania - D. Leal" -> "Ciudadania".
func subjectName(fullName string) string {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return "UNNAMED"
	}
	name, _, _ := strings.Cut(trimmed, "-")
	return strings.TrimSpace(name)
}

// department extracts the department level from a category path like
// "Pregrado/Ingenieria/Sistemas": the second segment.
func department(categoryPath string) string {
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(categoryPath, "/") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) < 2 {
		return "OTHER"
	}
	return parts[1]
}
