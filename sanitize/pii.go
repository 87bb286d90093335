package sanitize

import (
	"regexp"
	"strings"
)

// maskedFieldNames are field names whose values are always replaced in
// masked output, compared case-insensitively with separators removed.
var maskedFieldNames = map[string]bool{
	"ssn":                  true,
	"socialsecuritynumber": true,
	"birthdate":            true,
	"dateofbirth":          true,
	"dob":                  true,
	"email":                true,
	"emailaddress":         true,
	"phone":                true,
	"phonenumber":          true,
	"telephone":            true,
	"firstname":            true,
	"lastname":             true,
	"lastorsurname":        true,
	"middlename":           true,
}

var (
	ssnPattern   = regexp.MustCompile(`\d{3}-\d{2}-\d{4}`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// MaskRecord returns a copy of record with PII values replaced. Values
// under well-known PII field names become "***"; SSN and email patterns
// embedded in any string value are replaced with a redaction label.
// Nested maps and slices are walked recursively. The input is not
// modified.
func MaskRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}

	out := make(map[string]any, len(record))

	for k, v := range record {
		if IsPIIField(k) {
			out[k] = "***"

			continue
		}

		out[k] = maskValue(v)
	}

	return out
}

// IsPIIField reports whether a field name is in the masked-field set.
// Comparison is case-insensitive and ignores "_", "-", and " ".
func IsPIIField(name string) bool {
	normalized := strings.ToLower(name)
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)

	return maskedFieldNames[normalized]
}

// MaskString replaces SSN and email patterns in s with redaction labels.
func MaskString(s string) string {
	s = ssnPattern.ReplaceAllString(s, "<redacted:ssn>")

	return emailPattern.ReplaceAllString(s, "<redacted:email>")
}

func maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return MaskString(val)

	case map[string]any:
		return MaskRecord(val)

	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskValue(item)
		}

		return out

	default:
		return v
	}
}
