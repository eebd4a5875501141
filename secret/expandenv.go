package secret

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// ExpandEnvStrict expands environment references in s:
//
//	${VAR}          the value of VAR; an error if VAR is unset
//	${VAR:-default} the value of VAR, or default when VAR is unset or empty
//	$VAR            the value of VAR, empty when unset
//	$$              a literal $
//
// Every unset ${VAR} is reported in one ErrMissingEnv error.
func ExpandEnvStrict(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	out := os.Expand(s, func(ref string) string {
		if ref == "$" {
			return "$"
		}
		name, def, hasDefault := strings.Cut(ref, ":-")
		v, ok := os.LookupEnv(name)
		switch {
		case hasDefault && v == "":
			return def
		case !ok && !hasDefault && isBraced(s, ref):
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
		}
		return v
	})

	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return out, nil
}

// isBraced reports whether ref appears in s as ${ref}.
func isBraced(s, ref string) bool {
	return strings.Contains(s, "${"+ref+"}")
}
