package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"dtscript/internal/errors"
)

// Lookup resolves compile-time SECTION:NAME variables.
type Lookup interface {
	Lookup(section, name string) (string, bool)
}

var (
	bracedPlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*):([A-Za-z_][A-Za-z0-9_-]*)\}`)
	barePlaceholder   = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.-]*):([A-Za-z_][A-Za-z0-9_-]*)`)
)

// expandLine replaces every resolvable {SECTION:NAME} in a source line and
// leaves the rest verbatim.
func expandLine(line string, vars Lookup) string {
	if vars == nil || !strings.Contains(line, ":") {
		return line
	}
	return bracedPlaceholder.ReplaceAllStringFunc(line, func(m string) string {
		sub := bracedPlaceholder.FindStringSubmatch(m)
		if v, ok := vars.Lookup(sub[1], sub[2]); ok {
			return v
		}
		return m
	})
}

// expandIncludePath resolves braced and bare placeholders in an include path.
// Any placeholder without a configuration entry is a syntax error.
func expandIncludePath(raw, file string, line int, vars Lookup) (string, error) {
	var missing []string
	resolve := func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(m string) string {
			sub := re.FindStringSubmatch(m)
			if vars != nil {
				if v, ok := vars.Lookup(sub[1], sub[2]); ok {
					return v
				}
			}
			missing = append(missing, sub[1]+":"+sub[2])
			return m
		})
	}

	path := resolve(bracedPlaceholder, raw)
	if len(missing) == 0 {
		path = resolve(barePlaceholder, path)
	}
	if len(missing) > 0 {
		return "", errors.NewSyntaxError(
			fmt.Sprintf("unresolved include path '%s': no configuration entry for %s", raw, strings.Join(missing, ", ")),
			file, line)
	}
	return path, nil
}
