// Package sanitize hides secret pipeline variables before they reach logs.
//
// Bitbucket marks variables secured only in repository settings; variables
// passed when starting a pipeline are echoed verbatim, so anything that
// looks like a credential is masked here.
package sanitize

import (
	"regexp"
	"sort"
	"strings"

	"bbpipe/src/bitbucket"
)

// Mask replaces the value of a secret variable.
const Mask = "****"

// secretKey matches variable names that usually hold credentials.
var secretKey = regexp.MustCompile(`(?i)(pass(word|wd)?|secret|token|api_?key|private_?key|credential|auth)`)

// IsSecret reports whether a variable named key should be masked.
func IsSecret(key string) bool {
	return secretKey.MatchString(key)
}

// Variables renders extras as "{K=V, ...}" sorted by key, masking secrets.
// Values are formatted exactly as they are sent to Bitbucket.
func Variables(extras map[string]any) string {
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		value := bitbucket.VariableValue(extras[k])
		if IsSecret(k) && value != "" {
			value = Mask
		}
		parts[i] = k + "=" + value
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
