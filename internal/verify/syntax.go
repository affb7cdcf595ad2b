package verify

import (
	"regexp"
	"strings"
)

// emailPattern accepts the practical shape of an address: one @, a non-empty
// local part without whitespace, and a domain with at least one dot.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// splitAddress returns the lowercase local part and domain of a
// syntactically valid address, or ok=false.
func splitAddress(email string) (local, domain string, ok bool) {
	if !emailPattern.MatchString(email) {
		return "", "", false
	}
	at := strings.LastIndex(email, "@")
	return strings.ToLower(email[:at]), strings.ToLower(email[at+1:]), true
}
