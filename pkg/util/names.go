package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var lagNameRe = regexp.MustCompile(`(?i)^(lag|po|portchannel|port-channel)?\s*(\d+)$`)

// NormalizeLAGName returns the canonical lag<N> form of a LAG identifier.
// "1", "lag1", "Po1" and "PortChannel1" all map to "lag1".
func NormalizeLAGName(name string) (string, error) {
	n, err := LAGNumber(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("lag%d", n), nil
}

// LAGNumber extracts N from any accepted LAG spelling.
func LAGNumber(name string) (int, error) {
	m := lagNameRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, NewValidationError(fmt.Sprintf("invalid LAG id %q", name))
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 || n > 9999 {
		return 0, NewValidationError(fmt.Sprintf("LAG number %q out of range (1-9999)", m[2]))
	}
	return n, nil
}

// IsLAGName reports whether name uses one of the LAG prefixes. Bare numbers
// are port names.
func IsLAGName(name string) bool {
	m := lagNameRe.FindStringSubmatch(strings.TrimSpace(name))
	return m != nil && m[1] != ""
}

// PortChannelName returns the SONiC CONFIG_DB name for a canonical LAG.
func PortChannelName(lag string) string {
	return "PortChannel" + strings.TrimPrefix(lag, "lag")
}

// VLANName returns the SONiC CONFIG_DB name for a VLAN id.
func VLANName(id int) string {
	return fmt.Sprintf("Vlan%d", id)
}

// SanitizeName makes a string safe for use as a redis key segment
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "|", "_")
	return name
}

// SplitCommaSeparated splits a comma-separated string into trimmed parts
func SplitCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

var trailingDigitsRe = regexp.MustCompile(`^(.*?)(\d+)$`)

// LessPortName orders interface names by prefix, then numerically by their
// trailing number, so "2" sorts before "10" and "Ethernet4" before "Ethernet12".
func LessPortName(a, b string) bool {
	ma := trailingDigitsRe.FindStringSubmatch(a)
	mb := trailingDigitsRe.FindStringSubmatch(b)
	if ma == nil || mb == nil || ma[1] != mb[1] {
		return a < b
	}
	na, _ := strconv.Atoi(ma[2])
	nb, _ := strconv.Atoi(mb[2])
	if na != nb {
		return na < nb
	}
	return a < b
}
