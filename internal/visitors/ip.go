package visitors

import (
	"net"
	"strconv"
	"strings"
)

// NetworkPrefix keeps the first three octets of an IPv4 address
// ("203.0.113.7" -> "203.0.113") and the first three groups of an IPv6
// address. Anything unparsable is returned trimmed, as-is.
func NetworkPrefix(ipAddress string) string {
	ipAddress = strings.TrimSpace(ipAddress)
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ipAddress
	}

	if v4 := ip.To4(); v4 != nil {
		return strings.Join(strings.Split(v4.String(), ".")[:3], ".")
	}

	groups := expandIPv6(ip)
	return strings.Join(groups[:3], ":")
}

// AnonymizeIP zeroes the host part of an address before it is stored:
// the last octet for IPv4, everything after the fourth group for IPv6.
func AnonymizeIP(ipAddress string) string {
	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		return ""
	}

	if v4 := ip.To4(); v4 != nil {
		return strings.Join(strings.Split(v4.String(), ".")[:3], ".") + ".0"
	}

	groups := expandIPv6(ip)
	return strings.Join(groups[:4], ":") + "::"
}

func expandIPv6(ip net.IP) []string {
	ip = ip.To16()
	groups := make([]string, 8)
	for i := range groups {
		groups[i] = strconv.FormatUint(uint64(ip[2*i])<<8|uint64(ip[2*i+1]), 16)
	}
	return groups
}
