package web

import (
	"net"
	"strconv"
)

// Condition is a boolean predicate over the current request, evaluated at
// dispatch time to gate rule matching. Predicates over absent data return
// false, not an error.
type Condition interface {
	Match(req *Request) (bool, error)
}

// ConditionFunc adapts a plain function to the Condition interface.
type ConditionFunc func(req *Request) (bool, error)

// Match calls fn(req).
func (fn ConditionFunc) Match(req *Request) (bool, error) {
	return fn(req)
}

type clientIPCondition struct {
	matcher Matcher
	network *net.IPNet
}

// ClientIP matches the remote peer's IP address. An exact value in CIDR
// notation matches by range membership instead of string equality.
func ClientIP(m Matcher) Condition {
	cond := &clientIPCondition{matcher: m}
	if value, ok := m.ExactValue(); ok {
		if _, network, err := net.ParseCIDR(value); err == nil {
			cond.network = network
		}
	}
	return cond
}

func (c *clientIPCondition) Match(req *Request) (bool, error) {
	ip := req.ClientIP()
	if ip == "" {
		return false, nil
	}
	if c.network != nil {
		parsed := net.ParseIP(ip)
		return parsed != nil && c.network.Contains(parsed), nil
	}
	return c.matcher.MatchValue(ip), nil
}

// ASN matches the autonomous-system number owning the client IP.
func ASN(m Matcher) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		record := req.ASN()
		if record == nil {
			return false, nil
		}
		return m.MatchValue(strconv.FormatUint(uint64(record.Number), 10)), nil
	})
}

// CountryCode matches the ISO country code of the client IP's network.
func CountryCode(m Matcher) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		record := req.ASN()
		if record == nil {
			return false, nil
		}
		return m.MatchValue(record.CountryCode), nil
	})
}

// ASNName matches the organization name of the client IP's network.
func ASNName(m Matcher) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		record := req.ASN()
		if record == nil {
			return false, nil
		}
		return m.MatchValue(record.Name), nil
	})
}

// Host matches the request's Host header.
func Host(m Matcher) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		if req.Host == "" {
			return false, nil
		}
		return m.MatchValue(req.Host), nil
	})
}

// Referer matches the Referer header.
func Referer(m Matcher) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		referer := req.Referer()
		if referer == "" {
			return false, nil
		}
		return m.MatchValue(referer), nil
	})
}

// UserAgent matches the raw User-Agent header.
func UserAgent(m Matcher) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		ua := req.UserAgent()
		if ua == "" {
			return false, nil
		}
		return m.MatchValue(ua), nil
	})
}

func userAgentField(m Matcher, field func(*UserAgentInfo) string) Condition {
	return ConditionFunc(func(req *Request) (bool, error) {
		info := req.UserAgentInfo()
		if info == nil {
			return false, nil
		}
		value := field(info)
		if value == "" {
			return false, nil
		}
		return m.MatchValue(value), nil
	})
}

// Browser matches the parsed browser name.
func Browser(m Matcher) Condition {
	return userAgentField(m, func(info *UserAgentInfo) string { return info.Name })
}

// BrowserVendor matches the vendor of the parsed browser.
func BrowserVendor(m Matcher) Condition {
	return userAgentField(m, func(info *UserAgentInfo) string { return info.Vendor })
}

// BrowserVersion matches the parsed browser version.
func BrowserVersion(m Matcher) Condition {
	return userAgentField(m, func(info *UserAgentInfo) string { return info.Version })
}

// DeviceType matches the parsed device class (mobile, tablet, desktop, bot).
func DeviceType(m Matcher) Condition {
	return userAgentField(m, func(info *UserAgentInfo) string { return string(info.Device) })
}

// OS matches the parsed operating-system name.
func OS(m Matcher) Condition {
	return userAgentField(m, func(info *UserAgentInfo) string { return info.OS })
}

// OSVersion matches the parsed operating-system version.
func OSVersion(m Matcher) Condition {
	return userAgentField(m, func(info *UserAgentInfo) string { return info.OSVersion })
}
