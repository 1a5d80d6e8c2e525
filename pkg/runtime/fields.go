// edgewall/pkg/runtime/fields.go

package runtime

import (
	"strings"

	"edgewall/pkg/compiler"
)

// Field name prefixes for dynamic lookups.
const (
	headerFieldPrefix = "header:"
	varFieldPrefix    = "var:"
)

// Extract maps a field name to its value in the request context.
// Unknown or absent fields yield a none value, which every operator
// treats as a non-match except exists/notExists.
func Extract(rc *RequestContext, field string) compiler.Value {
	switch {
	case strings.HasPrefix(field, headerFieldPrefix):
		if v, ok := rc.Header(field[len(headerFieldPrefix):]); ok {
			return compiler.StringValue(v)
		}
		return compiler.NoValue()
	case strings.HasPrefix(field, varFieldPrefix):
		if v, ok := rc.Vars[field[len(varFieldPrefix):]]; ok {
			return compiler.StringValue(v)
		}
		return compiler.NoValue()
	}

	switch field {
	// Request basics
	case "path":
		return compiler.StringValue(rc.Path)
	case "query":
		return compiler.StringValue(rc.Query)
	case "method":
		return compiler.StringValue(rc.Method)
	case "host":
		return compiler.StringValue(rc.Host)
	case "scheme":
		return compiler.StringValue(rc.Scheme)

	// Connection
	case "clientIp":
		if rc.ClientIP.IsValid() {
			return compiler.StringValue(rc.ClientIP.Unmap().String())
		}
		return compiler.NoValue()
	case "asn":
		if rc.ASN != 0 {
			return compiler.NumberValue(float64(rc.ASN))
		}
		return compiler.NoValue()
	case "datacenter":
		return stringOrNone(rc.Datacenter)

	// Geo
	case "country":
		return stringOrNone(rc.Geo.Country)
	case "city":
		return stringOrNone(rc.Geo.City)
	case "continent":
		return stringOrNone(rc.Geo.Continent)
	case "region":
		return stringOrNone(rc.Geo.Region)
	case "latitude":
		return compiler.NumberValue(rc.Geo.Latitude)
	case "longitude":
		return compiler.NumberValue(rc.Geo.Longitude)
	case "metroCode":
		return compiler.NumberValue(float64(rc.Geo.MetroCode))
	case "utcOffset":
		return compiler.NumberValue(float64(rc.Geo.UTCOffset))
	case "connSpeed":
		return stringOrNone(rc.Geo.ConnSpeed)

	// Proxy / VPN
	case "proxyType":
		return stringOrNone(rc.ProxyType)
	case "proxyDescription":
		return stringOrNone(rc.ProxyDescription)
	case "isHostingProvider":
		return compiler.BoolValue(rc.IsHostingProvider)

	// Device / bot classification
	case "isBot":
		return compiler.BoolValue(rc.Device.IsBot)
	case "isMobile":
		return compiler.BoolValue(rc.Device.IsMobile)
	case "deviceType":
		return stringOrNone(rc.Device.DeviceType)
	case "deviceBrand":
		return stringOrNone(rc.Device.DeviceBrand)
	case "browserName":
		return stringOrNone(rc.Device.BrowserName)
	case "osName":
		return stringOrNone(rc.Device.OSName)
	case "userAgent":
		return stringOrNone(rc.UserAgent)

	// TLS / transport fingerprints
	case "tlsVersion":
		return stringOrNone(rc.TLS.Version)
	case "ja3":
		return stringOrNone(rc.TLS.JA3)
	case "ja4":
		return stringOrNone(rc.TLS.JA4)
	case "h2Fingerprint":
		return stringOrNone(rc.TLS.H2Fingerprint)
	}

	return compiler.NoValue()
}

func stringOrNone(s string) compiler.Value {
	if s == "" {
		return compiler.NoValue()
	}
	return compiler.StringValue(s)
}
