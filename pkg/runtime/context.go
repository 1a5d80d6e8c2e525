// edgewall/pkg/runtime/context.go

package runtime

import (
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// GeoInfo carries the already-classified geo fields supplied by the
// host environment. Classification itself is out of scope.
type GeoInfo struct {
	Country   string
	City      string
	Continent string
	Region    string
	Latitude  float64
	Longitude float64
	MetroCode int
	UTCOffset int
	ConnSpeed string
}

// DeviceInfo carries the host's device/bot classification of the client.
type DeviceInfo struct {
	IsBot        bool
	IsMobile     bool
	DeviceType   string // mobile, tablet, desktop
	DeviceBrand  string
	BrowserName  string
	OSName       string
}

// TLSInfo carries transport fingerprints captured at termination.
type TLSInfo struct {
	Version       string
	JA3           string
	JA4           string
	H2Fingerprint string
}

// CachePolicy accumulates response-cache directives written by cache
// nodes; the host's cache layer consumes it after evaluation.
type CachePolicy struct {
	Configured           bool
	Pass                 bool
	TTLSeconds           int
	StaleWhileRevalidate int
	SurrogateKey         string
}

// RequestContext is the per-request evaluation state: immutable captured
// fields plus the mutable variable namespace, accumulated score, and
// forward-request mutations. One context per inbound request; never
// shared across requests.
type RequestContext struct {
	EvalID string

	Method string
	Path   string
	Query  string
	Host   string
	Scheme string

	ClientIP   netip.Addr
	ASN        uint32
	Datacenter string

	Geo    GeoInfo
	Device DeviceInfo
	TLS    TLSInfo

	ProxyType         string
	ProxyDescription  string
	IsHostingProvider bool

	UserAgent string
	headers   map[string]string

	// Mutable evaluation state.
	Vars  map[string]string
	Score int

	SetHeaders     map[string]string
	RemovedHeaders []string
	Cache          CachePolicy
}

func NewRequestContext() *RequestContext {
	return &RequestContext{
		EvalID:     uuid.NewString(),
		headers:    make(map[string]string),
		Vars:       make(map[string]string),
		SetHeaders: make(map[string]string),
	}
}

// SetHeader records an inbound request header. Names are matched
// case-insensitively.
func (rc *RequestContext) SetHeader(name, value string) {
	if rc.headers == nil {
		rc.headers = make(map[string]string)
	}
	rc.headers[strings.ToLower(name)] = value
}

// Header looks up an inbound request header.
func (rc *RequestContext) Header(name string) (string, bool) {
	v, ok := rc.headers[strings.ToLower(name)]
	return v, ok
}

// SetForwardHeader records a header mutation for the forward request.
func (rc *RequestContext) SetForwardHeader(name, value string) {
	rc.SetHeaders[name] = value
}

// RemoveForwardHeader marks a header for removal on the forward request.
func (rc *RequestContext) RemoveForwardHeader(name string) {
	rc.RemovedHeaders = append(rc.RemovedHeaders, name)
}
