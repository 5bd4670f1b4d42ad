package schemas

// -- Request Tracking Schemas --

// Resource types reported by the browser for asynchronous requests.
const (
	ResourceXHR   = "XHR"
	ResourceFetch = "Fetch"
)

// RequestRecord is an immutable entry in a page's request log. It is created
// once, when the page starts an asynchronous request, and never changed.
type RequestRecord struct {
	// URL is the target URL of the request as the page sent it.
	URL string `json:"url"`
	// Timestamp is the send time in Unix milliseconds, taken from the tracker's clock.
	Timestamp int64 `json:"timestamp"`
	// Method is the HTTP method, if known.
	Method string `json:"method,omitempty"`
	// Type is the browser resource type (XHR, Fetch).
	Type string `json:"type,omitempty"`
	// Options carries the raw request configuration. Treat it as read-only.
	Options map[string]interface{} `json:"options,omitempty"`
}
