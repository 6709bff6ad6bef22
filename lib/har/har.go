package har

import (
	"encoding/json"
)

// Archive is a parsed HAR document. Only the parts of the format that are
// needed for analysis and replay are typed, unknown vendor fields inside
// entries are dropped.
type Archive struct {
	Log Log `json:"log"`
}

type Log struct {
	Version string  `json:"version,omitempty"`
	Creator Creator `json:"creator"`
	Pages   []Page  `json:"pages,omitempty"`
	Entries Entries `json:"entries"`
}

type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Page struct {
	StartedDateTime string          `json:"startedDateTime"`
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	PageTimings     json.RawMessage `json:"pageTimings,omitempty"`
}

// Entry is one recorded request/response transaction. Entries are treated
// as immutable after loading, every accessor is a pure function of the
// fields below.
type Entry struct {
	Initiator         json.RawMessage `json:"_initiator,omitempty"`
	Priority          string          `json:"_priority,omitempty"`
	ResourceTypeName  string          `json:"_resourceType,omitempty"`
	Cache             map[string]any  `json:"cache"`
	Request           Request         `json:"request"`
	Response          Response        `json:"response"`
	ServerIPAddress   string          `json:"serverIPAddress,omitempty"`
	StartedDateTime   string          `json:"startedDateTime"`
	Time              float64         `json:"time"`
	Timings           Timings         `json:"timings"`
	Pageref           string          `json:"pageref,omitempty"`
	FromCache         string          `json:"_fromCache,omitempty"`
	Connection        string          `json:"connection,omitempty"`
	WebSocketMessages json.RawMessage `json:"_webSocketMessages,omitempty"`
}

type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     Headers     `json:"headers"`
	QueryString []NameValue `json:"queryString"`
	Cookies     []Cookie    `json:"cookies"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
	PostData    *PostData   `json:"postData,omitempty"`
}

type Response struct {
	Status       int      `json:"status"`
	StatusText   string   `json:"statusText"`
	HTTPVersion  string   `json:"httpVersion"`
	Headers      Headers  `json:"headers"`
	Content      Content  `json:"content"`
	RedirectURL  string   `json:"redirectURL"`
	HeadersSize  int64    `json:"headersSize"`
	BodySize     int64    `json:"bodySize"`
	TransferSize int64    `json:"_transferSize"`
	Cookies      []Cookie `json:"cookies"`
	Error        *string  `json:"_error"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Expires  string `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

type PostData struct {
	MimeType string      `json:"mimeType"`
	Text     string      `json:"text"`
	Params   []PostParam `json:"params,omitempty"`
}

type PostParam struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

type Content struct {
	Size        int64  `json:"size"`
	Compression int64  `json:"compression,omitempty"`
	MimeType    string `json:"mimeType"`
	Text        string `json:"text,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

// Timings are in milliseconds, -1 marks a phase that does not apply.
type Timings struct {
	Blocked         float64 `json:"blocked"`
	DNS             float64 `json:"dns"`
	SSL             float64 `json:"ssl"`
	Connect         float64 `json:"connect"`
	Send            float64 `json:"send"`
	Wait            float64 `json:"wait"`
	Receive         float64 `json:"receive"`
	BlockedQueueing float64 `json:"_blocked_queueing,omitempty"`
}
