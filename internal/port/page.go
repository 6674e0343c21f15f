package port

import "net/http"

// PageHost is a content host that can hand downloads to the controller
type PageHost interface {
	// SetForwardUnsupportedContent controls whether non-renderable responses are forwarded
	SetForwardUnsupportedContent(forward bool)

	// OnUnsupportedContent subscribes to forwarded responses
	OnUnsupportedContent(fn func(resp *http.Response)) error

	// OnDownloadRequested subscribes to explicit save requests
	OnDownloadRequested(fn func(req *http.Request)) error
}
