package controller

import (
	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/port"
)

// Backend selects the download machinery behind a Controller
type Backend struct {
	name     string
	factory  port.SessionFactory
	clientID string
	proxy    *domain.Proxy
}

// Active is a backend driven by a session manager from factory.
// A nil proxy leaves the manager's proxy untouched.
func Active(factory port.SessionFactory, clientID string, proxy *domain.Proxy) Backend {
	return Backend{name: "active", factory: factory, clientID: clientID, proxy: proxy}
}

// Unavailable is the degraded backend; every start reports the download as unsupported
func Unavailable() Backend {
	return Backend{name: "unavailable"}
}

// Name returns "active" or "unavailable"
func (b Backend) Name() string {
	if b.name == "" {
		return "unavailable"
	}
	return b.name
}

func (b Backend) available() bool {
	return b.factory != nil
}
