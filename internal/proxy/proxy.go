// Package proxy forwards inbound requests for a registered application to
// its running container, starting one on demand through the lifecycle
// manager and rewriting the request path according to the application's
// framework.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/events"
	"github.com/sasta-kro/corvus-gateway/internal/lifecycle"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
)

const forwardTimeout = 30 * time.Second

// hopByHopHeaders are stripped from the inbound request before it is
// forwarded upstream, the same set the original gateway's
// filter_request_headers used.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade", "Host",
}

// responseHeadersToStrip are removed from the upstream response before it
// is written back to the client, since the proxy already consumed the
// encoded/chunked body and is writing out a fresh one.
var responseHeadersToStrip = []string{"Content-Encoding", "Transfer-Encoding", "Connection"}

// Manager is the subset of *lifecycle.Manager the proxy depends on.
type Manager interface {
	EnsureReady(ctx context.Context, appName string) (*lifecycle.Handle, error)
	Evict(appName string)
}

// Proxy routes /app/<name>/<tail> requests to the corresponding container.
type Proxy struct {
	registry *registry.Registry
	manager  Manager
	client   *http.Client
	journal  *events.Journal
}

// New constructs a Proxy.
func New(reg *registry.Registry, manager Manager) *Proxy {
	return &Proxy{
		registry: reg,
		manager:  manager,
		client:   &http.Client{Timeout: forwardTimeout},
	}
}

// AttachJournal wires an event journal into the proxy so transport
// failures that trigger a handle eviction are recorded. optional: a Proxy
// with no journal attached behaves identically, just without the audit
// trail entry.
func (proxy *Proxy) AttachJournal(journal *events.Journal) {
	proxy.journal = journal
}

// Status classifies how a proxied request concluded, used by callers (the
// gateway façade) to decide the HTTP status and whether to log at warn
// level.
type Status int

const (
	StatusOK Status = iota
	StatusAppNotFound
	StatusNotReady
	StatusUpstreamUnreachable
	StatusUpstreamTimeout
	StatusInternalError
)

// Forward serves one proxied request. it looks up name in the registry,
// ensures a container is ready, rewrites the path per framework, and
// streams the upstream response back through w. the returned Status lets
// the caller distinguish "already written" (StatusOK) from error paths the
// caller must still write a response for.
func (proxy *Proxy) Forward(w http.ResponseWriter, r *http.Request, name, tail string) Status {
	descriptor, found := proxy.registry.Get(name)
	if !found {
		return StatusAppNotFound
	}

	handle, err := proxy.manager.EnsureReady(r.Context(), name)
	if err != nil {
		var notReady *lifecycle.ErrNotReady
		if errors.As(err, &notReady) {
			return StatusNotReady
		}
		return StatusInternalError
	}

	targetURL := upstreamURL(descriptor, tail, r.URL.RawQuery)

	upstreamRequest, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		return StatusInternalError
	}
	copyHeadersExcept(upstreamRequest.Header, r.Header, hopByHopHeaders)
	// leave compression negotiation to the transport, which then decodes
	// the upstream body itself before it is copied back to the client.
	upstreamRequest.Header.Del("Accept-Encoding")

	response, err := proxy.client.Do(upstreamRequest)
	if err != nil {
		if isTimeout(err) {
			return StatusUpstreamTimeout
		}
		proxy.manager.Evict(name)
		if proxy.journal != nil {
			proxy.journal.Append(name, events.KindTransportFailure, err.Error())
		}
		return StatusUpstreamUnreachable
	}
	defer response.Body.Close()

	outHeader := w.Header()
	for key, values := range response.Header {
		for _, value := range values {
			outHeader.Add(key, value)
		}
	}
	for _, stripped := range responseHeadersToStrip {
		outHeader.Del(stripped)
	}

	w.WriteHeader(response.StatusCode)
	io.Copy(w, response.Body)
	return StatusOK
}

// upstreamURL composes the container-facing URL for a request, applying
// the framework-dependent path rewrite: vite/react strip the
// /app/<name> prefix entirely since their static server knows nothing
// about it; nextjs keeps the full path since it is BASE_PATH-aware.
func upstreamURL(descriptor domain.Descriptor, tail, rawQuery string) string {
	tail = strings.TrimPrefix(tail, "/")

	var path string
	if descriptor.Framework.IsStatic() {
		path = "/" + tail
	} else {
		path = fmt.Sprintf("/app/%s/%s", descriptor.AppName, tail)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d%s", descriptor.HostPort, path)
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	return url
}

func copyHeadersExcept(dst, src http.Header, excluded []string) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
	for _, header := range excluded {
		dst.Del(header)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
