package proxy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/lifecycle"
	"github.com/sasta-kro/corvus-gateway/internal/proxy"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
)

type fakeManager struct {
	handle *lifecycle.Handle
	err    error
	evicted string
}

func (f *fakeManager) EnsureReady(ctx context.Context, appName string) (*lifecycle.Handle, error) {
	return f.handle, f.err
}

func (f *fakeManager) Evict(appName string) {
	f.evicted = appName
}

func hostPortOf(t *testing.T, rawURL string) int {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)
	return port
}

func TestForwardStripsPrefixForStaticFramework(t *testing.T) {
	var capturedPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := registry.New()
	require.NoError(t, reg.Put(domain.Descriptor{
		AppName:   "assets",
		Framework: domain.FrameworkVite,
		HostPort:  hostPortOf(t, upstream.URL),
	}))

	p := proxy.New(reg, &fakeManager{handle: &lifecycle.Handle{}})

	request := httptest.NewRequest(http.MethodGet, "/app/assets/index.js", nil)
	recorder := httptest.NewRecorder()

	status := p.Forward(recorder, request, "assets", "index.js")
	assert.Equal(t, proxy.StatusOK, status)
	assert.Equal(t, "/index.js", capturedPath)
}

func TestForwardKeepsPrefixForNextjs(t *testing.T) {
	var capturedPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := registry.New()
	require.NoError(t, reg.Put(domain.Descriptor{
		AppName:   "dashboard",
		Framework: domain.FrameworkNextJS,
		HostPort:  hostPortOf(t, upstream.URL),
	}))

	p := proxy.New(reg, &fakeManager{handle: &lifecycle.Handle{}})

	request := httptest.NewRequest(http.MethodGet, "/app/dashboard/settings", nil)
	recorder := httptest.NewRecorder()

	status := p.Forward(recorder, request, "dashboard", "settings")
	assert.Equal(t, proxy.StatusOK, status)
	assert.Equal(t, "/app/dashboard/settings", capturedPath)
}

func TestForwardStripsHopByHopResponseHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := registry.New()
	require.NoError(t, reg.Put(domain.Descriptor{
		AppName:   "assets",
		Framework: domain.FrameworkReact,
		HostPort:  hostPortOf(t, upstream.URL),
	}))

	p := proxy.New(reg, &fakeManager{handle: &lifecycle.Handle{}})
	request := httptest.NewRequest(http.MethodGet, "/app/assets/", nil)
	recorder := httptest.NewRecorder()

	p.Forward(recorder, request, "assets", "")

	assert.Empty(t, recorder.Header().Get("Content-Encoding"))
	assert.Empty(t, recorder.Header().Get("Connection"))
	assert.Equal(t, "text/plain", recorder.Header().Get("Content-Type"))
}

func TestForwardReturnsAppNotFoundForUnregisteredApp(t *testing.T) {
	reg := registry.New()
	p := proxy.New(reg, &fakeManager{})

	request := httptest.NewRequest(http.MethodGet, "/app/missing/", nil)
	recorder := httptest.NewRecorder()

	status := p.Forward(recorder, request, "missing", "")
	assert.Equal(t, proxy.StatusAppNotFound, status)
}

func TestForwardEvictsHandleOnConnectionRefused(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Put(domain.Descriptor{
		AppName:   "unreachable",
		Framework: domain.FrameworkVite,
		HostPort:  1,
	}))

	manager := &fakeManager{handle: &lifecycle.Handle{}}
	p := proxy.New(reg, manager)

	request := httptest.NewRequest(http.MethodGet, "/app/unreachable/", nil)
	recorder := httptest.NewRecorder()

	status := p.Forward(recorder, request, "unreachable", "")
	assert.Equal(t, proxy.StatusUpstreamUnreachable, status)
	assert.Equal(t, "unreachable", manager.evicted)
}
