// internal/browser/network/httpclient_test.go
package network

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewClientConfig_Defaults(t *testing.T) {
	config := NewClientConfig()

	assert.Equal(t, DefaultRequestTimeout, config.RequestTimeout)
	assert.Equal(t, DefaultMaxRedirects, config.MaxRedirects)
	assert.NotNil(t, config.CookieJar)
	assert.NotNil(t, config.Logger)
	assert.False(t, config.InsecureSkipVerify)
}

func TestCookieJar_UsesPublicSuffixList(t *testing.T) {
	jar := NewClientConfig().CookieJar

	// A cookie scoped to a public suffix must be rejected.
	setter, _ := url.Parse("https://shop.example.co.uk/")
	jar.SetCookies(setter, []*http.Cookie{{Name: "wide", Value: "1", Domain: "co.uk"}})
	other, _ := url.Parse("https://other.co.uk/")
	assert.Empty(t, jar.Cookies(other))

	jar.SetCookies(setter, []*http.Cookie{{Name: "site", Value: "1", Domain: "example.co.uk"}})
	sibling, _ := url.Parse("https://www.example.co.uk/")
	require.Len(t, jar.Cookies(sibling), 1)
}

func TestConfigureTLS(t *testing.T) {
	config := NewClientConfig()
	config.Logger = zaptest.NewLogger(t)

	tlsConfig := configureTLS(config)
	assert.Equal(t, uint16(SecureMinTLSVersion), tlsConfig.MinVersion)
	assert.Equal(t, []string{"h2", "http/1.1"}, tlsConfig.NextProtos)
	assert.False(t, tlsConfig.InsecureSkipVerify)

	config.InsecureSkipVerify = true
	assert.True(t, configureTLS(config).InsecureSkipVerify)
}

func TestNewClient_TransportComposition(t *testing.T) {
	client := NewClient(nil)

	middleware, ok := client.Transport.(*CompressionMiddleware)
	require.True(t, ok, "client transport must be wrapped by CompressionMiddleware")
	base, ok := middleware.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, base.DisableCompression)
	assert.True(t, base.ForceAttemptHTTP2)
	assert.NotNil(t, client.Jar)
}

func TestNewClient_FollowsRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/landing", http.StatusFound)
			return
		}
		_, _ = io.WriteString(w, "landed")
	}))
	defer server.Close()

	resp, err := NewClient(nil).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/landing", resp.Request.URL.Path)
}

func TestNewClient_RedirectLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer server.Close()

	config := NewClientConfig()
	config.MaxRedirects = 2
	resp, err := NewClient(config).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestNewClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	config := NewClientConfig()
	config.RequestTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewClient(config).Get(server.URL)
	require.Error(t, err)
	var urlErr *url.Error
	require.ErrorAs(t, err, &urlErr)
	assert.True(t, urlErr.Timeout())
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestNewClient_InsecureSkipVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	_, err := NewClient(nil).Get(server.URL)
	assert.Error(t, err, "self-signed certificate must be rejected by default")

	config := NewClientConfig()
	config.InsecureSkipVerify = true
	resp, err := NewClient(config).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}
