package request

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// adapterTransport is one alternate TLS configuration tried against hosts
// that reject the default client setup.
type adapterTransport struct {
	name      string
	transport *http.Transport
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// fallbackTransports returns the alternate TLS setups in declaration order.
// Callers shuffle the order per request.
func fallbackTransports() []adapterTransport {
	restricted := newHTTPTransport()
	restricted.TLSClientConfig = &tls.Config{
		MaxVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		},
	}

	legacy := newHTTPTransport()
	legacy.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS10,
	}

	return []adapterTransport{
		{name: "restricted-ciphers", transport: restricted},
		{name: "legacy-min-version", transport: legacy},
	}
}
