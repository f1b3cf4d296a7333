package engine

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/logging"
)

// NewClient builds the HTTP client used for transfers. There is no overall
// timeout: a large file on a slow link is not an error. Stuck connections
// are bounded by the dial, TLS, and response header timeouts instead.
func NewClient(runtime *types.RuntimeConfig, logger *zap.Logger) *http.Client {
	log := logging.Or(logger)

	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
	}

	if proxyURL := runtime.GetProxyURL(); proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		switch {
		case err != nil:
			log.Warn("invalid proxy url, falling back to environment",
				zap.String("proxy", proxyURL), zap.Error(err))
			transport.Proxy = http.ProxyFromEnvironment
		case strings.HasPrefix(parsed.Scheme, "socks5"):
			socksDialer, dialErr := proxy.SOCKS5("tcp", parsed.Host, socksAuth(parsed), proxy.Direct)
			if dialErr != nil {
				log.Warn("socks5 dialer unavailable, falling back to environment",
					zap.String("proxy", proxyURL), zap.Error(dialErr))
				transport.Proxy = http.ProxyFromEnvironment
			} else if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
				transport.DialContext = ctxDialer.DialContext
			} else {
				transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					return socksDialer.Dial(network, addr)
				}
			}
		default:
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if runtime.GetSkipTLSVerification() {
		log.Warn("tls certificate verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{Transport: transport}
}

func socksAuth(u *url.URL) *proxy.Auth {
	if u.User == nil {
		return nil
	}
	password, _ := u.User.Password()
	return &proxy.Auth{
		User:     u.User.Username(),
		Password: password,
	}
}
