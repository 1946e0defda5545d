package wsclient

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// BackendPort is where the simulation server listens regardless of the page's port.
const BackendPort = 8000

// Origin describes the page a client was loaded from.
type Origin struct {
	Secure bool   // https
	Host   string // host or host:port
}

// OriginFromURL derives an Origin from a page URL such as "https://lab.example.com:5173/".
func OriginFromURL(raw string) (Origin, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, err
	}
	return Origin{Secure: u.Scheme == "https" || u.Scheme == "wss", Host: u.Host}, nil
}

// BuildURL returns the WebSocket URL for path on the backend serving origin.
func BuildURL(o Origin, path, token string) string {
	scheme := "ws"
	if o.Secure {
		scheme = "wss"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(net.JoinHostPort(hostname(o.Host), strconv.Itoa(BackendPort)))
	b.WriteString(path)
	if token != "" {
		b.WriteString("?token=")
		b.WriteString(encodeComponent(token))
	}
	return b.String()
}

// BuildSimulationURL is BuildURL for a lobby's simulation endpoint.
func BuildSimulationURL(o Origin, lobbyCode, token string) string {
	return BuildURL(o, "/simulation/"+lobbyCode, token)
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

// encodeComponent matches the browser's encodeURIComponent.
func encodeComponent(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	for _, keep := range []string{"!", "'", "(", ")", "*"} {
		e = strings.ReplaceAll(e, url.QueryEscape(keep), keep)
	}
	return e
}
