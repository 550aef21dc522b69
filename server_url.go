package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// sessionURL returns the WebSocket URL peers dial to reach a host.
// 1.- Normalise the host so wildcard binds advertise a reachable name.
// 2.- Make sure the upgrade path always starts with a slash.
func sessionURL(host string, port int, path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("ws://%s%s", normaliseHostPort(net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port))), path)
}

// observerURL returns a human-friendly target for the observer listener.
func observerURL(address string, tlsEnabled bool) string {
	scheme := "grpc"
	if tlsEnabled {
		scheme = "grpcs"
	}
	return fmt.Sprintf("%s://%s", scheme, normaliseHostPort(address))
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
