// Package discovery centralizes internal service-discovery conventions.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceAdhoc is the ad-hoc session coordinator gRPC service identity.
	ServiceAdhoc = "adhoc"
	// ServiceNATS is the NATS broker identity.
	ServiceNATS = "nats"
	// ServiceJaeger is the jaeger HTTP service identity.
	ServiceJaeger = "jaeger"
)

var grpcPorts = map[string]int{
	ServiceAdhoc: 8092,
}

var httpPorts = map[string]int{
	ServiceJaeger: 16686,
}

// DefaultNATSURL is the canonical in-network broker address.
const DefaultNATSURL = "nats://nats:4222"

// DefaultGRPCAddr returns the canonical in-network gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// DefaultHTTPAddr returns the canonical in-network HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrDefaultNATSURL returns value when set, otherwise the broker convention.
func OrDefaultNATSURL(value string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultNATSURL
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
