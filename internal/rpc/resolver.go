package rpc

import "fmt"

// Downstream service names the authorization core depends on.
const (
	ServiceUser      = "iam-user"
	ServiceConfig    = "iam-config"
	ServiceChallenge = "iam-challenge"
)

// Resolver maps a logical service name to a base URL.
type Resolver interface {
	Resolve(service string) (string, error)
}

// StaticResolver resolves services from a fixed table, typically built
// from environment configuration.
type StaticResolver struct {
	endpoints map[string]string
}

// NewStaticResolver copies the endpoint table.
func NewStaticResolver(endpoints map[string]string) *StaticResolver {
	table := make(map[string]string, len(endpoints))
	for name, base := range endpoints {
		table[name] = base
	}
	return &StaticResolver{endpoints: table}
}

// Resolve returns the configured base URL for the service.
func (r *StaticResolver) Resolve(service string) (string, error) {
	base, ok := r.endpoints[service]
	if !ok || base == "" {
		return "", fmt.Errorf("resolve service %q: no endpoint configured", service)
	}
	return base, nil
}
