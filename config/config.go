package config

import (
	"time"

	"github.com/stratakv/strata-go/errors"
)

// NodeAddress is one seed node of the store
type NodeAddress struct {
	Host string
	Port uint16
}

// ReadFrom selects the engine's replica-reading strategy
type ReadFrom int

const (
	// ReadFromPrimary always reads from the primary, guaranteeing
	// freshness.
	ReadFromPrimary ReadFrom = iota
	// ReadFromPreferReplica spreads reads over replicas round-robin,
	// falling back to the primary when no replica is available.
	ReadFromPreferReplica
	// ReadFromAZAffinity prefers replicas in the client's availability
	// zone.
	ReadFromAZAffinity
)

// Credentials authenticate the connection against the store
type Credentials struct {
	Username string
	Password string
}

// ReconnectStrategy controls the engine's exponential backoff between
// reconnection attempts: rand(0 .. factor * exponentBase^attempt).
type ReconnectStrategy struct {
	Retries      int
	Factor       int
	ExponentBase int
}

// Config describes one client connection. The zero value is not
// usable; at least one address is required.
type Config struct {
	Addresses         []NodeAddress
	UseTLS            bool
	Credentials       *Credentials
	ReadFrom          ReadFrom
	RequestTimeout    time.Duration
	ConnectionTimeout time.Duration
	Reconnect         *ReconnectStrategy
	ClientName        string
	DatabaseID        int
	ClusterMode       bool

	// InflightRequestsLimit caps concurrent in-flight requests per
	// connection. Enforcement happens in the engine; the binding only
	// forwards the limit at connect time. 0 means the engine default.
	InflightRequestsLimit int

	// ClientAZ is the availability zone used by ReadFromAZAffinity.
	ClientAZ string
}

// Default returns a single-node configuration for the given address
func Default(host string, port uint16) Config {
	return Config{
		Addresses: []NodeAddress{{Host: host, Port: port}},
	}
}

// Validate checks the configuration client-side so invalid parameters
// fail fast before anything crosses the engine boundary.
func (c Config) Validate() error {
	if len(c.Addresses) == 0 {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "at least one node address is required")
	}
	for i, addr := range c.Addresses {
		if addr.Host == "" {
			return errors.New(errors.PhaseConnect, errors.KindParameter, "empty host in address %d", i)
		}
		if addr.Port == 0 {
			return errors.New(errors.PhaseConnect, errors.KindParameter, "port 0 in address %d", i)
		}
	}
	if c.RequestTimeout < 0 {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "request timeout must be non-negative")
	}
	if c.ConnectionTimeout < 0 {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "connection timeout must be non-negative")
	}
	switch c.ReadFrom {
	case ReadFromPrimary, ReadFromPreferReplica, ReadFromAZAffinity:
	default:
		return errors.New(errors.PhaseConnect, errors.KindParameter, "invalid read-from strategy %d", int(c.ReadFrom))
	}
	if c.ReadFrom == ReadFromAZAffinity && c.ClientAZ == "" {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "az-affinity read strategy requires a client availability zone")
	}
	if c.DatabaseID < 0 {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "database id must be non-negative")
	}
	if c.DatabaseID != 0 && c.ClusterMode {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "database id is not supported in cluster mode")
	}
	if c.InflightRequestsLimit < 0 {
		return errors.New(errors.PhaseConnect, errors.KindParameter, "inflight requests limit must be non-negative")
	}
	if r := c.Reconnect; r != nil {
		if r.Retries < 0 || r.Factor < 0 || r.ExponentBase < 0 {
			return errors.New(errors.PhaseConnect, errors.KindParameter, "reconnect strategy fields must be non-negative")
		}
	}
	return nil
}
