package config

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/stratakv/strata-go/errors"
)

// encMode uses Core Deterministic Encoding so the same configuration
// always crosses the boundary as identical bytes.
var encMode cbor.EncMode

// decMode exists for the engine side of the boundary and for tests.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("config: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("config: CBOR decoder initialization failed: " + err.Error())
	}
}

// Request is the serialized form of a Config, the payload of the
// engine's create entry point. Timeouts travel as milliseconds.
type Request struct {
	Addresses []RequestAddress `cbor:"addresses"`
	UseTLS    bool             `cbor:"tls,omitempty"`
	Username  string           `cbor:"username,omitempty"`
	Password  string           `cbor:"password,omitempty"`
	ReadFrom  int              `cbor:"read_from,omitempty"`
	ClientAZ  string           `cbor:"client_az,omitempty"`

	RequestTimeoutMS    uint32 `cbor:"request_timeout_ms,omitempty"`
	ConnectionTimeoutMS uint32 `cbor:"connection_timeout_ms,omitempty"`

	ReconnectRetries      int `cbor:"reconnect_retries,omitempty"`
	ReconnectFactor       int `cbor:"reconnect_factor,omitempty"`
	ReconnectExponentBase int `cbor:"reconnect_exponent_base,omitempty"`

	ClientName     string `cbor:"client_name,omitempty"`
	DatabaseID     int    `cbor:"database_id,omitempty"`
	ClusterMode    bool   `cbor:"cluster_mode,omitempty"`
	InflightLimit  int    `cbor:"inflight_limit,omitempty"`
	ProtocolCBORV1 bool   `cbor:"protocol_cbor_v1"`
}

// RequestAddress is one serialized node address
type RequestAddress struct {
	Host string `cbor:"host"`
	Port uint16 `cbor:"port"`
}

// MarshalRequest validates the configuration and serializes it into
// the engine's connection-request format.
func (c Config) MarshalRequest() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	req := Request{
		UseTLS:              c.UseTLS,
		ReadFrom:            int(c.ReadFrom),
		ClientAZ:            c.ClientAZ,
		RequestTimeoutMS:    uint32(c.RequestTimeout.Milliseconds()),
		ConnectionTimeoutMS: uint32(c.ConnectionTimeout.Milliseconds()),
		ClientName:          c.ClientName,
		DatabaseID:          c.DatabaseID,
		ClusterMode:         c.ClusterMode,
		InflightLimit:       c.InflightRequestsLimit,
		ProtocolCBORV1:      true,
	}
	for _, addr := range c.Addresses {
		req.Addresses = append(req.Addresses, RequestAddress{Host: addr.Host, Port: addr.Port})
	}
	if c.Credentials != nil {
		req.Username = c.Credentials.Username
		req.Password = c.Credentials.Password
	}
	if c.Reconnect != nil {
		req.ReconnectRetries = c.Reconnect.Retries
		req.ReconnectFactor = c.Reconnect.Factor
		req.ReconnectExponentBase = c.Reconnect.ExponentBase
	}

	out, err := encMode.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConnect, errors.KindParameter, err, "serialize connection request")
	}
	return out, nil
}

// UnmarshalRequest decodes a serialized connection request. This is
// the engine side of the boundary; the binding only marshals outward.
func UnmarshalRequest(data []byte) (Request, error) {
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return Request{}, errors.Wrap(errors.PhaseConnect, errors.KindInvalidData, err, "parse connection request")
	}
	return req, nil
}
