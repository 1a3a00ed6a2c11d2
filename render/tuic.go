package render

import (
	"fmt"
	"net/netip"
	"net/url"

	"github.com/pelletier/go-toml/v2"
	"github.com/ruteri/proxy-provisioning/interfaces"
)

// TUICServerConfig is the tuic-server configuration file.
type TUICServerConfig struct {
	LogLevel              string            `toml:"log_level"`
	Server                string            `toml:"server"`
	UDPRelayIPv6          bool              `toml:"udp_relay_ipv6"`
	ZeroRTTHandshake      bool              `toml:"zero_rtt_handshake"`
	DualStack             bool              `toml:"dual_stack"`
	AuthTimeout           string            `toml:"auth_timeout"`
	GCInterval            string            `toml:"gc_interval"`
	GCLifetime            string            `toml:"gc_lifetime"`
	MaxExternalPacketSize int               `toml:"max_external_packet_size"`
	Users                 map[string]string `toml:"users"`
	TLS                   TUICTLSConfig     `toml:"tls"`
}

// TUICTLSConfig is the [tls] table of TUICServerConfig.
type TUICTLSConfig struct {
	Certificate string   `toml:"certificate"`
	PrivateKey  string   `toml:"private_key"`
	ALPN        []string `toml:"alpn"`
}

// TUICParams holds the values of one TUIC deployment.
type TUICParams struct {
	Port            int
	Identity        interfaces.Identity
	CertificatePath string
	PrivateKeyPath  string
	SNI             string
}

// NewTUICServerConfig fills the server configuration for p.
func NewTUICServerConfig(p TUICParams) TUICServerConfig {
	return TUICServerConfig{
		LogLevel:              "warn",
		Server:                fmt.Sprintf("0.0.0.0:%d", p.Port),
		UDPRelayIPv6:          false,
		ZeroRTTHandshake:      true,
		DualStack:             false,
		AuthTimeout:           "8s",
		GCInterval:            "8s",
		GCLifetime:            "8s",
		MaxExternalPacketSize: 8192,
		Users: map[string]string{
			p.Identity.UUID: p.Identity.Password,
		},
		TLS: TUICTLSConfig{
			Certificate: p.CertificatePath,
			PrivateKey:  p.PrivateKeyPath,
			ALPN:        []string{"h3"},
		},
	}
}

// TUICServerTOML renders the server configuration file.
func TUICServerTOML(p TUICParams) ([]byte, error) {
	data, err := toml.Marshal(NewTUICServerConfig(p))
	if err != nil {
		return nil, fmt.Errorf("could not encode tuic config: %w", err)
	}
	return data, nil
}

// TUICLink renders the tuic:// share link for a server reachable at addr.
func TUICLink(p TUICParams, addr netip.Addr) string {
	u := url.URL{
		Scheme: "tuic",
		User:   url.UserPassword(p.Identity.UUID, p.Identity.Password),
		Host:   hostPort(addr, p.Port),
		RawQuery: encodeQuery([]queryParam{
			{"congestion_control", "bbr"},
			{"alpn", "h3"},
			{"allowInsecure", "1"},
			{"sni", p.SNI},
			{"udp_relay_mode", "native"},
		}),
		Fragment: "TUIC-" + addr.String(),
	}
	return u.String()
}
