package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"net/url"
	"text/template"

	"github.com/ruteri/proxy-provisioning/interfaces"
)

const (
	// VisionFlow is the XTLS flow used by the VLESS client.
	VisionFlow = "xtls-rprx-vision"

	// Fingerprint is the uTLS fingerprint advertised in the share link.
	Fingerprint = "chrome"

	// LinkName is the fragment of the vless:// link.
	LinkName = "VLESS-REALITY"
)

// XrayConfig is the subset of the Xray configuration the provisioner writes.
type XrayConfig struct {
	Log       XrayLog        `json:"log"`
	Inbounds  []XrayInbound  `json:"inbounds"`
	Outbounds []XrayOutbound `json:"outbounds"`
}

// XrayLog is the log section of XrayConfig.
type XrayLog struct {
	LogLevel string `json:"loglevel"`
}

// XrayInbound is the VLESS listener of XrayConfig.
type XrayInbound struct {
	Listen         string             `json:"listen"`
	Port           int                `json:"port"`
	Protocol       string             `json:"protocol"`
	Settings       VLESSSettings      `json:"settings"`
	StreamSettings XrayStreamSettings `json:"streamSettings"`
}

// VLESSSettings lists the clients accepted by the inbound.
type VLESSSettings struct {
	Clients    []VLESSClient `json:"clients"`
	Decryption string        `json:"decryption"`
}

// VLESSClient is one accepted user. ID is its UUID.
type VLESSClient struct {
	ID   string `json:"id"`
	Flow string `json:"flow"`
}

// XrayStreamSettings selects TCP transport secured by REALITY.
type XrayStreamSettings struct {
	Network         string          `json:"network"`
	Security        string          `json:"security"`
	RealitySettings RealitySettings `json:"realitySettings"`
}

// RealitySettings configures the REALITY handshake of the inbound.
type RealitySettings struct {
	Show        bool     `json:"show"`
	Dest        string   `json:"dest"`
	Xver        int      `json:"xver"`
	ServerNames []string `json:"serverNames"`
	PrivateKey  string   `json:"privateKey"`
	ShortIDs    []string `json:"shortIds"`
}

// XrayOutbound is an outbound handler, "freedom" for direct egress.
type XrayOutbound struct {
	Protocol string `json:"protocol"`
}

// VLESSParams holds the values of one VLESS + REALITY deployment.
type VLESSParams struct {
	Port int
	UUID string
	Keys interfaces.RealityKeyPair
	SNI  string

	// Dest is where REALITY forwards unauthenticated traffic. Defaults to SNI:443.
	Dest string
}

func (p VLESSParams) dest() string {
	if p.Dest != "" {
		return p.Dest
	}
	return p.SNI + ":443"
}

// NewXrayConfig fills the server configuration for p.
func NewXrayConfig(p VLESSParams) XrayConfig {
	return XrayConfig{
		Log: XrayLog{LogLevel: "warning"},
		Inbounds: []XrayInbound{{
			Listen:   "0.0.0.0",
			Port:     p.Port,
			Protocol: "vless",
			Settings: VLESSSettings{
				Clients:    []VLESSClient{{ID: p.UUID, Flow: VisionFlow}},
				Decryption: "none",
			},
			StreamSettings: XrayStreamSettings{
				Network:  "tcp",
				Security: "reality",
				RealitySettings: RealitySettings{
					Show:        false,
					Dest:        p.dest(),
					Xver:        0,
					ServerNames: []string{p.SNI},
					PrivateKey:  p.Keys.PrivateKey,
					ShortIDs:    []string{""},
				},
			},
		}},
		Outbounds: []XrayOutbound{{Protocol: "freedom"}},
	}
}

// XrayJSON renders the Xray server configuration file.
func XrayJSON(p VLESSParams) ([]byte, error) {
	data, err := json.MarshalIndent(NewXrayConfig(p), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not encode xray config: %w", err)
	}
	return append(data, '\n'), nil
}

// VLESSLink renders the vless:// share link for a server reachable at addr.
func VLESSLink(p VLESSParams, addr netip.Addr) string {
	u := url.URL{
		Scheme: "vless",
		User:   url.User(p.UUID),
		Host:   hostPort(addr, p.Port),
		RawQuery: encodeQuery([]queryParam{
			{"encryption", "none"},
			{"flow", VisionFlow},
			{"security", "reality"},
			{"sni", p.SNI},
			{"fp", Fingerprint},
			{"pbk", p.Keys.PublicKey},
		}),
		Fragment: LinkName,
	}
	return u.String()
}

var vlessInfoTemplate = template.Must(template.New("vless-info").Parse(`VLESS Reality node
UUID: {{.UUID}}
PrivateKey: {{.Keys.PrivateKey}}
PublicKey: {{.Keys.PublicKey}}
SNI: {{.SNI}}
Port: {{.Port}}
Link:
{{.Link}}
`))

// VLESSInfo renders the human readable connection summary.
func VLESSInfo(p VLESSParams, addr netip.Addr) ([]byte, error) {
	var buf bytes.Buffer
	err := vlessInfoTemplate.Execute(&buf, struct {
		VLESSParams
		Link string
	}{p, VLESSLink(p, addr)})
	if err != nil {
		return nil, fmt.Errorf("could not render vless info: %w", err)
	}
	return buf.Bytes(), nil
}
