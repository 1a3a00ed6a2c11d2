package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/ruteri/proxy-provisioning/cryptoutils"
	"github.com/ruteri/proxy-provisioning/identity"
	"github.com/ruteri/proxy-provisioning/interfaces"
	"github.com/ruteri/proxy-provisioning/pki"
	"github.com/ruteri/proxy-provisioning/publicip"
	"github.com/ruteri/proxy-provisioning/render"
	"github.com/stretchr/testify/require"
)

func newIPService(t *testing.T, addr string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(addr + "\n"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"provision"}, args...))
	return out.String(), err
}

func TestApp_KeygenThenGenerate(t *testing.T) {
	dir := t.TempDir()
	srv := newIPService(t, "198.51.100.4")
	common := []string{"--output-dir", dir, "--ip-resolver", "http", "--ip-service-url", srv.URL, "--server-port", "40000"}

	out, err := runApp(t, append(common, "reality-keygen")...)
	require.NoError(t, err)
	require.Contains(t, out, "PublicKey: ")

	_, err = runApp(t, append(common, "reality-keygen")...)
	require.ErrorContains(t, err, "refusing to overwrite")

	out, err = runApp(t, append(common, "generate")...)
	require.NoError(t, err)
	require.Contains(t, out, "tuic://")
	require.Contains(t, out, "@198.51.100.4:40000?")
	require.Contains(t, out, "vless://")

	for _, name := range []string{"server.toml", "tuic-cert.pem", "tuic-key.pem", "tuic_link.txt", "xray.json", "vless_reality_info.txt"} {
		require.FileExists(t, filepath.Join(dir, name))
	}

	link, err := os.ReadFile(filepath.Join(dir, "tuic_link.txt"))
	require.NoError(t, err)
	require.Contains(t, out, strings.TrimSpace(string(link)))
}

func TestApp_DefaultActionIsGenerate(t *testing.T) {
	dir := t.TempDir()
	srv := newIPService(t, "198.51.100.4")

	_, err := runApp(t, "--output-dir", dir, "reality-keygen")
	require.NoError(t, err)

	out, err := runApp(t, "--output-dir", dir, "--ip-resolver", "http", "--ip-service-url", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "VLESS Reality node")
}

func TestApp_MissingKeyPair(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t, "--output-dir", dir, "generate")
	require.ErrorIs(t, err, interfaces.ErrKeyPairMissing)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestApp_CertCommand(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t, "--output-dir", dir, "--masquerade-domain", "www.example.com", "--cert-validity", "720h", "cert")
	require.NoError(t, err)

	keyPEM, err := os.ReadFile(filepath.Join(dir, "tuic-key.pem"))
	require.NoError(t, err)
	certPEM, err := os.ReadFile(filepath.Join(dir, "tuic-cert.pem"))
	require.NoError(t, err)
	require.NoError(t, cryptoutils.VerifyCertificate(keyPEM, certPEM, "www.example.com"))

	_, err = os.Stat(filepath.Join(dir, "server.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApp_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	srv := newIPService(t, "198.51.100.4")

	configPath := filepath.Join(t.TempDir(), "provision.yaml")
	config := "output-dir: " + dir + "\n" +
		"server-port: 41000\n" +
		"masquerade-domain: www.example.com\n" +
		"ip-service-url: " + srv.URL + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0600))

	_, err := runApp(t, "--config", configPath, "reality-keygen")
	require.NoError(t, err)

	_, err = runApp(t, "--config", configPath, "--ip-resolver", "http", "--server-port", "42000", "generate")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "server.toml"))
	require.NoError(t, err)
	var server render.TUICServerConfig
	require.NoError(t, toml.Unmarshal(data, &server))
	require.Equal(t, "0.0.0.0:42000", server.Server)

	info, err := os.ReadFile(filepath.Join(dir, "vless_reality_info.txt"))
	require.NoError(t, err)
	require.Contains(t, string(info), "SNI: www.example.com")
}

func TestApp_ServerPortFromEnv(t *testing.T) {
	dir := t.TempDir()
	srv := newIPService(t, "198.51.100.4")

	_, err := runApp(t, "--output-dir", dir, "reality-keygen")
	require.NoError(t, err)

	t.Setenv("SERVER_PORT", "43000")
	out, err := runApp(t, "--output-dir", dir, "--ip-resolver", "http", "--ip-service-url", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "@198.51.100.4:43000?")

	t.Setenv("SERVER_PORT", "70000")
	_, err = runApp(t, "--output-dir", dir)
	require.ErrorIs(t, err, interfaces.ErrInvalidPort)

	t.Setenv("SERVER_PORT", "not-a-port")
	_, err = runApp(t, "--output-dir", dir)
	require.Error(t, err)
}

func TestCollaboratorSelection(t *testing.T) {
	ids, err := identitySourceFor("native")
	require.NoError(t, err)
	require.IsType(t, identity.NativeSource{}, ids)

	ids, err = identitySourceFor("command")
	require.NoError(t, err)
	require.IsType(t, identity.CommandSource{}, ids)

	_, err = identitySourceFor("uuidgen")
	require.Error(t, err)

	issuer, err := issuerFor("native", "openssl")
	require.NoError(t, err)
	require.Equal(t, "native", issuer.Name())

	issuer, err = issuerFor("openssl", "/usr/local/bin/openssl")
	require.NoError(t, err)
	require.Equal(t, pki.OpenSSLIssuer{Binary: "/usr/local/bin/openssl"}, issuer)

	_, err = issuerFor("acme", "openssl")
	require.Error(t, err)
}

func TestResolverFor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := resolverOptions{ServiceURL: "https://ip.example.com", DNSServer: "127.0.0.1:5353", DNSIPv6: true, Timeout: time.Second}

	r, err := resolverFor([]string{"http"}, opts, logger)
	require.NoError(t, err)
	httpResolver, ok := r.(*publicip.HTTPResolver)
	require.True(t, ok)
	require.Equal(t, "https://ip.example.com", httpResolver.URL)
	require.Equal(t, time.Second, httpResolver.Client.Timeout)

	r, err = resolverFor([]string{"dns"}, opts, logger)
	require.NoError(t, err)
	dnsResolver, ok := r.(*publicip.DNSResolver)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:5353", dnsResolver.Server)
	require.Equal(t, time.Second, dnsResolver.Timeout)
	require.True(t, dnsResolver.IPv6)

	r, err = resolverFor([]string{"http", "dns", "command"}, opts, logger)
	require.NoError(t, err)
	chain, ok := r.(*publicip.ChainResolver)
	require.True(t, ok)
	require.Len(t, chain.Resolvers, 3)
	require.IsType(t, &publicip.CommandResolver{}, chain.Resolvers[2])

	_, err = resolverFor(nil, opts, logger)
	require.Error(t, err)

	_, err = resolverFor([]string{"stun"}, opts, logger)
	require.Error(t, err)
}

func TestApp_DNSResolverFlags(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t, "--output-dir", dir, "reality-keygen")
	require.NoError(t, err)

	// An unreachable DNS server makes the run fall back to the loopback address.
	out, err := runApp(t, "--output-dir", dir, "--ip-resolver", "dns", "--dns-server", "127.0.0.1:1", "--dns-ipv6", "--server-port", "44000")
	require.NoError(t, err)
	require.Contains(t, out, "@127.0.0.1:44000?")
}
