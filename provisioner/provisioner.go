package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/ruteri/proxy-provisioning/cryptoutils"
	"github.com/ruteri/proxy-provisioning/identity"
	"github.com/ruteri/proxy-provisioning/interfaces"
	"github.com/ruteri/proxy-provisioning/publicip"
	"github.com/ruteri/proxy-provisioning/render"
)

const (
	// ModeSecret is applied to every artifact holding credentials.
	ModeSecret os.FileMode = 0600
	// ModePublic is applied to the certificate.
	ModePublic os.FileMode = 0644

	// LockFile is created in the output directory while a run is active.
	LockFile = ".provision.lock"

	// MinRandomPort and MaxRandomPort bound the TUIC port picked when none is configured.
	MinRandomPort = 20000
	MaxRandomPort = 60000
)

// Files names the artifacts relative to the output directory.
type Files struct {
	ServerConfig string
	Certificate  string
	PrivateKey   string
	TUICLink     string
	XrayConfig   string
	VLESSInfo    string
	RealityKeys  string
	TUICQRCode   string
	VLESSQRCode  string
}

// Config holds the parameters of a provisioning run.
type Config struct {
	OutputDir string
	Files     Files

	MasqueradeDomain string
	// RealityDest overrides the REALITY fallback target, <domain>:443 when empty.
	RealityDest string

	// TUICPort of 0 picks a random port in [MinRandomPort, MaxRandomPort).
	TUICPort  int
	VLESSPort int

	CertificateValidity time.Duration
	QRCodes             bool
}

// DefaultConfig returns the configuration of a run in the current directory.
func DefaultConfig() Config {
	return Config{
		OutputDir: ".",
		Files: Files{
			ServerConfig: "server.toml",
			Certificate:  "tuic-cert.pem",
			PrivateKey:   "tuic-key.pem",
			TUICLink:     "tuic_link.txt",
			XrayConfig:   "xray.json",
			VLESSInfo:    "vless_reality_info.txt",
			RealityKeys:  "reality_keys.json",
			TUICQRCode:   "tuic_link.png",
			VLESSQRCode:  "vless_link.png",
		},
		MasqueradeDomain:    "pages.cloudflare.com",
		VLESSPort:           443,
		CertificateValidity: 365 * 24 * time.Hour,
	}
}

// Validate checks the configuration before any collaborator is invoked.
func (c Config) Validate() error {
	if c.TUICPort < 0 || c.TUICPort > 65535 {
		return fmt.Errorf("%w: tuic port %d", interfaces.ErrInvalidPort, c.TUICPort)
	}
	if c.VLESSPort < 1 || c.VLESSPort > 65535 {
		return fmt.Errorf("%w: vless port %d", interfaces.ErrInvalidPort, c.VLESSPort)
	}
	if c.MasqueradeDomain == "" {
		return errors.New("masquerade domain is required")
	}
	if c.CertificateValidity <= 0 {
		return fmt.Errorf("certificate validity must be positive, got %s", c.CertificateValidity)
	}

	names := map[string]string{
		"server config": c.Files.ServerConfig,
		"certificate":   c.Files.Certificate,
		"private key":   c.Files.PrivateKey,
		"tuic link":     c.Files.TUICLink,
		"xray config":   c.Files.XrayConfig,
		"vless info":    c.Files.VLESSInfo,
		"reality keys":  c.Files.RealityKeys,
	}
	if c.QRCodes {
		names["tuic qr code"] = c.Files.TUICQRCode
		names["vless qr code"] = c.Files.VLESSQRCode
	}
	for what, name := range names {
		if name == "" || !filepath.IsLocal(name) {
			return fmt.Errorf("%s file name %q must be a relative path inside the output directory", what, name)
		}
	}
	return nil
}

// RandomPort picks a port in [MinRandomPort, MaxRandomPort).
func RandomPort() int {
	return rand.IntN(MaxRandomPort-MinRandomPort) + MinRandomPort
}

// Plan holds everything resolved before the first artifact is written.
type Plan struct {
	TUIC  render.TUICParams
	VLESS render.VLESSParams

	TUICUUID  interfaces.Resolved[string]
	VLESSUUID interfaces.Resolved[string]
	Address   interfaces.Resolved[netip.Addr]
}

// Result describes a completed run.
type Result struct {
	Plan                 *Plan
	CertificateGenerated bool
	Written              []string
	TUICLink             string
	VLESSLink            string
}

// Provisioner writes the TUIC and VLESS + REALITY artifacts into a store.
type Provisioner struct {
	config     Config
	store      interfaces.ArtifactBackend
	identities interfaces.IdentitySource
	issuer     interfaces.CertificateIssuer
	resolver   interfaces.AddressResolver
	out        io.Writer
	log        *slog.Logger
}

// NewProvisioner creates a provisioner. The store must be rooted at cfg.OutputDir.
// Links are printed to out.
func NewProvisioner(cfg Config, store interfaces.ArtifactBackend, identities interfaces.IdentitySource, issuer interfaces.CertificateIssuer, resolver interfaces.AddressResolver, out io.Writer, log *slog.Logger) (*Provisioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &Provisioner{
		config:     cfg,
		store:      store,
		identities: identities,
		issuer:     issuer,
		resolver:   resolver,
		out:        out,
		log:        log,
	}, nil
}

// Run performs a full provisioning run.
func (p *Provisioner) Run(ctx context.Context) (*Result, error) {
	keys, err := LoadRealityKeyPair(filepath.Join(p.config.OutputDir, p.config.Files.RealityKeys))
	if err != nil {
		return nil, err
	}
	p.checkRealityKeyPair(keys)

	unlock, err := p.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	plan, err := p.NewPlan(ctx, keys)
	if err != nil {
		return nil, err
	}

	res := &Result{Plan: plan}
	res.CertificateGenerated, err = p.EnsureCertificate(ctx)
	if err != nil {
		return nil, err
	}
	if res.CertificateGenerated {
		res.Written = append(res.Written, p.config.Files.PrivateKey, p.config.Files.Certificate)
	}

	plan.Address = publicip.Lookup(ctx, p.resolver, p.log)

	if err := p.WriteServerConfig(ctx, plan); err != nil {
		return nil, err
	}
	res.Written = append(res.Written, p.config.Files.ServerConfig)

	if res.TUICLink, err = p.WriteConnectionLink(ctx, plan); err != nil {
		return nil, err
	}
	res.Written = append(res.Written, p.config.Files.TUICLink)

	if err := p.WriteAltProtocolConfig(ctx, plan); err != nil {
		return nil, err
	}
	res.Written = append(res.Written, p.config.Files.XrayConfig)

	if res.VLESSLink, err = p.WriteAltProtocolInfo(ctx, plan); err != nil {
		return nil, err
	}
	res.Written = append(res.Written, p.config.Files.VLESSInfo)

	if p.config.QRCodes {
		res.Written = append(res.Written, p.config.Files.TUICQRCode, p.config.Files.VLESSQRCode)
	}

	p.log.Info("Provisioning complete",
		slog.String("location", p.store.LocationURI()),
		slog.Int("tuic_port", plan.TUIC.Port),
		slog.Int("vless_port", plan.VLESS.Port),
		slog.String("address", plan.Address.Value.String()),
		slog.Bool("certificate_generated", res.CertificateGenerated))

	return res, nil
}

// Lock takes the output directory run lock. The returned function releases it.
func (p *Provisioner) Lock() (func(), error) {
	lock := flock.New(filepath.Join(p.config.OutputDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("could not acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrLocked, lock.Path())
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			p.log.Warn("Could not release run lock", slog.String("path", lock.Path()), "err", err)
		}
	}, nil
}

// NewPlan generates the identities and picks the ports of a run.
func (p *Provisioner) NewPlan(ctx context.Context, keys interfaces.RealityKeyPair) (*Plan, error) {
	tuicIdentity, tuicUUID, err := identity.New(ctx, p.identities)
	if err != nil {
		return nil, fmt.Errorf("could not generate tuic password: %w", err)
	}
	p.warnFallback("tuic", tuicUUID)

	vlessUUID := p.identities.NewUUID(ctx)
	p.warnFallback("vless", vlessUUID)

	port := p.config.TUICPort
	if port == 0 {
		port = RandomPort()
	}

	return &Plan{
		TUIC: render.TUICParams{
			Port:            port,
			Identity:        tuicIdentity,
			CertificatePath: p.configPath(p.config.Files.Certificate),
			PrivateKeyPath:  p.configPath(p.config.Files.PrivateKey),
			SNI:             p.config.MasqueradeDomain,
		},
		VLESS: render.VLESSParams{
			Port: p.config.VLESSPort,
			UUID: vlessUUID.Value,
			Keys: keys,
			SNI:  p.config.MasqueradeDomain,
			Dest: p.config.RealityDest,
		},
		TUICUUID:  tuicUUID,
		VLESSUUID: vlessUUID,
		Address:   interfaces.Resolved[netip.Addr]{Value: publicip.Fallback},
	}, nil
}

// checkRealityKeyPair warns when the public key is not derived from the
// private key. Clients would then fail the REALITY handshake.
func (p *Provisioner) checkRealityKeyPair(keys interfaces.RealityKeyPair) {
	derived, err := cryptoutils.RealityPublicKey(keys.PrivateKey)
	if err != nil {
		p.log.Warn("REALITY private key is not a base64 x25519 key", "err", err)
		return
	}
	if derived != keys.PublicKey {
		p.log.Warn("REALITY public key does not match the private key",
			slog.String("public_key", keys.PublicKey),
			slog.String("derived_public_key", derived))
	}
}

func (p *Provisioner) warnFallback(user string, id interfaces.Resolved[string]) {
	if id.FellBack() {
		p.log.Warn("UUID generation failed, using placeholder",
			slog.String("user", user),
			slog.String("uuid", id.Value),
			"err", id.Err)
	}
}

// EnsureCertificate issues the TUIC certificate pair unless both files exist.
// It reports whether a new pair was written.
func (p *Provisioner) EnsureCertificate(ctx context.Context) (bool, error) {
	certExists, err := p.store.Exists(ctx, p.config.Files.Certificate)
	if err != nil {
		return false, fmt.Errorf("could not check certificate: %w", err)
	}
	keyExists, err := p.store.Exists(ctx, p.config.Files.PrivateKey)
	if err != nil {
		return false, fmt.Errorf("could not check private key: %w", err)
	}
	if certExists && keyExists {
		p.log.Info("Certificate already exists, skipping",
			slog.String("certificate", p.config.Files.Certificate),
			slog.String("private_key", p.config.Files.PrivateKey))
		return false, nil
	}

	p.log.Info("Issuing self-signed certificate",
		slog.String("issuer", p.issuer.Name()),
		slog.String("common_name", p.config.MasqueradeDomain),
		slog.Duration("validity", p.config.CertificateValidity))

	keyPEM, certPEM, err := p.issuer.Issue(ctx, p.config.MasqueradeDomain, p.config.CertificateValidity)
	if err != nil {
		return false, fmt.Errorf("could not issue certificate: %w", err)
	}
	if err := cryptoutils.VerifyCertificate(keyPEM, certPEM, p.config.MasqueradeDomain); err != nil {
		return false, fmt.Errorf("issued certificate is invalid: %w", err)
	}

	if err := p.put(ctx, p.config.Files.PrivateKey, keyPEM, ModeSecret); err != nil {
		return false, err
	}
	if err := p.put(ctx, p.config.Files.Certificate, certPEM, ModePublic); err != nil {
		return false, err
	}
	return true, nil
}

// WriteServerConfig writes the TUIC server configuration.
func (p *Provisioner) WriteServerConfig(ctx context.Context, plan *Plan) error {
	data, err := render.TUICServerTOML(plan.TUIC)
	if err != nil {
		return err
	}
	return p.put(ctx, p.config.Files.ServerConfig, data, ModeSecret)
}

// WriteConnectionLink writes and prints the tuic:// link.
func (p *Provisioner) WriteConnectionLink(ctx context.Context, plan *Plan) (string, error) {
	link := render.TUICLink(plan.TUIC, plan.Address.Value)
	if err := p.put(ctx, p.config.Files.TUICLink, []byte(link+"\n"), ModeSecret); err != nil {
		return "", err
	}
	if err := p.putQRCode(ctx, p.config.Files.TUICQRCode, link); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "TUIC link:\n%s\n\n", link)
	return link, nil
}

// WriteAltProtocolConfig writes the Xray server configuration.
func (p *Provisioner) WriteAltProtocolConfig(ctx context.Context, plan *Plan) error {
	data, err := render.XrayJSON(plan.VLESS)
	if err != nil {
		return err
	}
	return p.put(ctx, p.config.Files.XrayConfig, data, ModeSecret)
}

// WriteAltProtocolInfo writes and prints the VLESS connection summary.
func (p *Provisioner) WriteAltProtocolInfo(ctx context.Context, plan *Plan) (string, error) {
	info, err := render.VLESSInfo(plan.VLESS, plan.Address.Value)
	if err != nil {
		return "", err
	}
	if err := p.put(ctx, p.config.Files.VLESSInfo, info, ModeSecret); err != nil {
		return "", err
	}

	link := render.VLESSLink(plan.VLESS, plan.Address.Value)
	if err := p.putQRCode(ctx, p.config.Files.VLESSQRCode, link); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "%s\n", info)
	return link, nil
}

func (p *Provisioner) putQRCode(ctx context.Context, name, link string) error {
	if !p.config.QRCodes {
		return nil
	}
	png, err := render.QRCode(link)
	if err != nil {
		return err
	}
	return p.put(ctx, name, png, ModeSecret)
}

// put stores an artifact. Mirror failures are logged and do not fail the run.
func (p *Provisioner) put(ctx context.Context, name string, data []byte, mode os.FileMode) error {
	err := p.store.Put(ctx, name, data, mode)
	if errors.Is(err, interfaces.ErrMirrorFailed) {
		p.log.Warn("Artifact was not mirrored", slog.String("name", name), "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not write %s: %w", name, err)
	}
	p.log.Info("Wrote artifact", slog.String("name", name), slog.String("mode", mode.String()))
	return nil
}

// configPath is how the TUIC server config refers to an artifact.
func (p *Provisioner) configPath(name string) string {
	dir := p.config.OutputDir
	if dir == "" || dir == "." {
		return "./" + filepath.ToSlash(name)
	}
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return filepath.Join(dir, name)
	}
	return path
}
