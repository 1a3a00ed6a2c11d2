package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"

	"github.com/ruteri/proxy-provisioning/cmd/flags"
	"github.com/ruteri/proxy-provisioning/interfaces"
	"github.com/ruteri/proxy-provisioning/provisioner"
	"github.com/ruteri/proxy-provisioning/publicip"
	"github.com/ruteri/proxy-provisioning/storage"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "YAML file with flag values. Flags and environment variables take precedence",
	EnvVars: []string{"PROVISION_CONFIG"},
}

var outputFlags []cli.Flag = []cli.Flag{
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "output-dir",
		Value:   ".",
		Usage:   "directory to write artifacts to and read the REALITY key pair from",
		EnvVars: []string{"OUTPUT_DIR"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "reality-keys-file",
		Value:   provisioner.DefaultConfig().Files.RealityKeys,
		Usage:   "REALITY key pair file name, relative to the output directory",
		EnvVars: []string{"REALITY_KEYS_FILE"},
	}),
	altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
		Name:    "mirror",
		Usage:   "storage URI to mirror artifacts to (s3://[key:secret@]bucket/prefix, vault://host:port/mount/path, file:///dir). Can be repeated",
		EnvVars: []string{"MIRROR_URIS"},
	}),
	altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "qr",
		Usage:   "also write QR code images of the share links",
		EnvVars: []string{"QR_CODES"},
	}),
}

var serverFlags []cli.Flag = []cli.Flag{
	altsrc.NewIntFlag(&cli.IntFlag{
		Name:    "server-port",
		Usage:   "TUIC listen port. 0 picks a random port in [20000, 60000)",
		EnvVars: []string{"SERVER_PORT"},
	}),
	altsrc.NewIntFlag(&cli.IntFlag{
		Name:    "vless-port",
		Value:   provisioner.DefaultConfig().VLESSPort,
		Usage:   "VLESS + REALITY listen port",
		EnvVars: []string{"VLESS_PORT"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "masquerade-domain",
		Value:   provisioner.DefaultConfig().MasqueradeDomain,
		Usage:   "domain used as certificate subject, SNI and REALITY server name",
		EnvVars: []string{"MASQUERADE_DOMAIN"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "reality-dest",
		Usage:   "REALITY fallback target. Defaults to <masquerade domain>:443",
		EnvVars: []string{"REALITY_DEST"},
	}),
	altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:    "cert-validity",
		Value:   provisioner.DefaultConfig().CertificateValidity,
		Usage:   "validity of a newly issued certificate",
		EnvVars: []string{"CERT_VALIDITY"},
	}),
}

var collaboratorFlags []cli.Flag = []cli.Flag{
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "identity-source",
		Value:   sourceNative,
		Usage:   "how UUIDs and passwords are generated: native or command",
		EnvVars: []string{"IDENTITY_SOURCE"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "cert-issuer",
		Value:   sourceNative,
		Usage:   "how the TUIC certificate is issued: native or openssl",
		EnvVars: []string{"CERT_ISSUER"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "openssl-binary",
		Value:   "openssl",
		Usage:   "openssl executable used by the openssl issuer",
		EnvVars: []string{"OPENSSL_BINARY"},
	}),
	altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
		Name:    "ip-resolver",
		Value:   cli.NewStringSlice(resolverHTTP, resolverDNS),
		Usage:   "public address resolvers tried in order: http, dns or command",
		EnvVars: []string{"IP_RESOLVERS"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "ip-service-url",
		Value:   publicip.DefaultServiceURL,
		Usage:   "plain text IP service queried by the http and command resolvers",
		EnvVars: []string{"IP_SERVICE_URL"},
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "dns-server",
		Value:   publicip.OpenDNSServer,
		Usage:   "DNS server answering the dns resolver query",
		EnvVars: []string{"DNS_SERVER"},
	}),
	altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "dns-ipv6",
		Usage:   "ask the dns resolver for an AAAA record instead of an A record",
		EnvVars: []string{"DNS_IPV6"},
	}),
}

const usage string = `TUIC and VLESS + REALITY provisioning tool
Writes into the output directory:
* server.toml, tuic-cert.pem, tuic-key.pem and tuic_link.txt for a TUIC server
* xray.json and vless_reality_info.txt for an Xray VLESS + REALITY server
The REALITY key pair is read from reality_keys.json, see the reality-keygen command.`

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	appFlags := slices.Concat([]cli.Flag{configFlag}, outputFlags, serverFlags, collaboratorFlags,
		flags.CommonFlags, []cli.Flag{flags.LogServiceFlagFn("proxy-provisioning")})

	generate := func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		p, err := newProvisioner(cCtx, out, logger)
		if err != nil {
			return err
		}
		_, err = p.Run(cCtx.Context)
		return err
	}

	return &cli.App{
		Name:   "provision",
		Usage:  usage,
		Flags:  appFlags,
		Before: altsrc.InitInputSourceWithContext(appFlags, altsrc.NewYamlSourceFromFlagFunc(configFlag.Name)),
		Action: generate,
		Commands: []*cli.Command{
			{
				Name:   "generate",
				Usage:  "write every artifact (default)",
				Action: generate,
			},
			{
				Name:  "cert",
				Usage: "only issue the TUIC certificate pair if it is missing",
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					p, err := newProvisioner(cCtx, out, logger)
					if err != nil {
						return err
					}
					unlock, err := p.Lock()
					if err != nil {
						return err
					}
					defer unlock()

					_, err = p.EnsureCertificate(cCtx.Context)
					return err
				},
			},
			{
				Name:  "reality-keygen",
				Usage: "generate the REALITY key pair file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing key pair",
					},
				},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					store, err := newStore(cCtx, logger)
					if err != nil {
						return err
					}

					name := cCtx.String("reality-keys-file")
					keys, err := provisioner.GenerateRealityKeyPair(cCtx.Context, store, name, cCtx.Bool("force"))
					if errors.Is(err, interfaces.ErrMirrorFailed) {
						logger.Warn("Key pair was not mirrored", "err", err)
					} else if err != nil {
						return err
					}

					logger.Info("Generated REALITY key pair", slog.String("location", store.LocationURI()), slog.String("name", name))
					fmt.Fprintf(out, "PublicKey: %s\n", keys.PublicKey)
					return nil
				},
			},
		},
	}
}

func newConfig(cCtx *cli.Context) provisioner.Config {
	cfg := provisioner.DefaultConfig()
	cfg.OutputDir = cCtx.String("output-dir")
	cfg.Files.RealityKeys = cCtx.String("reality-keys-file")
	cfg.QRCodes = cCtx.Bool("qr")
	cfg.TUICPort = cCtx.Int("server-port")
	cfg.VLESSPort = cCtx.Int("vless-port")
	cfg.MasqueradeDomain = cCtx.String("masquerade-domain")
	cfg.RealityDest = cCtx.String("reality-dest")
	cfg.CertificateValidity = cCtx.Duration("cert-validity")
	return cfg
}

func newStore(cCtx *cli.Context, logger *slog.Logger) (*storage.MultiBackend, error) {
	factory := storage.NewStorageBackendFactory(logger)
	store, _, err := factory.CreateMultiBackend(cCtx.String("output-dir"), cCtx.StringSlice("mirror"))
	if err != nil {
		return nil, fmt.Errorf("could not set up storage: %w", err)
	}
	return store, nil
}

func newProvisioner(cCtx *cli.Context, out io.Writer, logger *slog.Logger) (*provisioner.Provisioner, error) {
	cfg := newConfig(cCtx)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	identities, err := identitySourceFor(cCtx.String("identity-source"))
	if err != nil {
		return nil, err
	}
	issuer, err := issuerFor(cCtx.String("cert-issuer"), cCtx.String("openssl-binary"))
	if err != nil {
		return nil, err
	}
	resolver, err := resolverFor(cCtx.StringSlice("ip-resolver"), resolverOptions{
		ServiceURL: cCtx.String("ip-service-url"),
		DNSServer:  cCtx.String("dns-server"),
		DNSIPv6:    cCtx.Bool("dns-ipv6"),
		Timeout:    publicip.DefaultTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cCtx, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Provisioner configured",
		slog.String("output_dir", cfg.OutputDir),
		slog.String("identity_source", cCtx.String("identity-source")),
		slog.String("cert_issuer", issuer.Name()),
		slog.String("resolver", resolver.Name()),
		slog.Int("mirrors", len(store.Mirrors())))

	return provisioner.NewProvisioner(cfg, store, identities, issuer, resolver, out, logger)
}
