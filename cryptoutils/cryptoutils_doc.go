// Package cryptoutils provides the cryptographic primitives used by the provisioner.
//
// It covers three small concerns:
//
//   - Self-signed ECDSA P-256 certificates for the TUIC server
//   - x25519 key pairs for the REALITY transport, encoded the way Xray expects them
//   - Random hex secrets used as user passwords
//
// # Certificates
//
// GenerateSelfSignedCertificate returns a PKCS#8 "PRIVATE KEY" PEM block and a
// "CERTIFICATE" PEM block. The certificate carries the requested name both as
// the subject common name and as a DNS subject alternative name, so clients
// that ignore the common name still match it against the SNI they send.
//
// VerifyCertificate checks that a certificate matches a private key and an
// expected common name. It accepts keys in PKCS#8, SEC 1 ("EC PRIVATE KEY")
// and PKCS#1 form, which covers what both Go and openssl produce.
//
// # REALITY keys
//
// REALITY keys are raw 32-byte x25519 scalars and points encoded with
// base64.RawURLEncoding. The public key is derived from the private key with
// curve25519.X25519(private, curve25519.Basepoint).
package cryptoutils
