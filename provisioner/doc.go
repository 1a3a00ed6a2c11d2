// Package provisioner generates the configuration artifacts of a TUIC server
// and a VLESS + REALITY Xray server.
//
// # Run order
//
// A run resolves every input that can fail fatally before it writes anything:
//
//  1. Load the REALITY key pair file (missing or malformed file aborts the run)
//  2. Take the output directory lock
//  3. Generate identities and pick the TUIC port
//  4. Ensure the TUIC certificate pair exists
//  5. Look up the public address once (falls back to 127.0.0.1)
//  6. Write the TUIC server config and link
//  7. Write the Xray server config and VLESS info
//
// # Idempotence
//
// The certificate pair is the only artifact that survives a run: when both
// the certificate and the key exist they are left untouched. Every other
// artifact is rewritten with fresh identities on each run.
//
// # Fallbacks
//
// UUID generation and the public address lookup never fail a run; their
// results are interfaces.Resolved values that record the fallback cause.
// Password generation, certificate issuance and key pair loading return errors.
package provisioner
