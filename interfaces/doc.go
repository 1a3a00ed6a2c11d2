// Package interfaces defines the types shared by the provisioning packages
// and the contracts between the provisioner and its collaborators.
//
// # Collaborators
//
// IdentitySource: generates user UUIDs and passwords.
//
// CertificateIssuer: produces a self-signed key and certificate pair.
//
// AddressResolver: discovers the public address of the host.
//
// ArtifactBackend: stores generated artifacts (local files, S3, Vault).
//
// # Fallbacks
//
// Resolved carries a value together with the error that caused a fallback
// value to be used. Collaborators whose failure must not stop a run return
// Resolved instead of (value, error).
//
// # Errors
//
// Sentinel errors are declared next to the types they relate to and are
// meant to be matched with errors.Is.
package interfaces
