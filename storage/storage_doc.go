// Package storage persists generated artifacts.
//
// The local file system is always the primary backend: it is what the proxy
// servers read their configuration and certificates from. Additional backends
// can mirror every artifact for backup or for distribution to other hosts:
//
//   - S3-compatible object storage
//   - HashiCorp Vault KV v2
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///etc/proxy/ or file://./relative/dir
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=https://s3.example.com&path_style=true
//   - vault://vault.example.com:8200/secret/proxy?tls=true
//
// S3 without embedded credentials uses the default AWS credential chain.
// Vault reads its token from VAULT_TOKEN.
//
// # Write semantics
//
// The file backend writes atomically (temporary file and rename) and sets the
// requested permission bits explicitly, independent of the process umask.
// MultiBackend fails a write when the primary fails; mirror failures are
// logged and reported with interfaces.ErrMirrorFailed.
package storage
