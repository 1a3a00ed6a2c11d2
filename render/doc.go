// Package render turns provisioning parameters into artifact contents.
//
// Every function here is pure: it takes the values resolved for one run and
// returns bytes or strings, so the provisioner can render all artifacts before
// writing any of them.
//
// Formats:
//
//   - TUIC server configuration: TOML, encoded with go-toml
//   - Xray server configuration: JSON, two-space indentation
//   - Share links: tuic:// and vless:// URIs with parameters in a fixed order
//   - VLESS info: a short plain-text summary ending with the share link
//   - QR codes: PNG images of share links
package render
