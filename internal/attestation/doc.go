// Package attestation verifies hardware key attestation evidence.
//
// Android chains are checked for validity, root trust and the Key Attestation
// extension (OID 1.3.6.1.4.1.11129.2.1.17). Apple App Attest objects are CBOR
// documents carrying an x5c chain and authenticator data. Both verifiers are
// total functions: malformed input produces an AttestationResult with error
// codes, never a panic or a Go error.
//
// The permissive behaviours of earlier releases are explicit Options rather
// than silent bypasses:
//
//   - RootTrustAllowAll accepts any chain root; RootTrustRejectUnknown requires
//     the root fingerprint to be listed in TrustedRoots.
//   - MissingExtensionAllowSoftware accepts an Android leaf without the
//     attestation extension as a software key; MissingExtensionReject fails it.
//   - ParseModeLegacy reproduces the substring heuristics and placeholder OS
//     fields; ParseModeStrict decodes the ASN.1 KeyDescription.
package attestation
