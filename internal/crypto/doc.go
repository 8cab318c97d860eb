// Package crypto provides the hash and signature primitives used by the
// manifest codec and the attestation verifiers: content digests, key
// fingerprints, public key import and ECDSA/EdDSA verification in both raw
// and compact-JWS form.
//
// All verification functions are total: malformed keys or signatures yield an
// error, never a panic.
package crypto
