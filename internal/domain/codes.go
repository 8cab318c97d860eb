package domain

// Reason and error codes. They travel as plain strings in ordered reason
// lists so that transports can return them without translation.
const (
	CodeInvalidManifestFormat  = "invalid_manifest_format"
	CodeManifestBindingMissing = "manifest_binding_missing"
	CodeContentBindingMismatch = "content_binding_mismatch"
	CodeSignatureInvalid       = "signature_invalid"

	CodeAttestationInvalidChain       = "attestation_invalid_chain"
	CodeAttestationExpired            = "attestation_expired"
	CodeAttestationUntrustedRoot      = "attestation_untrusted_root"
	CodeAttestationChallengeMismatch  = "attestation_challenge_mismatch"
	CodeAttestationExtensionMissing   = "attestation_extension_missing"
	CodeAttestationExtensionUnparsed  = "attestation_extension_unparsed"
	CodeAttestationOSVersionPlaceheld = "os_version_placeholder"
	CodeAttestationBelowPolicy        = "security_level_below_policy"
	CodeAttestationSoftwareRejected   = "software_key_rejected"

	CodeReplayDetected        = "replay_detected"
	CodeDeviceRevoked         = "device_revoked"
	CodeDeviceUnknown         = "device_unknown"
	CodeDeviceBindingRequired = "device_binding_required"
	CodeDeviceKeyMismatch     = "device_key_mismatch"

	CodeContentBindingOK    = "content_binding_ok"
	CodeSignatureOK         = "signature_ok"
	CodeCertChainOK         = "cert_chain_ok"
	CodeAttestationPresent  = "attestation_present"
	CodeNoManifest          = "no_manifest"
	CodeHeuristicModePrefix = "heuristic_score:"

	CodeInternalError = "internal_error"
)
