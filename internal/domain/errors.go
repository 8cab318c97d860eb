package domain

import (
	"errors"
)

// Sentinel errors for common domain failures
// Use with errors.Is() for checking and fmt.Errorf("%w", ...) for wrapping with context

var (
	// ErrUnsupportedHash indicates a content binding names an unknown digest algorithm
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")

	// ErrUnsupportedAlgorithm indicates a signature algorithm outside ES256/ES384/ES512/EdDSA
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

	// ErrInvalidPublicKey indicates the signer key could not be imported
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrUnsupportedPlatform indicates an enrollment for an unknown attestation platform
	ErrUnsupportedPlatform = errors.New("unsupported attestation platform")

	// ErrDeviceRevoked indicates an operation on a device that has been revoked
	ErrDeviceRevoked = errors.New("device is revoked")

	// ErrInvalidPolicy indicates policy rules could not be decoded
	ErrInvalidPolicy = errors.New("invalid policy rules")
)

// Validation errors for specific entities

var (
	// ErrDeviceInvalid indicates device validation failed
	ErrDeviceInvalid = errors.New("device validation failed")

	// ErrRecordInvalid indicates verification record validation failed
	ErrRecordInvalid = errors.New("verification record validation failed")
)
