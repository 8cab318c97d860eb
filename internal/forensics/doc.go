// Package forensics computes non-cryptographic authenticity signals for
// assets that arrive without a manifest: EXIF metadata, JPEG marker
// structure and pixel-domain detectors (glare, moiré, pixel grid, depth
// flatness). The signals are fused into a 0-100 confidence score.
//
// Nothing here fails on bad input. Undecodable images yield zero signals.
package forensics
