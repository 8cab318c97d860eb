// Package manifest decodes, verifies and produces C2PA-style manifests.
//
// A manifest is a JSON document with three required top-level members:
//
//	{
//	  "version": "1",
//	  "signature": {"alg": "ES256", "publicKey": "...", "value": "...", "certChain": [...]},
//	  "assertions": {
//	    "c2pa.hash.data": {"alg": "sha256", "hash": "<hex>"},
//	    "popc.device.id": "<device id>",
//	    "c2pa.timestamp": "<RFC 3339>",
//	    "popc.sequence": 7
//	  }
//	}
//
// The signature covers the JCS canonical form of the assertions object (with
// any "signature" member removed). A raw signature is computed over the
// SHA-256 of that canonical form; a compact JWS carries it as payload.
package manifest
