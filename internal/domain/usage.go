package domain

import "time"

// UsageEvent records one authenticated API call. Written after the response.
// PeerID is the client SPIFFE ID when the call arrived over mutual TLS.
type UsageEvent struct {
	KeyName  string        `json:"keyName"`
	PeerID   string        `json:"peerId,omitempty"`
	Route    string        `json:"route"`
	Status   int           `json:"status"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
}
