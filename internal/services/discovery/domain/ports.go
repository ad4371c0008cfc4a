// Package domain defines the peer handshake contracts
package domain

import (
	nodedom "gitpulse/internal/services/node/domain"
)

// Ports carries the node machinery the handshake handlers drive
type Ports struct {
	Processor nodedom.ProcessorPort // required
	Graph     nodedom.GraphPort     // required
	Network   nodedom.NetworkPort   // required
	Cache     nodedom.CachePort     // required
}
