package bcp

import "github.com/realkv/lab-bcp/internal/constants"

// Re-export commonly referenced constants for the public API.
const (
	DefaultMFSScale     = constants.DefaultMFSScale
	DefaultMTU          = constants.DefaultMTU
	DefaultMAL          = constants.DefaultMAL
	MaxRecommendedMAL   = constants.MaxRecommendedMAL
	MaxRecommendedScale = constants.MaxRecommendedScale
	DefaultQueueDepth   = constants.DefaultQueueDepth
	DefaultSyncTimeout  = constants.DefaultSyncTimeout
)
