package models

import "time"

// AddressEntry is one network address seen for a principal
type AddressEntry struct {
	Address       string            `json:"address"`
	FirstSeen     time.Time         `json:"first_seen"`
	LastSeen      time.Time         `json:"last_seen"`
	SightingCount int               `json:"sighting_count"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Reasons an address sighting may be flagged
const (
	SuspicionNewAddress     = "new_address"
	SuspicionDormantAddress = "dormant_address"
	SuspicionAddressChurn   = "address_churn"
	SuspicionPrivateAddress = "private_address"
)

// AddressAnalysis is the advisory classification of a single sighting.
// It never locks anything; callers forward a SecurityEvent when IsSuspicious is set.
type AddressAnalysis struct {
	Principal            string   `json:"principal"`
	Address              string   `json:"address"`
	IsNewAddress         bool     `json:"is_new_address"`
	IsKnownAddress       bool     `json:"is_known_address"`
	IsPrivateAddress     bool     `json:"is_private_address"`
	DaysSinceLastSeen    *int     `json:"days_since_last_seen,omitempty"`
	RecentAddressChanges int      `json:"recent_address_changes"`
	TotalAddresses       int      `json:"total_addresses"`
	IsSuspicious         bool     `json:"is_suspicious"`
	Reasons              []string `json:"reasons,omitempty"`
}

// AddressHistoryStats summarizes the address history tracker state
type AddressHistoryStats struct {
	Backend           string        `json:"backend"`
	TrackedPrincipals int           `json:"tracked_principals"`
	MaxEntries        int           `json:"max_entries"`
	Retention         time.Duration `json:"retention"`
}
