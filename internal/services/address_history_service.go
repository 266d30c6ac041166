package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
)

const addressHistoryPrefix = "history:"

const recentChangeWindow = 24 * time.Hour

// AddressHistoryConfig holds configuration for the address history tracker
type AddressHistoryConfig struct {
	MaxEntries int
	Retention  time.Duration
	StaleAfter time.Duration // a known address unseen for longer than this is flagged as dormant
	ChurnLimit int           // more distinct addresses than this in 24h is flagged
}

// DefaultAddressHistoryConfig returns the default address history settings
func DefaultAddressHistoryConfig() AddressHistoryConfig {
	return AddressHistoryConfig{
		MaxEntries: 10,
		Retention:  90 * 24 * time.Hour,
		StaleAfter: 30 * 24 * time.Hour,
		ChurnLimit: 3,
	}
}

// AddressHistoryService keeps a bounded, most-recent-first list of network
// addresses per principal and classifies each new sighting.
// Classification is advisory; nothing here locks accounts or raises alerts.
type AddressHistoryService struct {
	store  kvstore.Store
	config AddressHistoryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAddressHistoryService creates a new AddressHistoryService
func NewAddressHistoryService(store kvstore.Store, config AddressHistoryConfig, logger *slog.Logger) *AddressHistoryService {
	defaults := DefaultAddressHistoryConfig()
	if config.MaxEntries < 1 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.ChurnLimit < 1 {
		config.ChurnLimit = defaults.ChurnLimit
	}

	return &AddressHistoryService{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *AddressHistoryService) WithClock(now func() time.Time) *AddressHistoryService {
	s.now = now
	return s
}

// RecordSighting adds or refreshes address in the principal's history and returns its classification
func (s *AddressHistoryService) RecordSighting(ctx context.Context, principal, address string, metadata map[string]string) (*models.AddressAnalysis, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return nil, models.ErrInvalidPrincipal
	}
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	address = addr.String()

	now := s.now()
	history := s.load(ctx, principal)
	hadHistory := len(history) > 0

	analysis := &models.AddressAnalysis{
		Principal:        principal,
		Address:          address,
		IsPrivateAddress: isPrivateAddress(addr),
	}

	idx := indexOfAddress(history, address)
	if idx >= 0 {
		entry := &history[idx]
		days := int(now.Sub(entry.LastSeen).Hours() / 24)
		analysis.DaysSinceLastSeen = &days
		analysis.IsKnownAddress = true
		if now.Sub(entry.LastSeen) > s.config.StaleAfter {
			analysis.Reasons = append(analysis.Reasons, models.SuspicionDormantAddress)
		}

		entry.LastSeen = now
		entry.SightingCount++
		if len(metadata) > 0 {
			if entry.Metadata == nil {
				entry.Metadata = make(map[string]string, len(metadata))
			}
			maps.Copy(entry.Metadata, metadata)
		}
	} else {
		analysis.IsNewAddress = hadHistory
		if analysis.IsNewAddress {
			analysis.Reasons = append(analysis.Reasons, models.SuspicionNewAddress)
		}

		history = append(history, models.AddressEntry{
			Address:       address,
			FirstSeen:     now,
			LastSeen:      now,
			SightingCount: 1,
			Metadata:      maps.Clone(metadata),
		})
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].LastSeen.After(history[j].LastSeen)
	})
	if len(history) > s.config.MaxEntries {
		history = history[:s.config.MaxEntries]
	}

	s.save(ctx, principal, history)

	cutoff := now.Add(-recentChangeWindow)
	for _, e := range history {
		if !e.LastSeen.Before(cutoff) {
			analysis.RecentAddressChanges++
		}
	}
	analysis.TotalAddresses = len(history)

	if analysis.RecentAddressChanges > s.config.ChurnLimit {
		analysis.Reasons = append(analysis.Reasons, models.SuspicionAddressChurn)
	}
	if analysis.IsPrivateAddress {
		analysis.Reasons = append(analysis.Reasons, models.SuspicionPrivateAddress)
	}
	analysis.IsSuspicious = len(analysis.Reasons) > 0

	if analysis.IsSuspicious {
		for _, reason := range analysis.Reasons {
			metrics.SuspiciousSightingsTotal.WithLabelValues(reason).Inc()
		}
		s.logger.Info("suspicious address sighting",
			slog.String("principal", principal),
			slog.String("address", address),
			slog.Any("reasons", analysis.Reasons),
			slog.Int("recent_address_changes", analysis.RecentAddressChanges))
	}

	return analysis, nil
}

// GetHistory returns the principal's addresses, most recently seen first
func (s *AddressHistoryService) GetHistory(ctx context.Context, principal string) ([]models.AddressEntry, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return nil, models.ErrInvalidPrincipal
	}
	history := s.load(ctx, principal)
	if history == nil {
		history = []models.AddressEntry{}
	}
	return history, nil
}

// IsKnownAddress reports whether address is in the principal's retained history
func (s *AddressHistoryService) IsKnownAddress(ctx context.Context, principal, address string) (bool, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return false, models.ErrInvalidPrincipal
	}
	addr, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	return indexOfAddress(s.load(ctx, principal), addr.String()) >= 0, nil
}

// ClearHistory forgets every address recorded for principal
func (s *AddressHistoryService) ClearHistory(ctx context.Context, principal string) error {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return models.ErrInvalidPrincipal
	}

	if err := s.store.Delete(ctx, addressHistoryPrefix+principal); err != nil {
		s.logger.Error("failed to clear address history",
			slog.String("principal", principal),
			slog.Any("error", err))
		return nil
	}

	s.logger.Info("address history cleared", slog.String("principal", principal))
	return nil
}

// GetStats reports how many principals have a retained history
func (s *AddressHistoryService) GetStats(ctx context.Context) *models.AddressHistoryStats {
	stats := &models.AddressHistoryStats{
		Backend:    s.store.Backend(),
		MaxEntries: s.config.MaxEntries,
		Retention:  s.config.Retention,
	}

	keys, err := s.store.Keys(ctx, addressHistoryPrefix+"*")
	if err != nil {
		s.logger.Error("failed to list address histories", slog.Any("error", err))
		return stats
	}
	stats.TrackedPrincipals = len(keys)
	return stats
}

func (s *AddressHistoryService) load(ctx context.Context, principal string) []models.AddressEntry {
	raw, err := s.store.Get(ctx, addressHistoryPrefix+principal)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Error("failed to load address history",
				slog.String("principal", principal),
				slog.Any("error", err))
		}
		return nil
	}

	var history []models.AddressEntry
	if err := json.Unmarshal(raw, &history); err != nil {
		s.logger.Error("discarding corrupt address history",
			slog.String("principal", principal),
			slog.Any("error", err))
		return nil
	}
	return history
}

// save rewrites the whole record, refreshing its retention TTL
func (s *AddressHistoryService) save(ctx context.Context, principal string, history []models.AddressEntry) {
	raw, err := json.Marshal(history)
	if err != nil {
		s.logger.Error("failed to encode address history", slog.Any("error", err))
		return
	}

	if err := s.store.Set(ctx, addressHistoryPrefix+principal, raw, s.config.Retention); err != nil {
		s.logger.Error("failed to persist address history",
			slog.String("principal", principal),
			slog.Any("error", err))
	}
}

func indexOfAddress(history []models.AddressEntry, address string) int {
	for i := range history {
		if history[i].Address == address {
			return i
		}
	}
	return -1
}

func parseAddress(address string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%q: %w", address, models.ErrInvalidAddress)
	}
	return addr.Unmap().WithZone(""), nil
}

// RFC 6598 shared address space used by carrier-grade NAT
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// isPrivateAddress covers RFC 1918, RFC 4193, RFC 6598, loopback, link-local
// and unspecified ranges for both families
func isPrivateAddress(addr netip.Addr) bool {
	return addr.IsPrivate() ||
		sharedAddressSpace.Contains(addr) ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
