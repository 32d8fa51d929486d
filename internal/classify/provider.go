package classify

import (
	"context"
	"errors"

	"github.com/abelbrown/gamepulse/internal/store"
)

// ErrUnavailable is returned when a provider cannot be reached.
var ErrUnavailable = errors.New("classifier unavailable")

// Provider is the interface for classifiers
type Provider interface {
	// Name returns the provider name (e.g., "ollama", "dictionary")
	Name() string

	// Available returns true if the provider is configured and ready
	Available(ctx context.Context) bool

	// Classify guesses the game a post is about. A post about no game
	// yields None and a nil error.
	Classify(ctx context.Context, p store.Post) (Guess, Response, error)
}

// Response is the raw provider output kept for auditing.
type Response struct {
	Content     string
	Model       string
	RawResponse string // The raw API response body for logging/debugging
}

// ProviderManager picks a provider with fallback
type ProviderManager struct {
	providers []Provider
	preferred string // Preferred provider name
}

// NewProviderManager creates a new provider manager
func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		providers: make([]Provider, 0),
	}
}

// AddProvider adds a provider to the manager
func (pm *ProviderManager) AddProvider(p Provider) {
	pm.providers = append(pm.providers, p)
}

// SetPreferred sets the preferred provider by name
func (pm *ProviderManager) SetPreferred(name string) {
	pm.preferred = name
}

// GetAvailable returns the preferred provider when it is available,
// otherwise the first available one, otherwise nil.
func (pm *ProviderManager) GetAvailable(ctx context.Context) Provider {
	if pm.preferred != "" {
		for _, p := range pm.providers {
			if p.Name() == pm.preferred && p.Available(ctx) {
				return p
			}
		}
	}

	for _, p := range pm.providers {
		if p.Name() != pm.preferred && p.Available(ctx) {
			return p
		}
	}
	return nil
}

// GetByName returns a provider by name, available or not.
func (pm *ProviderManager) GetByName(name string) Provider {
	for _, p := range pm.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Names returns every registered provider name in registration order.
func (pm *ProviderManager) Names() []string {
	names := make([]string, 0, len(pm.providers))
	for _, p := range pm.providers {
		names = append(names, p.Name())
	}
	return names
}
