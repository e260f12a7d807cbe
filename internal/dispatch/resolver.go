package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"response-service/internal/channels"
	"response-service/internal/models"
)

// PreferenceStore looks up explicit per-channel preference records.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID int, category string) ([]models.Preference, error)
}

// Resolver maps a (user, category) pair to the channels enabled for it.
// Channels without an explicit preference record are enabled, and lookup
// failures degrade to the full default set: a misconfigured or unreachable
// preference store must never swallow a critical notification.
type Resolver struct {
	store    PreferenceStore
	registry *channels.Registry
	logger   *logrus.Logger
}

func NewResolver(store PreferenceStore, registry *channels.Registry, logger *logrus.Logger) *Resolver {
	return &Resolver{store: store, registry: registry, logger: logger}
}

// Resolve returns the enabled channels for the user and category. It never
// returns an error; only an explicit enabled=false record removes a channel.
func (r *Resolver) Resolve(ctx context.Context, userID int, category string) []channels.Channel {
	enabled := make(map[string]bool)
	for _, name := range r.registry.Names() {
		enabled[name] = true
	}

	prefs, err := r.store.GetPreferences(ctx, userID, category)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"category": category,
			"error":    err,
		}).Warn("Preference lookup failed, defaulting to all channels")
		prefs = nil
	}
	for _, p := range prefs {
		if _, known := enabled[p.Channel]; known {
			enabled[p.Channel] = p.Enabled
		}
	}

	var out []channels.Channel
	for _, name := range r.registry.Names() {
		if !enabled[name] {
			continue
		}
		if ch, ok := r.registry.Get(name); ok {
			out = append(out, ch)
		}
	}
	return out
}
