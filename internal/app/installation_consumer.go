/**
 * @description
 * Consumer for wallet installation callbacks. The Apple/Google wallet
 * collaborator services publish an event when a pass artifact is installed on
 * a device; this consumer updates the per-provider installation bookkeeping on
 * the pass record.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/internal/store"
)

// WalletInstallationEvent is the message published by the wallet collaborators
// when an artifact lands on (or is removed from) a device.
type WalletInstallationEvent struct {
	Key        domain.PassKey        `json:"key"`
	Provider   domain.WalletProvider `json:"provider"`
	Installed  bool                  `json:"installed"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// InstallationConsumer applies wallet installation events to the store.
type InstallationConsumer struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewInstallationConsumer creates a consumer bound to the repository.
func NewInstallationConsumer(repo store.Repository, logger *slog.Logger) *InstallationConsumer {
	return &InstallationConsumer{repo: repo, logger: logger.With("component", "installation_consumer")}
}

// HandleMessage decodes and applies one event. It returns true when the
// message should be acked; unknown passes are acked too, since retrying a
// callback for a pass that never existed cannot succeed.
func (c *InstallationConsumer) HandleMessage(body []byte) bool {
	var event WalletInstallationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error("undecodable installation event; dropping", "err", err)
		return true
	}

	if err := c.processEvent(context.Background(), event); err != nil {
		if errors.Is(err, store.ErrPassNotFound) {
			c.logger.Warn("installation event for unknown pass; dropping", "key", event.Key.String())
			return true
		}
		c.logger.Error("failed to apply installation event", "key", event.Key.String(), "err", err)
		return false
	}
	return true
}

func (c *InstallationConsumer) processEvent(ctx context.Context, event WalletInstallationEvent) error {
	status := domain.InstallationStatusInstalled
	if !event.Installed {
		status = domain.InstallationStatusPending
	}
	return c.repo.SetInstallationStatus(ctx, event.Key, event.Provider, status)
}
