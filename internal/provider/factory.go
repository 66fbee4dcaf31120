package provider

import (
	"context"
	"fmt"

	"syncengine/internal/config"

	"github.com/rs/zerolog"
)

// Factory builds adapters from per-workspace credentials. Unknown provider
// ids and malformed credentials are rejected here, at construction, so the
// worker only ever holds a usable adapter.
type Factory struct {
	cfg    config.ProvidersConfig
	source Source
	log    *zerolog.Logger
}

func NewFactory(cfg config.ProvidersConfig, source Source, logger *zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, source: source, log: logger}
}

// Calendar returns the calendar adapter for a workspace's provider.
func (f *Factory) Calendar(ctx context.Context, workspaceID int64, providerID string) (CalendarAdapter, error) {
	raw, err := f.source.Lookup(ctx, workspaceID, providerID)
	if err != nil {
		return nil, err
	}

	switch providerID {
	case CalCom:
		creds, err := calcomCredentials(raw)
		if err != nil {
			return nil, err
		}
		return newCalComAdapter(f.cfg.CalCom, creds), nil
	case Calendly:
		creds, err := calendlyCredentials(raw)
		if err != nil {
			return nil, err
		}
		return newCalendlyAdapter(f.cfg.Calendly, creds), nil
	case GHL:
		creds, err := ghlCredentials(raw)
		if err != nil {
			return nil, err
		}
		return newGHLAdapter(f.cfg.GHL, creds), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
}

// Messenger returns the inbox message sender for a workspace's provider.
func (f *Factory) Messenger(ctx context.Context, workspaceID int64, providerID string) (MessageSender, error) {
	if providerID != GHL {
		return nil, fmt.Errorf("%w: %q has no inbox", ErrUnknownProvider, providerID)
	}

	raw, err := f.source.Lookup(ctx, workspaceID, providerID)
	if err != nil {
		return nil, err
	}
	creds, err := ghlCredentials(raw)
	if err != nil {
		return nil, err
	}
	return newGHLAdapter(f.cfg.GHL, creds), nil
}
