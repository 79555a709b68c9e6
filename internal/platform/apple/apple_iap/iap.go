package apple_iap

import (
	"errors"

	"github.com/awa/go-iap/appstore/api"

	"github.com/fablecast/entitlement/pkg/config"
)

// NewStoreClient builds an App Store Server API client from the apple_iap
// config section. Non-prod configs talk to the sandbox.
func NewStoreClient(cfg *config.Config) (*api.StoreClient, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	c := &api.StoreConfig{
		KeyContent: []byte(cfg.AppleIAP.KeyContent),
		KeyID:      cfg.AppleIAP.KeyID,
		BundleID:   cfg.AppleIAP.BundleID,
		Issuer:     cfg.AppleIAP.Issuer,
		Sandbox:    !cfg.AppleIAP.IsProd,
	}
	return api.NewStoreClient(c), nil
}
