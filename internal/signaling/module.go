package signaling

import (
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
)

// Module provides the signaling client and its token source.
var Module = fx.Module("signaling",
	fx.Provide(
		NewTokenSourceFromConfig,
		NewClientFromConfig,
	),
)

// NewTokenSourceFromConfig picks a file-backed token when token_file is set.
func NewTokenSourceFromConfig(cfg *config.Config) TokenSource {
	if cfg.Backend.TokenFile != "" {
		return NewFileToken(cfg.Backend.TokenFile)
	}

	return StaticToken(cfg.Backend.Token)
}

// NewClientFromConfig builds a client bounded by the configured request timeout.
func NewClientFromConfig(cfg *config.Config, logger *zap.Logger, tokens TokenSource) *Client {
	httpClient := &http.Client{Timeout: cfg.Backend.RequestTimeout}

	return NewClient(logger, cfg.Backend.BaseURL, httpClient, tokens)
}
