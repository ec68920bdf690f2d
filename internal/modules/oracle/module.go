package oracle

import (
	"fmt"
	"strings"

	"paper_trader/internal/modules/config"
	"paper_trader/internal/modules/oracle/service"
	"paper_trader/internal/runner"
	"paper_trader/pkg/logger"

	"go.uber.org/fx"
)

const (
	ProviderLLM   = "llm"
	ProviderRules = "rules"
)

// Provider: решения для бота и текстовые обзоры для чата.
type Provider interface {
	runner.Oracle
	runner.Analyst
}

// New выбирает оракула по oracle.provider.
func New(cfg *config.Config) (Provider, error) {
	switch strings.ToLower(cfg.Oracle.Provider) {
	case ProviderLLM:
		logger.Info("[ORACLE] llm %s model=%s", cfg.Oracle.URL, cfg.Oracle.Model)
		return service.NewLLM(service.LLMConfig{
			URL:     cfg.Oracle.URL,
			APIKey:  cfg.Oracle.APIKey,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout,
		}), nil
	case ProviderRules, "":
		logger.Info("[ORACLE] local rules")
		return service.NewRules(), nil
	}
	return nil, fmt.Errorf("unknown oracle provider %q", cfg.Oracle.Provider)
}

func Module() fx.Option {
	return fx.Module("oracle",
		fx.Provide(
			New,
			func(p Provider) runner.Oracle { return p },
			func(p Provider) runner.Analyst { return p },
		),
	)
}
