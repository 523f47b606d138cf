package ai

import "strings"

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	openAIConfig
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

func createOpenRouterEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	p := newOpenAICompatProvider("openrouter", defaultOpenRouterBaseURL, &cfg.openAIConfig)
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		p.headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		p.headers["X-Title"] = v
	}
	return p, nil
}

func init() {
	RegisterEmbed("openrouter", createOpenRouterEmbedFactory)
}
