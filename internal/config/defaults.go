package config

// ApplyDefaults sets default values for any zero values in cfg.
// Defaults match a CLIP ViT-B/32 export: 512-dim embeddings, 224px inputs,
// 77-token context.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "/usr/local/var/umekomi/models"
	}
	if cfg.Model.Dimensions == 0 {
		cfg.Model.Dimensions = 512
	}
	if cfg.Model.ImageSize == 0 {
		cfg.Model.ImageSize = 224
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 77
	}
	if cfg.Model.CacheSize == 0 {
		cfg.Model.CacheSize = 10000
	}
}
