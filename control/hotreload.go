// control/hotreload.go
// Re-reads the configuration file and pushes it through a ConfigStore.

package control

import (
	"go.uber.org/zap"
)

// Reload loads path again and publishes the result to store. On failure the
// active configuration is kept.
func Reload(path string, store *ConfigStore, log *zap.Logger) error {
	cfg, err := LoadConfig(path)
	if err == nil {
		err = store.Update(cfg)
	}
	if err != nil {
		log.Warn("config reload rejected", zap.String("path", path), zap.Error(err))
		return err
	}
	log.Info("config reloaded",
		zap.String("path", path),
		zap.String("log_level", cfg.Log.Level),
		zap.Duration("flush_interval", cfg.FlushInterval))
	return nil
}
