package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/token"
)

// CleanupTokens deletes every expired or exhausted token from the
// configured store and logs the count. Intended for periodic invocation
// from a scheduler, not request-path code.
func CleanupTokens(cfg *config.Config) {
	store, err := token.Open(cfg.DB)
	if err != nil {
		log.Fatalf("failed to open token store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	deleted, err := store.DeleteExpired(time.Now())
	if err != nil {
		log.Fatalf("cleanup failed: %v", err)
	}
	log.Infof("deleted %d expired/exhausted token(s)", deleted)
}
