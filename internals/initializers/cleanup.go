package initializers

import (
	"context"
	"log"
	"time"

	"passkey-auth/internals/config"
	"passkey-auth/internals/store"
)

// Revoked sessions and consumed refresh tokens stick around this long so
// breach investigations can reconstruct a rotation chain.
const purgeRetention = 7 * 24 * time.Hour

func StartCleanup(st store.Store) {
	cleanupInterval := config.GetEnvAsInt("CLEANUP_INTERVAL_MINUTES", 30, true)
	ticker := time.NewTicker(time.Duration(cleanupInterval) * time.Minute)

	go func() {
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			result, err := st.PurgeExpired(ctx, time.Now(), purgeRetention)
			cancel()
			if err != nil {
				log.Printf("Janitor: purge failed: %v", err)
				continue
			}

			if result.Challenges > 0 || result.Sessions > 0 || result.RefreshTokens > 0 {
				log.Printf("Janitor: Cleaned %d challenges, %d sessions, and %d refresh tokens",
					result.Challenges, result.Sessions, result.RefreshTokens)
			} else {
				log.Printf("Janitor: No expired rows found")
			}
		}
	}()
}
