package cancel

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGracePeriod is how long a run gets to unwind after the first
// interrupt before the process is forcibly terminated.
const DefaultGracePeriod = 10 * time.Second

// NotifySignals wires SIGINT/SIGTERM to the token. The first signal
// cancels the token and arms a grace timer that force-exits if
// shutdown has not completed in time; a second signal while the first
// is pending exits immediately.
func NotifySignals(token *Token, log zerolog.Logger, grace time.Duration) {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		var once sync.Once
		for sig := range sigChan {
			first := false
			once.Do(func() { first = true })

			if first {
				log.Warn().
					Str("signal", sig.String()).
					Dur("grace", grace).
					Msg("Interrupt received, stopping; waiting for in-flight work")
				token.Cancel("signal: " + sig.String())

				time.AfterFunc(grace, func() {
					log.Error().Msg("Shutdown grace period expired, terminating")
					os.Exit(1)
				})
				continue
			}

			log.Error().Str("signal", sig.String()).Msg("Second interrupt, terminating immediately")
			os.Exit(1)
		}
	}()
}
