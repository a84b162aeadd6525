// Package stack6log provides the ambient logging helpers of this core: a
// [slog.Logger] constructor matching the teacher's own CLI logging setup,
// and a goroutine panic-recovery wrapper for the RX loops that run
// unsupervised.
package stack6log

import (
	"context"
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// New returns a [*slog.Logger] configured the way the teacher's CLI
// configures its own: plain text by default, debug level when verbose is
// requested. Adapted from AdGuardHome's internal/home.newSlogLogger,
// minus the config-file/syslog plumbing this core's CLI doesn't need.
func New(verbose bool) (l *slog.Logger) {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatAdGuardLegacy,
		Level:        lvl,
		AddTimestamp: true,
	})
}

// Recover is deferred at the top of the two receive loops this core
// spawns (ip6stack's and dhcp6client's) so a panic is logged rather than
// crashing the whole process, matching dhcpsvc/handle.go's
// `defer slogutil.RecoverAndLog(ctx, srv.logger)` pattern.
func Recover(ctx context.Context, l *slog.Logger) {
	slogutil.RecoverAndLog(ctx, l)
}
