package storage

import (
	"context"
	"time"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/models"
	"github.com/rs/zerolog"
)

const journalTimeout = 5 * time.Second

// Journal returns a ledger observer that persists every event to store.
// Write failures are logged; the ledger stays authoritative.
func Journal(store Storage, log zerolog.Logger) func(ledger.Event) {
	return func(ev ledger.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := store.CreateLedgerEvent(ctx, models.NewLedgerEvent(ev)); err != nil {
			log.Error().Err(err).
				Uint64("seq", ev.Seq).
				Str("kind", string(ev.Kind)).
				Msg("failed to journal ledger event")
		}
	}
}

// RecordCall persists one served call without holding up the response path
// on failure.
func RecordCall(ctx context.Context, store Storage, log zerolog.Logger, call *models.ToolCall) {
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := store.CreateToolCall(ctx, call); err != nil {
		log.Warn().Err(err).
			Str("tool", call.ToolName).
			Str("tx_ref", call.TxRef).
			Msg("failed to record tool call")
	}
}
