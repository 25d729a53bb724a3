package sequence

import (
	"context"
	"fmt"
	"time"
)

// TxStore persists series state inside the caller's transaction. The read
// must take a row lock so two concurrent callers serialize on the same
// (docType, period) and never receive equal numbers.
type TxStore interface {
	GetConfigForUpdate(ctx context.Context, docType DocType) (Config, error)
	SaveConfig(ctx context.Context, cfg Config) error
}

// Sequencer issues gapless, monotonically increasing document numbers.
type Sequencer struct{}

// NewSequencer constructs a Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next reserves the next number of the series within the caller's
// transaction. now is injected so period rollover is deterministic.
func (s *Sequencer) Next(ctx context.Context, store TxStore, docType DocType, now time.Time) (string, error) {
	cfg, err := store.GetConfigForUpdate(ctx, docType)
	if err != nil {
		return "", err
	}
	cfg, number, err := advance(cfg, now)
	if err != nil {
		return "", err
	}
	if err := store.SaveConfig(ctx, cfg); err != nil {
		return "", err
	}
	return number, nil
}

// advance rolls the period if needed, increments the counter and formats the
// document number. It is pure so rollover behaviour is testable without a
// database.
func advance(cfg Config, now time.Time) (Config, string, error) {
	year, month := now.Year(), int(now.Month())
	switch cfg.Reset {
	case ResetYearly:
		if cfg.LastYear != year {
			cfg.LastSeq = 0
		}
	case ResetMonthly:
		if cfg.LastYear != year || cfg.LastMonth != month {
			cfg.LastSeq = 0
		}
	case ResetNone:
		// Counter never resets.
	default:
		return Config{}, "", fmt.Errorf("%w: %q", ErrUnknownReset, cfg.Reset)
	}
	cfg.LastSeq++
	cfg.LastYear = year
	cfg.LastMonth = month
	cfg.UpdatedAt = now
	return cfg, format(cfg), nil
}

func format(cfg Config) string {
	width := cfg.PadWidth
	if width <= 0 {
		width = 4
	}
	counter := fmt.Sprintf("%0*d", width, cfg.LastSeq)
	switch cfg.Reset {
	case ResetYearly:
		return fmt.Sprintf("%s/%04d/%s", cfg.Prefix, cfg.LastYear, counter)
	case ResetMonthly:
		return fmt.Sprintf("%s/%04d/%02d/%s", cfg.Prefix, cfg.LastYear, cfg.LastMonth, counter)
	default:
		return fmt.Sprintf("%s/%s", cfg.Prefix, counter)
	}
}

// PeriodPrefix returns the series prefix for the period containing now,
// e.g. "GRN/2025/03/". Used by the legacy scan strategy.
func PeriodPrefix(cfg Config, now time.Time) string {
	switch cfg.Reset {
	case ResetYearly:
		return fmt.Sprintf("%s/%04d/", cfg.Prefix, now.Year())
	case ResetMonthly:
		return fmt.Sprintf("%s/%04d/%02d/", cfg.Prefix, now.Year(), int(now.Month()))
	default:
		return cfg.Prefix + "/"
	}
}

// MaxScanner exposes the highest already-issued counter for a period prefix.
type MaxScanner interface {
	MaxDocNumberSeq(ctx context.Context, docType DocType, periodPrefix string) (int64, error)
}

// ScanNext derives the next number by scanning existing documents for the
// current period and taking max+1. It predates the config-row series and is
// only safe under weak concurrency; workflows use Next instead.
func ScanNext(ctx context.Context, scanner MaxScanner, cfg Config, now time.Time) (string, error) {
	prefix := PeriodPrefix(cfg, now)
	maxSeq, err := scanner.MaxDocNumberSeq(ctx, cfg.DocType, prefix)
	if err != nil {
		return "", err
	}
	width := cfg.PadWidth
	if width <= 0 {
		width = 4
	}
	return fmt.Sprintf("%s%0*d", prefix, width, maxSeq+1), nil
}
