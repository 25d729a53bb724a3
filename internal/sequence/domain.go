package sequence

import (
	"errors"
	"time"
)

// DocType identifies a numbered document series.
type DocType string

// Document series in use.
const (
	DocTypePO      DocType = "PO"
	DocTypeGRN     DocType = "GRN"
	DocTypeWO      DocType = "WO"
	DocTypeADJ     DocType = "ADJ"
	DocTypeRET     DocType = "RET"
	DocTypeIssue   DocType = "ISSUE"
	DocTypeReceipt DocType = "RECEIPT"
)

// ResetPeriod controls when a series counter restarts.
type ResetPeriod string

const (
	ResetYearly  ResetPeriod = "YEARLY"
	ResetMonthly ResetPeriod = "MONTHLY"
	ResetNone    ResetPeriod = "NONE"
)

// Config is the persistent state of one document series. It is mutated only
// by the sequencer, inside the same transaction as the document it numbers.
type Config struct {
	DocType   DocType
	Prefix    string
	Reset     ResetPeriod
	PadWidth  int
	LastSeq   int64
	LastYear  int
	LastMonth int
	UpdatedAt time.Time
}

var (
	// ErrConfigNotFound indicates the series has not been provisioned.
	ErrConfigNotFound = errors.New("sequence: document number config not found")
	// ErrUnknownReset indicates an unsupported reset period value.
	ErrUnknownReset = errors.New("sequence: unknown reset period")
)
