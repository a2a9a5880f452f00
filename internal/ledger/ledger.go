// Package ledger anchors finalized visit records on an append-only external
// ledger and reads a patient's history back from it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"hospital-waiting-room/internal/config"
)

// Record is one finalized visit as stored on the ledger. PatientKey is the
// patient's NIC.
type Record struct {
	RecordKey    string `json:"record_key,omitempty"`
	PatientKey   string `json:"patient_key"`
	Prescription string `json:"prescription"`
	Medicines    string `json:"medicines"`
	Tests        string `json:"tests"`
	VisitDate    string `json:"visit_date"`
}

// Receipt identifies where a record landed
type Receipt struct {
	RecordKey   string `json:"record_key"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// Client is the external ledger seen by the visit lifecycle. WriteRecord
// returns only after the ledger accepted the record.
type Client interface {
	WriteRecord(ctx context.Context, rec Record) (*Receipt, error)
	ReadRecords(ctx context.Context, patientKey string) ([]Record, error)
	Close() error
}

// RecordKey derives the deterministic idempotency key for a visit
func RecordKey(visitID uint) string {
	sum := sha256.Sum256([]byte("visit:" + strconv.FormatUint(uint64(visitID), 10)))
	return hex.EncodeToString(sum[:])
}

// New opens the ledger selected by cfg.Driver
func New(ctx context.Context, cfg config.LedgerConfig) (Client, error) {
	switch cfg.Driver {
	case config.LedgerDriverChain:
		return OpenChain(cfg.ChainPath)
	case config.LedgerDriverEthereum:
		return DialEthereum(ctx, EthereumConfig{
			RPCURL:          cfg.RPCURL,
			ContractAddress: cfg.ContractAddress,
			PrivateKey:      cfg.PrivateKey,
			GasLimit:        cfg.GasLimit,
		})
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}
