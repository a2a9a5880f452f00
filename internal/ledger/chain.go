package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	keyHeight       = "height_latest"
	blockKeyPrefix  = "block_"
	recordKeyPrefix = "rk_"
	patientPrefix   = "pk_"
)

var genesisPrevHash = strings.Repeat("0", 64)

// Block is one entry of the local chain. Each block carries a single record.
type Block struct {
	Index     uint64 `json:"index"`
	PrevHash  string `json:"prev_hash"`
	Timestamp string `json:"timestamp"`
	Record    Record `json:"record"`
	Hash      string `json:"hash"`
}

// ChainLedger is an append-only hash chain kept in LevelDB. It stands in for
// the contract ledger in development and tests.
//
// Keys:
//
//	block_<n>           block JSON
//	height_latest       index of the newest block
//	rk_<recordKey>      block index holding that record
//	pk_<sha256(patient)>_<n>  block index, one per patient record
type ChainLedger struct {
	mu  sync.Mutex
	db  *leveldb.DB
	now func() time.Time
}

// OpenChain opens (or creates) the chain at path
func OpenChain(path string) (*ChainLedger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain ledger at %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Chain ledger opened")
	return &ChainLedger{db: db, now: time.Now}, nil
}

// WriteRecord appends rec as a new block. A record key seen before returns
// the original receipt without appending.
func (c *ChainLedger) WriteRecord(ctx context.Context, rec Record) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec.PatientKey == "" {
		return nil, errors.New("record has no patient key")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.RecordKey != "" {
		if idx, ok, err := c.lookupIndex(recordKeyPrefix + rec.RecordKey); err != nil {
			return nil, err
		} else if ok {
			blk, err := c.block(idx)
			if err != nil {
				return nil, err
			}
			return &Receipt{RecordKey: rec.RecordKey, TxHash: "0x" + blk.Hash, BlockNumber: blk.Index}, nil
		}
	}

	prevHash := genesisPrevHash
	next := uint64(0)
	if h, ok, err := c.height(); err != nil {
		return nil, err
	} else if ok {
		prev, err := c.block(h)
		if err != nil {
			return nil, err
		}
		prevHash = prev.Hash
		next = h + 1
	}

	blk := Block{
		Index:     next,
		PrevHash:  prevHash,
		Timestamp: c.now().UTC().Format(time.RFC3339Nano),
		Record:    rec,
	}
	blk.Hash = hashBlock(blk)

	data, err := json.Marshal(blk)
	if err != nil {
		return nil, err
	}

	idx := []byte(strconv.FormatUint(next, 10))
	batch := new(leveldb.Batch)
	batch.Put([]byte(blockKey(next)), data)
	batch.Put([]byte(keyHeight), idx)
	batch.Put([]byte(patientKey(rec.PatientKey, next)), idx)
	if rec.RecordKey != "" {
		batch.Put([]byte(recordKeyPrefix+rec.RecordKey), idx)
	}
	if err := c.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("failed to append block %d: %w", next, err)
	}

	log.Debug().Uint64("block", next).Str("hash", blk.Hash).Msg("Chain ledger block appended")
	return &Receipt{RecordKey: rec.RecordKey, TxHash: "0x" + blk.Hash, BlockNumber: next}, nil
}

// ReadRecords returns every record stored for patientKey in append order
func (c *ChainLedger) ReadRecords(ctx context.Context, patientKeyValue string) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	iter := c.db.NewIterator(util.BytesPrefix([]byte(patientIndexPrefix(patientKeyValue))), nil)
	defer iter.Release()

	records := []Record{}
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, err := strconv.ParseUint(string(iter.Value()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt patient index %s: %w", iter.Key(), err)
		}
		blk, err := c.block(idx)
		if err != nil {
			return nil, err
		}
		records = append(records, blk.Record)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

// Verify walks the chain from the first block and checks every hash link.
// It returns the number of blocks checked.
func (c *ChainLedger) Verify(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok, err := c.height()
	if err != nil || !ok {
		return 0, err
	}

	prevHash := genesisPrevHash
	for i := uint64(0); i <= h; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		blk, err := c.block(i)
		if err != nil {
			return i, err
		}
		if blk.PrevHash != prevHash {
			return i, fmt.Errorf("block %d: prev hash mismatch", i)
		}
		if hashBlock(*blk) != blk.Hash {
			return i, fmt.Errorf("block %d: hash mismatch", i)
		}
		prevHash = blk.Hash
	}
	return h + 1, nil
}

func (c *ChainLedger) Close() error {
	return c.db.Close()
}

func (c *ChainLedger) height() (uint64, bool, error) {
	return c.lookupIndex(keyHeight)
}

func (c *ChainLedger) lookupIndex(key string) (uint64, bool, error) {
	v, err := c.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt index %s: %w", key, err)
	}
	return n, true, nil
}

func (c *ChainLedger) block(index uint64) (*Block, error) {
	data, err := c.db.Get([]byte(blockKey(index)), nil)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", blockKey(index), err)
	}
	var blk Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

func blockKey(index uint64) string {
	return blockKeyPrefix + strconv.FormatUint(index, 10)
}

// patientIndexPrefix hashes the patient key so free-text keys such as
// "123" and "123_4" never share an index prefix
func patientIndexPrefix(key string) string {
	sum := sha256.Sum256([]byte(key))
	return patientPrefix + hex.EncodeToString(sum[:]) + "_"
}

func patientKey(key string, index uint64) string {
	return fmt.Sprintf("%s%020d", patientIndexPrefix(key), index)
}

func hashBlock(b Block) string {
	rec, _ := json.Marshal(b.Record)
	header := strconv.FormatUint(b.Index, 10) + b.PrevHash + b.Timestamp + string(rec)
	sum := sha256.Sum256([]byte(header))
	return hex.EncodeToString(sum[:])
}
