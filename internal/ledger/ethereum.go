package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

// recordsABI is the slice of the patient records contract this service calls
const recordsABI = `[
  {
    "type": "function",
    "name": "storePatientData",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "key", "type": "string"},
      {"name": "prescription", "type": "string"},
      {"name": "medicines", "type": "string"},
      {"name": "tests", "type": "string"},
      {"name": "visitDate", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getVisitsByKey",
    "stateMutability": "view",
    "inputs": [{"name": "key", "type": "string"}],
    "outputs": [
      {
        "name": "",
        "type": "tuple[]",
        "components": [
          {"name": "prescription", "type": "string"},
          {"name": "medicines", "type": "string"},
          {"name": "tests", "type": "string"},
          {"name": "visitDate", "type": "string"}
        ]
      }
    ]
  }
]`

func parseRecordsABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(recordsABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse contract abi: %w", err)
	}
	return parsed, nil
}

// EthereumConfig holds what is needed to sign and send contract calls
type EthereumConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	GasLimit        uint64
}

// onchainVisit mirrors the tuple returned by getVisitsByKey
type onchainVisit struct {
	Prescription string
	Medicines    string
	Tests        string
	VisitDate    string
}

// ethBackend is the node surface the client needs. *ethclient.Client
// satisfies it.
type ethBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EthereumClient writes records through the deployed patient records contract
type EthereumClient struct {
	backend  ethBackend
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	gasLimit uint64
	close    func()
}

// DialEthereum connects to the node and binds the contract
func DialEthereum(ctx context.Context, cfg EthereumConfig) (*EthereumClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	parsed, err := parseRecordsABI()
	if err != nil {
		return nil, err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %w", err)
	}

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger node: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	log.Info().
		Str("contract", address.Hex()).
		Str("chain_id", chainID.String()).
		Msg("Ethereum ledger connected")

	client := newEthereumClient(rpc, address, parsed, key, chainID, cfg.GasLimit)
	client.close = rpc.Close
	return client, nil
}

func newEthereumClient(backend ethBackend, address common.Address, parsed abi.ABI, key *ecdsa.PrivateKey, chainID *big.Int, gasLimit uint64) *EthereumClient {
	return &EthereumClient{
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:      key,
		chainID:  chainID,
		gasLimit: gasLimit,
	}
}

// WriteRecord sends storePatientData and waits until the transaction is mined
func (e *EthereumClient) WriteRecord(ctx context.Context, rec Record) (*Receipt, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasLimit = e.gasLimit

	tx, err := e.contract.Transact(auth, "storePatientData",
		rec.PatientKey, rec.Prescription, rec.Medicines, rec.Tests, rec.VisitDate)
	if err != nil {
		return nil, fmt.Errorf("failed to send storePatientData: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, e.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}

	return &Receipt{
		RecordKey:   rec.RecordKey,
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// ReadRecords calls getVisitsByKey. The contract does not store record keys.
func (e *EthereumClient) ReadRecords(ctx context.Context, patientKey string) ([]Record, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getVisitsByKey", patientKey); err != nil {
		return nil, fmt.Errorf("failed to call getVisitsByKey: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("getVisitsByKey returned nothing")
	}

	visits := *abi.ConvertType(out[0], new([]onchainVisit)).(*[]onchainVisit)
	records := make([]Record, 0, len(visits))
	for _, v := range visits {
		records = append(records, Record{
			PatientKey:   patientKey,
			Prescription: v.Prescription,
			Medicines:    v.Medicines,
			Tests:        v.Tests,
			VisitDate:    v.VisitDate,
		})
	}
	return records, nil
}

func (e *EthereumClient) Close() error {
	if e.close != nil {
		e.close()
	}
	return nil
}
