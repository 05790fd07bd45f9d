package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Custody moves the underlying asset between the trader and the exchange. Deposit pulls
// through TransferIn before crediting; Withdraw pushes through TransferOut before
// debiting, so a failed transfer never touches the ledger.
type Custody interface {
	TransferIn(asset, from common.Address, amount *uint256.Int) error
	TransferOut(asset, to common.Address, amount *uint256.Int) error
}

// NopCustody accepts every transfer. Used when the asset layer lives outside the process.
type NopCustody struct{}

func (NopCustody) TransferIn(common.Address, common.Address, *uint256.Int) error  { return nil }
func (NopCustody) TransferOut(common.Address, common.Address, *uint256.Int) error { return nil }
