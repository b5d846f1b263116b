package bridgestore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/starkbridge/middleware/pkg/bridge"
)

// TransactionDao is a data access object that maps directly to the
// 'bridge_transactions' table in PostgreSQL. Fee components are flattened
// into columns so aggregates can run server side.
type TransactionDao struct {
	bun.BaseModel `bun:"table:bridge_transactions,alias:bt"`
	ID            string     `bun:"id,pk,type:varchar(36)"`
	UserID        string     `bun:"user_id,notnull,type:varchar(64)"`
	FromChain     string     `bun:"from_chain,notnull,type:varchar(16)"`
	ToChain       string     `bun:"to_chain,notnull,type:varchar(16)"`
	TokenAddress  string     `bun:"token_address,notnull,type:varchar(66)"`
	TokenSymbol   string     `bun:"token_symbol,notnull,type:varchar(16)"`
	Amount        string     `bun:"amount,notnull,type:numeric(38,18)"`
	Slippage      float64    `bun:"slippage,notnull"`
	Status        string     `bun:"status,notnull,type:varchar(16)"`
	TxHash        *string    `bun:"tx_hash,type:varchar(66)"`
	NetworkFee    string     `bun:"network_fee,notnull,type:numeric(38,18)"`
	BridgeFee     string     `bun:"bridge_fee,notnull,type:numeric(38,18)"`
	TotalFee      string     `bun:"total_fee,notnull,type:numeric(38,18)"`
	GasPrice      string     `bun:"gas_price,notnull,type:numeric(38,0)"`
	GasLimit      string     `bun:"gas_limit,notnull,type:numeric(38,0)"`
	EstimatedTime int        `bun:"estimated_time,notnull"`
	ActualTime    *int64     `bun:"actual_time"`
	ErrorMessage  *string    `bun:"error_message,type:text"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
	CompletedAt   *time.Time `bun:"completed_at"`
}

// toTransactionDao converts a bridge.Transaction to TransactionDao.
func toTransactionDao(tx *bridge.Transaction) *TransactionDao {
	dao := &TransactionDao{
		ID:            tx.ID,
		UserID:        tx.UserID,
		FromChain:     string(tx.FromChain),
		ToChain:       string(tx.ToChain),
		TokenAddress:  tx.TokenAddress,
		TokenSymbol:   tx.TokenSymbol,
		Amount:        tx.Amount,
		Slippage:      tx.Slippage,
		Status:        string(tx.Status),
		NetworkFee:    tx.Fees.NetworkFee,
		BridgeFee:     tx.Fees.BridgeFee,
		TotalFee:      tx.Fees.TotalFee,
		GasPrice:      tx.Fees.GasPrice,
		GasLimit:      tx.Fees.GasLimit,
		EstimatedTime: tx.EstimatedTime,
		ActualTime:    tx.ActualTime,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
		CompletedAt:   tx.CompletedAt,
	}
	if tx.TxHash != "" {
		dao.TxHash = &tx.TxHash
	}
	if tx.ErrorMessage != "" {
		dao.ErrorMessage = &tx.ErrorMessage
	}
	return dao
}

// toTransaction converts a TransactionDao to bridge.Transaction.
func toTransaction(dao *TransactionDao) *bridge.Transaction {
	tx := &bridge.Transaction{
		ID:           dao.ID,
		UserID:       dao.UserID,
		FromChain:    bridge.Chain(dao.FromChain),
		ToChain:      bridge.Chain(dao.ToChain),
		TokenAddress: dao.TokenAddress,
		TokenSymbol:  dao.TokenSymbol,
		Amount:       dao.Amount,
		Slippage:     dao.Slippage,
		Status:       bridge.Status(dao.Status),
		Fees: bridge.Fees{
			NetworkFee: dao.NetworkFee,
			BridgeFee:  dao.BridgeFee,
			TotalFee:   dao.TotalFee,
			GasPrice:   dao.GasPrice,
			GasLimit:   dao.GasLimit,
		},
		EstimatedTime: dao.EstimatedTime,
		ActualTime:    dao.ActualTime,
		CreatedAt:     dao.CreatedAt,
		UpdatedAt:     dao.UpdatedAt,
		CompletedAt:   dao.CompletedAt,
	}
	if dao.TxHash != nil {
		tx.TxHash = *dao.TxHash
	}
	if dao.ErrorMessage != nil {
		tx.ErrorMessage = *dao.ErrorMessage
	}
	return tx
}
