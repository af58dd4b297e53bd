package domain

// Table is a collection name in the marketplace stores
type Table string

const (
	TableAuctions           Table = "auctions"
	TableBids               Table = "bids"
	TableAutoBids           Table = "autobids"
	TableWallets            Table = "wallets"
	TableWalletTransactions Table = "wallet_transactions"
	TableOrders             Table = "orders"
	TableOutboxEvents       Table = "outbox_events"
)

// UserId identifies a marketplace user across services
type UserId string

// AuctionId identifies an auction aggregate
type AuctionId string

// CorrelationId threads all messages belonging to one saga instance
type CorrelationId string
