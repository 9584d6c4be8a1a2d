package domain

const (
	// ChainEthereum is the default chain identifier stamped on every transfer.
	ChainEthereum = "ethereum"

	// TransferTopic is keccak256("Transfer(address,address,uint256)").
	TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)
