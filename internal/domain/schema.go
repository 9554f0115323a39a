package domain

// Column names of the trade dataset.
const (
	ColType                 = "type"
	ColTradeTimestamp       = "trade_timestamp"
	ColTransactionSlot      = "transaction_slot"
	ColTraderWalletAddress  = "trader_wallet_address"
	ColTokenMintAddress     = "token_mint_address"
	ColTransactionSignature = "transaction_signature"
	ColBuyAmount            = "buy_amount"
	ColBuyPrice             = "buy_price"
	ColBuyPriceSOL          = "buy_price_sol"
	ColBuySOLAmount         = "buy_sol_amount"
	ColSellAmount           = "sell_amount"
	ColSellPrice            = "sell_price"
	ColSellPriceSOL         = "sell_price_sol"
	ColSellSOLAmount        = "sell_sol_amount"
	ColTransactionFee       = "transaction_fee"

	// Derived on read, never stored by the loader.
	ColBuyPriceUSD  = "buy_price_usd"
	ColSellPriceUSD = "sell_price_usd"
)

// Kind is the value kind of a column.
type Kind int

const (
	KindString Kind = iota + 1
	KindFloat
	KindInt
)

var kindNames = map[Kind]string{
	KindString: "string",
	KindFloat:  "float",
	KindInt:    "int",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if n == s {
			return k, true
		}
	}
	return 0, false
}

// Numeric reports whether the kind supports numeric comparison and aggregation.
func (k Kind) Numeric() bool {
	return k == KindFloat || k == KindInt
}

// ColumnDef describes one dataset column.
type ColumnDef struct {
	Name string
	Kind Kind
}

// CoreColumns are the typed columns of TradeRecord, in output order.
var CoreColumns = []ColumnDef{
	{ColType, KindString},
	{ColTradeTimestamp, KindFloat},
	{ColTransactionSlot, KindInt},
	{ColTraderWalletAddress, KindString},
	{ColTokenMintAddress, KindString},
	{ColBuyAmount, KindFloat},
	{ColBuyPrice, KindFloat},
	{ColBuyPriceSOL, KindFloat},
	{ColBuySOLAmount, KindFloat},
	{ColSellAmount, KindFloat},
	{ColSellPrice, KindFloat},
	{ColSellPriceSOL, KindFloat},
	{ColSellSOLAmount, KindFloat},
	{ColTransactionFee, KindFloat},
	{ColTransactionSignature, KindString},
}

// CoreKind returns the kind of a typed column.
func CoreKind(name string) (Kind, bool) {
	for _, c := range CoreColumns {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return 0, false
}

// Schema is the set of columns present in a dataset.
type Schema struct {
	columns []ColumnDef
	index   map[string]int
}

// NewSchema creates a schema. Later duplicates replace earlier definitions.
func NewSchema(cols ...ColumnDef) Schema {
	s := Schema{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if i, ok := s.index[c.Name]; ok {
			s.columns[i] = c
			continue
		}
		s.index[c.Name] = len(s.columns)
		s.columns = append(s.columns, c)
	}
	return s
}

// Lookup returns the definition of a column.
func (s Schema) Lookup(name string) (ColumnDef, bool) {
	i, ok := s.index[name]
	if !ok {
		return ColumnDef{}, false
	}
	return s.columns[i], true
}

// Columns returns the column definitions in dataset order.
func (s Schema) Columns() []ColumnDef {
	out := make([]ColumnDef, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.columns)
}
