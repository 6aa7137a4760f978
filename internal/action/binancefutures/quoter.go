package binancefutures

import "context"

// Quoter adapts Client to action.ProductionQuoter without binancefutures
// needing to import the action package (action imports this package's
// interface shape structurally instead).
type Quoter struct {
	client *Client
}

func NewQuoter(client *Client) *Quoter {
	return &Quoter{client: client}
}

func (q *Quoter) Quote(ctx context.Context, symbol, side string, notional float64) (price, qty float64, meta map[string]any, err error) {
	mark, err := q.client.GetMarkPrice(ctx, symbol)
	if err != nil {
		return 0, 0, nil, err
	}
	qty = NotionalToQty(notional, mark)
	order, err := q.client.PlaceLimitIOC(ctx, symbol, side, qty, mark)
	if err != nil {
		return 0, 0, nil, err
	}
	meta = map[string]any{"_binance_testnet": order}
	return mark, qty, meta, nil
}
