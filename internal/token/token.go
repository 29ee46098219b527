package token

import "errors"

var ErrUnsupportedDraws = errors.New("unsupported number of draws")

// Cost is an amount of one currency, e.g. 160 "Stellar Jade".
type Cost struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// Token defines how many units a pool charges per batch.
type Token struct {
	Single Cost // one draw
	Ten    Cost // optional; if Amount == 0 -> 10 * Single in Single's currency
}

// TokensForDraws returns the cost of a batch of n draws.
// Only single and ten draws are sold; the ten-draw price is independent of the single price.
func (t Token) TokensForDraws(n int) (Cost, error) {
	switch n {
	case 1:
		return t.Single, nil
	case 10:
		if t.Ten.Amount > 0 {
			return t.Ten, nil
		}
		return Cost{Currency: t.Single.Currency, Amount: 10 * t.Single.Amount}, nil
	default:
		return Cost{}, ErrUnsupportedDraws
	}
}
