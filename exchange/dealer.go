package exchange

import (
	"errors"
	"math/big"
	"strings"

	"leverlend/crypto"
)

var errNilLedger = errors.New("exchange: ledger not configured")

type ledger interface {
	BalanceOf(addr crypto.Address, token string) (*big.Int, error)
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
}

// Dealer is a deterministic Adapter backed by admin-set reference prices and
// an inventory account on the token ledger. It stands in for an external
// venue in tests and local deployments; swaps settle against its inventory
// at the posted prices with truncating division in the taker's disfavor.
type Dealer struct {
	ledger    ledger
	inventory crypto.Address
	prices    map[string]*big.Int
}

// NewDealer constructs a dealer settling against the given inventory account.
func NewDealer(inventory crypto.Address) *Dealer {
	return &Dealer{
		inventory: inventory,
		prices:    make(map[string]*big.Int),
	}
}

// SetLedger wires the dealer to the token ledger it settles on.
func (d *Dealer) SetLedger(l ledger) { d.ledger = l }

// Address returns the dealer's inventory account.
func (d *Dealer) Address() crypto.Address { return d.inventory }

// SetPrice posts the reference price for one unit of the token. Prices are
// relative: a conversion multiplies by the spend price and divides by the
// receive price.
func (d *Dealer) SetPrice(token string, price *big.Int) {
	if d == nil || price == nil || price.Sign() <= 0 {
		return
	}
	d.prices[normalize(token)] = new(big.Int).Set(price)
}

func normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (d *Dealer) price(token string) (*big.Int, error) {
	price, ok := d.prices[normalize(token)]
	if !ok {
		return nil, ErrUnknownToken
	}
	return price, nil
}

// Quote implements the Adapter interface. obtained truncates down, spent
// rounds up, so quoting never favors the taker.
func (d *Dealer) Quote(spendToken, receiveToken string, amount *big.Int) (*big.Int, *big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	spendPrice, err := d.price(spendToken)
	if err != nil {
		return nil, nil, err
	}
	receivePrice, err := d.price(receiveToken)
	if err != nil {
		return nil, nil, err
	}
	obtained := new(big.Int).Mul(amount, spendPrice)
	obtained.Quo(obtained, receivePrice)
	spent := new(big.Int).Mul(amount, receivePrice)
	spent.Add(spent, new(big.Int).Sub(spendPrice, big.NewInt(1)))
	spent.Quo(spent, spendPrice)
	return obtained, spent, nil
}

// Swap implements the Adapter interface.
func (d *Dealer) Swap(trader crypto.Address, spendToken, receiveToken string, amountIn, minOut *big.Int) (*big.Int, error) {
	if d == nil || d.ledger == nil {
		return nil, errNilLedger
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrSlippage
	}
	obtained, _, err := d.Quote(spendToken, receiveToken, amountIn)
	if err != nil {
		return nil, err
	}
	if minOut != nil && obtained.Cmp(minOut) < 0 {
		return nil, ErrSlippage
	}
	inventory, err := d.ledger.BalanceOf(d.inventory, normalize(receiveToken))
	if err != nil {
		return nil, err
	}
	if inventory.Cmp(obtained) < 0 {
		return nil, ErrInsufficientInventory
	}
	if err := d.ledger.Transfer(trader, d.inventory, normalize(spendToken), amountIn); err != nil {
		return nil, err
	}
	if err := d.ledger.Transfer(d.inventory, trader, normalize(receiveToken), obtained); err != nil {
		return nil, err
	}
	return obtained, nil
}

// SwapForExact implements the Adapter interface.
func (d *Dealer) SwapForExact(trader crypto.Address, spendToken, receiveToken string, amountOut, maxIn *big.Int) (*big.Int, error) {
	if d == nil || d.ledger == nil {
		return nil, errNilLedger
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrSlippage
	}
	_, spent, err := d.Quote(spendToken, receiveToken, amountOut)
	if err != nil {
		return nil, err
	}
	if maxIn != nil && spent.Cmp(maxIn) > 0 {
		return nil, ErrSlippage
	}
	inventory, err := d.ledger.BalanceOf(d.inventory, normalize(receiveToken))
	if err != nil {
		return nil, err
	}
	if inventory.Cmp(amountOut) < 0 {
		return nil, ErrInsufficientInventory
	}
	if err := d.ledger.Transfer(trader, d.inventory, normalize(spendToken), spent); err != nil {
		return nil, err
	}
	if err := d.ledger.Transfer(d.inventory, trader, normalize(receiveToken), amountOut); err != nil {
		return nil, err
	}
	return spent, nil
}
