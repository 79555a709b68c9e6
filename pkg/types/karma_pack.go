package types

type PaymentProvider string

const (
	PaymentProviderApple PaymentProvider = "apple"
	PaymentProviderCard  PaymentProvider = "card"
	PaymentProviderInner PaymentProvider = "inner"
)

// KarmaPack is a purchasable bundle of Karma sold through a payment provider.
type KarmaPack struct {
	ID             string          `json:"id" mapstructure:"id"`
	ProviderID     PaymentProvider `json:"provider_id" mapstructure:"provider_id"`
	ProviderItemID string          `json:"provider_item_id" mapstructure:"provider_item_id"`
	// Karma credited per unit purchased.
	Karma int64 `json:"karma" mapstructure:"karma"`
}

func (p *KarmaPack) Valid() bool {
	return p != nil && p.ID != "" && p.ProviderItemID != "" && p.Karma > 0
}
