package paypal

import "github.com/mstgnz/paygate/provider"

func init() {
	provider.Register(providerName, NewProvider)
}
