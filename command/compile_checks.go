package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SetCatalogStockMessage] = (*SetCatalogStockCommand)(nil)
	_ gocmd.Commander[SetCatalogPriceMessage] = (*SetCatalogPriceCommand)(nil)
)
