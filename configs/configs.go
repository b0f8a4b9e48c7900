// Package configs embeds the default rule set and price book.
package configs

import _ "embed"

//go:embed rules.yaml
var Rules []byte

//go:embed pricing.yaml
var Pricing []byte
