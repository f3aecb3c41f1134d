// Package configs embeds the default indexing properties shipped with the
// binary. An operator file named by PROPERTIES_FILE is layered on top.
package configs

import _ "embed"

// ProdSearchDefaults holds the default field weights for product indexing.
//
//go:embed prodsearch.yaml
var ProdSearchDefaults []byte
