package mermaid

import (
	_ "embed"
)

//go:embed template.mmd
var initialTemplateMMD string

// InitialTemplate returns the seed lane diagram the convergence loop starts
// from: four horizontal source lanes feeding a sectioned platform region,
// with lane and section badges already placed and styled.
func InitialTemplate() string {
	return initialTemplateMMD
}
