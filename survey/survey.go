// Package survey defines the domain artifacts that flow through the
// analysis pipeline: variable metadata, recoding rules, indicators,
// cross-table specifications, and cross-tabulation results, plus the
// PSPP syntax builders that turn generated artifacts into executable
// syntax files.
package survey

// Survey identifies the data file under analysis.
type Survey struct {
	Name     string `json:"name"`
	DataPath string `json:"data_path"`
	Cases    int    `json:"cases,omitempty"`
}
