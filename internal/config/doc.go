// Package config loads and merges the daemon's configuration and exposes
// the standard data/config/cache/state paths under <data_dir>.
//
// Load merges, in priority order: global config (~/.config/clawd/clawd.json),
// project config (<repo>/.clawd/clawd.json), then environment variables
// (CLAWD_PORT, CLAWD_MONTHLY_BUDGET_USD). Both .json and .jsonc variants are
// read; comments in .jsonc files are stripped with tidwall/jsonc before
// unmarshalling.
package config
