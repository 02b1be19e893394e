// Package config loads mithril settings with viper.
//
// The default file is $XDG_CONFIG_HOME/mithril/config.yaml. Every key can be
// overridden with a MITHRIL_ environment variable, dots replaced by
// underscores, e.g. MITHRIL_TOOL_BINARY or MITHRIL_DELETION_ALLOWED_ROOTS
// (comma separated).
package config
