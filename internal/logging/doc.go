// Package logging renders slog records for terminal use.
//
// Records are written as "LEVEL time | message key=value ...". Attributes
// added through groups are flattened with dotted keys.
package logging
