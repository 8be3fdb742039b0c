// Package logging provides the structured logging facade used by all grantor
// subsystems.
//
// It wraps log/slog with a subsystem tag so log lines can be filtered per
// component (e.g. "Supervisor", "DeviceCode", "Prober"). The package-level
// functions are printf-style because the call sites are short status lines;
// structured attributes beyond the subsystem belong in the message itself.
//
// Secret material must never reach this package. Credential values are wrapped
// in store.RedactedSecret before they appear anywhere near a log call.
package logging
