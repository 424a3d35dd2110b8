/*
Package log provides structured logging for Sentinel using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Component Loggers                 │          │
	│  │  - WithComponent("manager")                 │          │
	│  │  - WithMemberID("member-abc123")            │          │
	│  │  - WithServiceGroup(sg) - adds §7 preamble  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Service-group preamble

Per-service log lines are expected to read "Supervisor <svc-group>:
<message>" (see the error-handling design). WithServiceGroup returns a
ServiceLogger whose Info/Warn/Error/Debug methods prefix the message
with that preamble, so callers write plain messages and get the
expected user-visible format for free. Events built directly on the
embedded zerolog.Logger (Msg/Msgf) carry no preamble.

# See Also

  - pkg/superr for the typed error kinds these logs commonly wrap
  - pkg/manager, pkg/service for the principal callers
*/
package log
