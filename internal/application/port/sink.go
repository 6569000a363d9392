package port

import "time"

type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Block: multi-line output (chart), printed below the live line
	WriteBlock(ts time.Time, lines []string) error
	// Normal newline (for logs)
	NewLine() error
}
