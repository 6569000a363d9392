package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"tickerwatch/internal/application/port"
)

type Sink struct {
	out io.Writer
}

func NewSink() port.Sink { return &Sink{out: os.Stdout} }

func NewSinkTo(w io.Writer) *Sink { return &Sink{out: w} }

func (s *Sink) WriteLive(line string) error {
	_, err := fmt.Fprint(s.out, line) // no newline
	return err
}

// 图表块打印在 live 行下方，前后各留一个空行
func (s *Sink) WriteBlock(ts time.Time, lines []string) error {
	if _, err := fmt.Fprintf(s.out, "\n%s\n", ts.Format("2006-01-02 15:04:05")); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(s.out, l); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(s.out, "\n")
	return err
}

func (s *Sink) NewLine() error {
	_, err := fmt.Fprint(s.out, "\n")
	return err
}

var _ port.Sink = (*Sink)(nil)
