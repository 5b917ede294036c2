package statsexport

import (
	"fmt"
	"io"
	"time"

	"github.com/samfsd/samfs/internal/statsrecord"
)

// clearScreen is the same ANSI escape the original dashboard used.
const clearScreen = "\x1b[H\x1b[2J"

// RenderOnce writes a single frame of the dashboard to w and folds the
// instantaneous rate counters into the exponential averages, exactly as
// spec §4.4 describes (samples are reset to zero after every render).
func RenderOnce(w io.Writer, rec *statsrecord.Record) error {
	if err := rec.Lock(); err != nil {
		return err
	}
	upRate, dnRate, upAvg, dnAvg := rec.TickRates()
	if err := rec.Unlock(); err != nil {
		return err
	}

	selectCount := rec.SelectCount()
	threadCount := rec.ThreadCount()
	forkCount := rec.ForkCount()
	total := selectCount + threadCount + forkCount

	fmt.Fprint(w, clearScreen)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   +--------------------------------------------------------------------------+")
	fmt.Fprintln(w, "   |                             Server Dashboard                              |")
	fmt.Fprintln(w, "   +--------------------------------------------------------------------------+")
	fmt.Fprintf(w, "   | Server Binary : %-27s Server PID : %15d |\n", rec.ServerName(), rec.ServerPID())
	fmt.Fprintf(w, "   | Source Dir    : %-27s Server IP  : %15s |\n", rec.ServerDir(), rec.ServerIP())
	fmt.Fprintln(w, "   +--------------------------------------------------------------------------+")
	fmt.Fprintf(w, "   | Concurrency Method Being Used : %-40s |\n", statsrecord.MethodName(rec.ConcMethod()))
	fmt.Fprintln(w, "   +--------------------------------------------------------------------------+")
	fmt.Fprintln(w, "   | Clients Connected Using _                                                 |")
	fmt.Fprintf(w, "   | select() : %-10d     pthread() : %-10d     fork() : %-10d |\n", selectCount, threadCount, forkCount)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   | Total Connected Clients : %-46d |\n", total)
	fmt.Fprintln(w, "   +--------------------------------------------------------------------------+")
	fmt.Fprintf(w, "   | Total Bytes Received : %11d        Total Bytes Sent : %11d |\n", rec.BytesRcvd(), rec.BytesSent())
	fmt.Fprintf(w, "   | Downlink Data Rate   : %11s        Uplink Data Rate : %11s |\n", FormatRate(dnRate), FormatRate(upRate))
	fmt.Fprintf(w, "   | Avg. Downlink Rate   : %11s        Avg. Uplink Rate : %11s |\n", FormatRate(dnAvg), FormatRate(upAvg))
	fmt.Fprintln(w, "   +--------------------------------------------------------------------------+")
	fmt.Fprintln(w)
	return nil
}

// Watch renders the dashboard once a second until ctx-like stop is closed.
func Watch(w io.Writer, rec *statsrecord.Record, stop <-chan struct{}) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if err := RenderOnce(w, rec); err != nil {
			return err
		}
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}
	}
}
