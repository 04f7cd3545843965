// Package banner prints the startup banner of the softphone daemons.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const logo = `
======================================================================
  ____         __ _       _
 / ___|  ___  / _| |_ _ __ | |__   ___  _ __   ___
 \___ \ / _ \| |_| __| '_ \| '_ \ / _ \| '_ \ / _ \
  ___) | (_) |  _| |_| |_) | | | | (_) | | | |  __/
 |____/ \___/|_|  \__| .__/|_| |_|\___/|_| |_|\___|
                     |_|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine represents a single configuration line to display
type ConfigLine struct {
	Label string
	Value string
}

// Print writes the banner to stdout.
func Print(serviceName string, config []ConfigLine) {
	Fprint(os.Stdout, serviceName, config)
}

// Fprint writes the banner with the service name and aligned configuration
// lines. Lines with an empty value are shown as "-".
func Fprint(w io.Writer, serviceName string, config []ConfigLine) {
	fmt.Fprintln(w, logo)
	fmt.Fprintf(w, "%s\n", serviceName)

	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}

	for _, c := range config {
		value := c.Value
		if value == "" {
			value = "-"
		}
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Fprintf(w, "  %s%s : %s\n", c.Label, padding, value)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ready.")
	fmt.Fprintln(w, footer)
	fmt.Fprintln(w)
}
