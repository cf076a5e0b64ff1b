// Package serialctl implements the brightness line protocol spoken on the
// optional UART console.
//
//	B<n>  set brightness (clamped to 0..100)
//	B+    raise brightness by Step
//	B-    lower brightness by Step
//	?     query brightness
//
// Every accepted line answers "B<current>\r\n". Rejected lines answer
// "E <reason>\r\n". Blank lines are ignored.
package serialctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// Step is the brightness change applied by B+ and B-.
const Step = 10

// ErrUnknownCommand is returned for lines that are not part of the protocol.
var ErrUnknownCommand = errors.New("unknown command")

// Dimmer is the brightness control the console drives.
type Dimmer interface {
	SetBrightness(v int)
	Brightness() int
}

// Execute applies one command line to d and returns the reply line,
// including the trailing CRLF. Blank lines return "".
func Execute(d Dimmer, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	if err := apply(d, line); err != nil {
		return fmt.Sprintf("E %v\r\n", err)
	}
	return fmt.Sprintf("B%d\r\n", d.Brightness())
}

func apply(d Dimmer, line string) error {
	if line == "?" {
		return nil
	}
	if line[0] != 'B' && line[0] != 'b' {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
	arg := strings.TrimSpace(line[1:])
	switch arg {
	case "":
		return nil
	case "+":
		d.SetBrightness(d.Brightness() + Step)
		return nil
	case "-":
		d.SetBrightness(d.Brightness() - Step)
		return nil
	}
	v, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("bad brightness %q", arg)
	}
	d.SetBrightness(v)
	return nil
}

// Serve reads command lines from rw until EOF or a read error and writes
// one reply per non-blank line. A closed port ends Serve with a nil error.
func Serve(rw io.ReadWriter, d Dimmer) error {
	sc := bufio.NewScanner(rw)
	for sc.Scan() {
		reply := Execute(d, sc.Text())
		if reply == "" {
			continue
		}
		if _, err := io.WriteString(rw, reply); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("serial: read: %v", err)
		return fmt.Errorf("read command: %w", err)
	}
	return nil
}
