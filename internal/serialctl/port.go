package serialctl

import (
	"fmt"

	"go.bug.st/serial"
)

// Open opens the console UART at 8N1 with the given baud rate.
func Open(name string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return port, nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
