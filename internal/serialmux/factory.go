package serialmux

import (
	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware serial ports via go.bug.st/serial.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory creates a factory for real serial ports.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the serial port at path with the given options.
func (*RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// NewRealSerialMux creates a SerialMux backed by the sensor's data port at
// the given path. commandPath optionally names the CLI config port; pass ""
// when only reading.
func NewRealSerialMux(dataPath, commandPath string, dataOpts, commandOpts PortOptions) (*SerialMux[SerialPorter], error) {
	return NewSerialMuxFromFactory(NewRealSerialPortFactory(), dataPath, commandPath, dataOpts, commandOpts)
}

// NewSerialMuxFromFactory wires a SerialMux from ports opened through the
// given factory. When dataOpts.ReadTimeout is set and the data port supports
// timeouts, the timeout is applied before monitoring starts.
func NewSerialMuxFromFactory(factory SerialPortFactory, dataPath, commandPath string, dataOpts, commandOpts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := factory.Open(dataPath, dataOpts)
	if err != nil {
		return nil, err
	}

	if dataOpts.ReadTimeout > 0 {
		if tp, ok := port.(TimeoutSerialPorter); ok {
			if err := tp.SetReadTimeout(dataOpts.ReadTimeout); err != nil {
				port.Close()
				return nil, err
			}
		}
	}

	mux := NewSerialMux[SerialPorter](port)

	if commandPath != "" {
		cmdPort, err := factory.Open(commandPath, commandOpts)
		if err != nil {
			port.Close()
			return nil, err
		}
		mux.SetCommandPort(cmdPort)
	}

	return mux, nil
}
