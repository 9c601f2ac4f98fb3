//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/gotelem/pkg/calibration"
	"github.com/itohio/gotelem/pkg/protocol"
	"github.com/itohio/gotelem/pkg/sampler"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/itohio/gotelem/pkg/unit"
	"github.com/pkg/errors"
)

var uart = machine.UART0

func main() {
	PIN_STATUS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_STATUS.Low()

	machine.InitADC()
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	var slot calibration.Slot
	offset := machine.Flash.Size() - machine.Flash.EraseBlockSize()
	if s, err := calibration.NewBlockSlot(machine.Flash, offset); err == nil {
		slot = s
	} else {
		status.fault()
	}

	hot := sampler.Condition{Subject: "temp", Comparator: sampler.GreaterThan, Bound: HOT_THRESHOLD}
	dark := sampler.Condition{Subject: "light", Comparator: sampler.LessThan, Bound: DARK_THRESHOLD}

	u, err := unit.New(unit.Options{
		Version: firmwareVersion,
		Board:   board{},
		Slot:    slot,
		Policy: sampler.Policy{
			Rules:          []sampler.ThresholdRule{{Condition: hot, And: []sampler.Condition{dark}, DelayMs: SLOW_DELAY_MS}},
			DefaultDelayMs: DEFAULT_DELAY_MS,
			PersistWhen:    []sampler.Condition{hot, dark},
			Aggregate:      calibration.SumOf("temp", "light"),
		},
		Mode:        protocol.Fresh,
		ReadTimeout: READ_TIMEOUT,
		RetryDelay:  RETRY_DELAY,
		Observer:    status,
	})
	if u == nil {
		// Nothing can be served with a broken build; signal it and halt.
		for {
			status.fault()
			time.Sleep(250 * time.Millisecond)
			status.clear()
			time.Sleep(250 * time.Millisecond)
		}
	}
	if err != nil {
		status.fault()
	}

	for {
		u.Run(context.Background(), port{uart})
	}
}

// board reads the pins listed in pins.go.
type board struct{}

func (board) Open(ch sensor.Channel) (sensor.Reader, error) {
	switch ch.Kind {
	case sensor.Analog:
		pin, ok := analogPins[ch.Pin]
		if !ok {
			return nil, errors.Errorf("no analog input %s", ch)
		}
		adc := machine.ADC{Pin: pin}
		adc.Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
		return sensor.ReaderFunc(func() (int, error) {
			return int(adc.Get() >> ADC_SHIFT), nil
		}), nil

	case sensor.Digital:
		pin, ok := digitalPins[ch.Pin]
		if !ok {
			return nil, errors.Errorf("no digital input %s", ch)
		}
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		return sensor.ReaderFunc(func() (int, error) {
			if pin.Get() {
				return 1, nil
			}
			return 0, nil
		}), nil
	}
	return nil, errors.Errorf("unsupported channel %s", ch)
}

// uartDevice is the part of machine's UART and USB CDC ports the protocol needs.
type uartDevice interface {
	Buffered() int
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
}

// port makes the UART block on Read until a byte is buffered.
type port struct {
	uart uartDevice
}

func (p port) Read(b []byte) (int, error) {
	for p.uart.Buffered() == 0 {
		time.Sleep(UART_POLL)
	}
	return p.uart.Read(b)
}

func (p port) Write(b []byte) (int, error) {
	return p.uart.Write(b)
}
