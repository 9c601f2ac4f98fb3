package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/itohio/gotelem/pkg/client"
	"github.com/itohio/gotelem/pkg/logging"
	"github.com/itohio/gotelem/pkg/transport"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port (empty to detect)")
		baudFlag    = flag.Int("baud", transport.DefaultBaudRate, "Baud rate")
		timeoutFlag = flag.Duration("timeout", client.DefaultTimeout, "Reply timeout")
		listFlag    = flag.Bool("list", false, "List serial ports and exit")
		countFlag   = flag.Int("n", 1, "Number of reads")
		everyFlag   = flag.Duration("every", time.Second, "Interval between reads")
		levelFlag   = flag.String("log", "warn", "Log level")
	)
	flag.Parse()

	log := logging.New(*levelFlag, os.Stderr).Get("probe")

	ports, err := transport.Ports()
	if err != nil {
		log.WithError(err).Fatal("failed to list serial ports")
	}

	if *listFlag {
		for _, p := range ports {
			usb := ""
			if p.USB {
				usb = " (usb)"
			}
			fmt.Printf("%s\t%s%s\n", p.Name, p.Description, usb)
		}
		return
	}

	name := *portFlag
	if name == "" {
		p, ok := transport.Detect(ports)
		if !ok {
			log.Fatal("no serial port detected, use -p")
		}
		name = p.Name
		log.WithField("port", name).Info("detected port")
	}

	c, err := client.Dial(name, *baudFlag, *timeoutFlag, log)
	if err != nil {
		log.WithError(err).WithField("port", name).Fatal("failed to open port")
	}
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < *countFlag; i++ {
		if i > 0 {
			time.Sleep(*everyFlag)
		}
		r, err := c.Read(ctx)
		if err != nil {
			log.WithError(err).Error("read failed")
			continue
		}
		fmt.Println(format(r))
	}
}

// format prints a reading as key=value pairs in wire order.
func format(r client.Reading) string {
	parts := make([]string, 0, len(r.Keys))
	for _, k := range r.Keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.Values[k]))
	}
	return r.ReceivedAt.Format("15:04:05.000") + " " + strings.Join(parts, " ")
}
