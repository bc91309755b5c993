package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/blxfer/internal/device"
)

var headerColor = color.New(color.Bold)

// displayServicesTable prints one row per service followed by its characteristics
func displayServicesTable(out io.Writer, services []device.Service) error {
	if len(services) == 0 {
		fmt.Fprintln(out, "No services discovered")
		return nil
	}

	headerColor.Fprintf(out, "Discovered %d service(s)\n", len(services))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tPRIMARY\tCHARACTERISTICS")
	fmt.Fprintln(w, "-------\t-------\t---------------")

	for _, svc := range services {
		primary := "no"
		if svc.IsPrimary() {
			primary = "yes"
		}
		chars := svc.Characteristics()
		fmt.Fprintf(w, "%s\t%s\t%d\n", device.FormatUUID(svc.UUID()), primary, len(chars))
		for _, c := range chars {
			fmt.Fprintf(w, "  %s\t\t%s\n", device.FormatUUID(c.UUID()), c.Properties())
		}
	}
	return w.Flush()
}
