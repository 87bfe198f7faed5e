package hardware

import (
	"context"
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/josiahkernel/provision/internal/cmdutils"
)

// PrintersCategory is the peripheral category fed by the print spooler
// instead of USB descriptor matching.
const PrintersCategory = "printers"

//go:embed brands.yaml
var brandsYAML []byte

// usbBrands maps a peripheral category to the brand keywords identifying it
// in a USB descriptor. Matching is case-insensitive substring.
var usbBrands = sync.OnceValues(func() (map[string][]string, error) {
	brands := make(map[string][]string)
	err := yaml.Unmarshal(brandsYAML, &brands)
	return brands, err
})

// classifyPeripherals buckets USB descriptors into driver-provisioning
// categories and queries the print spooler for configured printers.
// Every category is always present in the result; an empty list means no
// matching peripheral was found.
func (c Collector) classifyPeripherals(usb []string) map[string][]string {
	peripherals := map[string][]string{
		PrintersCategory: c.collectPrinters(),
	}

	brands, err := usbBrands()
	if err != nil {
		c.opts.log.Warn("invalid peripheral brand list", "error", err)
	}

	for category, keywords := range brands {
		matches := []string{}
		for _, descriptor := range usb {
			lower := strings.ToLower(descriptor)
			for _, keyword := range keywords {
				if strings.Contains(lower, keyword) {
					matches = append(matches, descriptor)
					break
				}
			}
		}
		peripherals[category] = matches
	}

	return peripherals
}

// collectPrinters returns the configured printer descriptions from lpstat.
// A missing or failing print spooler yields an empty list.
func (c Collector) collectPrinters() []string {
	printers := []string{}

	stdout, stderr, err := cmdutils.RunWithTimeout(context.Background(), probeTimeout, c.opts.lpstatCmd[0], c.opts.lpstatCmd[1:]...)
	if err != nil {
		c.opts.log.Warn("failed to query print spooler", "error", err)
		return printers
	}
	if stderr.Len() > 0 {
		c.opts.log.Info("lpstat output to stderr", "stderr", stderr)
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			printers = append(printers, line)
		}
	}

	return printers
}
