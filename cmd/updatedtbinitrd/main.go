// Updates the `/chosen` node of a device tree blob with the location of an
// initrd image, so that a guest kernel booted with both can find its initial
// RAM disk.
//
//	updatedtbinitrd --dtb guest.dtb --output_dtb guest-initrd.dtb \
//		--initrd rootfs.cpio.gz --initrd_start 0x48000000
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"go.pdmccormick.com/dtbpatch"
)

var (
	dtbFlag         = flag.String("dtb", "", "read the input device tree blob from `path` (may be gzip, bzip2, xz or zstd compressed)")
	outputDtbFlag   = flag.String("output_dtb", "", "write the updated device tree blob to `path`")
	initrdFlag      = flag.String("initrd", "", "`path` to the initrd image the blob will be booted with (only its size is used)")
	initrdStartFlag = flag.String("initrd_start", "", "guest physical start `address` of the initrd, e.g. 0x48000000")
)

type Config struct {
	DTB         string
	OutputDTB   string
	Initrd      string
	InitrdStart string
}

// Returns the names of any required flags left blank.
func (cfg *Config) missing() []string {
	var names []string
	for _, f := range []struct {
		name, value string
	}{
		{"dtb", cfg.DTB},
		{"output_dtb", cfg.OutputDTB},
		{"initrd", cfg.Initrd},
		{"initrd_start", cfg.InitrdStart},
	} {
		if f.value == "" {
			names = append(names, "--"+f.name)
		}
	}
	return names
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	var cfg = Config{
		DTB:         *dtbFlag,
		OutputDTB:   *outputDtbFlag,
		Initrd:      *initrdFlag,
		InitrdStart: *initrdStartFlag,
	}

	if missing := cfg.missing(); len(missing) > 0 {
		fmt.Fprintf(flag.CommandLine.Output(), "missing required flags: %s\n", strings.Join(missing, ", "))
		flag.Usage()
		os.Exit(2)
	}

	if err := run(&cfg); err != nil {
		klog.Exitf("%s", err)
	}

	klog.Infof("Updated dtb location: %s", cfg.OutputDTB)
	klog.Flush()
}

func run(cfg *Config) error {
	start, err := dtbpatch.ParseAddress(cfg.InitrdStart)
	if err != nil {
		return fmt.Errorf("--initrd_start: %w", err)
	}

	size, err := dtbpatch.InitrdSize(cfg.Initrd)
	if err != nil {
		return fmt.Errorf("InitrdSize: %w", err)
	}

	blob, err := patchFile(cfg.DTB, start, size)
	if err != nil {
		return err
	}

	if err := dtbpatch.WriteFileAtomic(cfg.OutputDTB, blob); err != nil {
		return fmt.Errorf("Write %s: %w", cfg.OutputDTB, err)
	}

	return nil
}

func patchFile(name string, start, size uint64) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	defer f.Close()

	blob, format, chosen, err := dtbpatch.PatchReader(f, start, size)
	if err != nil {
		return nil, fmt.Errorf("Patch %s: %w", name, err)
	}

	klog.V(1).Infof("Read %s (%s)", name, format)

	if start, end, err := dtbpatch.InitrdRange(chosen); err == nil {
		klog.V(1).Infof("%s: initrd 0x%x-0x%x (%d bytes)", dtbpatch.ChosenPath, start, end, end-start)
	}

	return blob, nil
}
