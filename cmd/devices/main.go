// Command devices probes camera ids and prints which ones can be opened.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"

	"github.com/nvr-ai/colortrack/capture"
	"github.com/nvr-ai/colortrack/images"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	count := flag.Int("count", 4, "Number of device ids to probe")
	show := flag.Int("show", -1, "Open this device and preview it until a key is pressed")
	debug := flag.Bool("debug", false, "Log every probe")
	resolution := flag.String("resolution", "", "Resolution preset requested from the device, e.g. VGA or 720p")
	flag.Parse()

	logger := zap.NewNop()
	if *debug {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	var size image.Point
	if *resolution != "" {
		r, ok := images.LookupResolution(*resolution)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown resolution %q\n", *resolution)
			os.Exit(2)
		}
		size = r.Pixels.Point()
	}

	opener := capture.CameraOpener(size)
	for _, info := range capture.ListDevices(opener, *count, logger) {
		status := "available"
		if !info.Available {
			status = "unavailable: " + info.Error
		}
		fmt.Printf("camera %d: %s\n", info.ID, status)
	}

	if *show < 0 {
		return
	}
	if err := preview(opener, *show); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// preview shows the raw feed of one device. The first frame is read before the
// window opens so a dead device fails without touching the display.
func preview(open capture.Opener, id int) error {
	src, err := open(id)
	if err != nil {
		return err
	}
	defer src.Close()

	img := gocv.NewMat()
	defer img.Close()

	if err := readFrame(src, &img, id); err != nil {
		return err
	}
	fmt.Println(describeSize(id, capture.FrameSize(img)))

	window := gocv.NewWindow(fmt.Sprintf("camera %d", id))
	defer window.Close()

	for {
		window.IMShow(img)
		if window.WaitKey(1) >= 0 {
			return nil
		}
		if err := readFrame(src, &img, id); err != nil {
			return err
		}
	}
}

// readFrame reads until the source yields a non-empty frame.
func readFrame(src capture.Source, img *gocv.Mat, id int) error {
	for {
		if ok := src.Read(img); !ok {
			return errors.Errorf("cannot read device %d", id)
		}
		if !img.Empty() {
			return nil
		}
	}
}

// describeSize reports the delivered frame size and the largest preset inside it.
func describeSize(id int, size image.Point) string {
	line := fmt.Sprintf("camera %d delivers %dx%d", id, size.X, size.Y)
	if r, ok := images.GetHighestResolutionUnderDimensions(size.X, size.Y); ok {
		line += fmt.Sprintf(", largest preset that fits: %s", r)
	}
	return line
}
