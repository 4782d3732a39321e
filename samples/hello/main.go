package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dust/api"
	"github.com/sarchlab/dust/config"
	"github.com/sarchlab/dust/program"
	"github.com/sarchlab/dust/util"
	"github.com/tebeka/atexit"
)

//go:embed hello.b
var helloSource string

func main() {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: util.LevelTrace,
	})
	slog.SetDefault(slog.New(handler))

	engine := sim.NewSerialEngine()

	cfg := config.Default()
	cfg.FlushTrailing = true

	driver := api.DriverBuilder{}.
		WithConfig(cfg).
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		Build("Driver")

	p, err := driver.Parse(strings.NewReader(helloSource))
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	program.Dump(os.Stdout, p)

	var out bytes.Buffer
	stats, err := driver.Run(p, nil, &out)
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	fmt.Print(out.String())
	fmt.Printf("cycles: %d\n", stats.Cycles)

	atexit.Exit(0)
}
