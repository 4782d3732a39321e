package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dust/api"
	"github.com/sarchlab/dust/config"
	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/util"
	"github.com/tebeka/atexit"
)

//go:embed upper.b
var upperSource string

func upper(driver api.Driver, text string) {
	toks, err := driver.Tokens(strings.NewReader(upperSource))
	if err != nil {
		atexit.Fatalf("%v", err)
	}
	instr.WriteTable(os.Stdout, toks)

	p, err := driver.Parse(strings.NewReader(upperSource))
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	var out bytes.Buffer
	stats, err := driver.Run(p, strings.NewReader(text+"\x00"), &out)
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	fmt.Println(text)
	fmt.Println(out.String())
	fmt.Printf("cycles: %d\n", stats.Cycles)
}

func main() {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: util.LevelTrace,
	})
	slog.SetDefault(slog.New(handler))

	monitor := monitoring.NewMonitor()

	engine := sim.NewSerialEngine()
	monitor.RegisterEngine(engine)

	cfg := config.Default()
	cfg.FlushTrailing = true

	driver := api.DriverBuilder{}.
		WithConfig(cfg).
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		Build("Driver")

	monitor.StartServer()

	upper(driver, "dust")

	atexit.Exit(0)
}
