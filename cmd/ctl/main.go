package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pgElephant/ramd/internal/client/config"
	"github.com/pgElephant/ramd/internal/client/ctl"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app := ctl.NewApp(cfg, os.Stdout, os.Stderr)

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ramctl: %v\n", err)
		if errors.Is(err, ctl.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}

}
