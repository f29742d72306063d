package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/server"
	"github.com/pgElephant/ramd/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		if errors.Is(err, common.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	app.Run(ctx)

}
