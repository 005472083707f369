package main

import (
	"embed"
	"log"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"voxbind/internal/bootstrap"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	variant := bootstrap.VariantLive
	if name := os.Getenv("VOXBIND_VARIANT"); name != "" {
		parsed, err := bootstrap.ParseVariant(name)
		if err != nil {
			log.Fatal(err)
		}
		variant = parsed
	}

	app := NewApp(variant)
	err := wails.Run(&options.App{
		Title:      "voxbind",
		Width:      520,
		Height:     360,
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Bind: []interface{}{app},
	})
	if err != nil {
		log.Fatal(err)
	}
}
