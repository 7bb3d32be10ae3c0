package main

import (
	"os"

	"github.com/sandeepkv93/crudguard/internal/tools/common"
	"github.com/sandeepkv93/crudguard/internal/tools/guardctl"
)

func main() {
	_ = common.LoadEnvFile(".env")
	if err := guardctl.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
