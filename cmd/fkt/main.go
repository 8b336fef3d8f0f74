// Command fkt はFKTのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	fkt [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/fkt/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fkt: %v\n", err)
		os.Exit(1)
	}
}
