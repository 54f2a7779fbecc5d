package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/admin"
	"github.com/dmitrijs2005/voicemfa/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	tool := admin.NewTool(cfg.DatabaseDSN, os.Stdout, logger)

	if err := tool.Run(ctx, commandArgs(os.Args[1:])); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		logger.Error(ctx, "admin command failed", "error", err)
		os.Exit(1)
	}

}

// commandArgs drops the configuration flags the config loader already
// consumed, leaving the command and its operands.
func commandArgs(args []string) []string {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") && (i == 0 || !takesValue(args[i-1])) {
			return args[i:]
		}
	}
	return nil
}

func takesValue(flag string) bool {
	return strings.HasPrefix(flag, "-") && !strings.Contains(flag, "=")
}
