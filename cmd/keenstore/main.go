package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	interrors "github.com/keenstore-dev/keenstore/internal/errors"
)

// Stamped by the release build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦╔═┌─┐┌─┐┌┐┌┌─┐┌┬┐┌─┐┬─┐┌─┐
  ╠╩╗├┤ ├┤ │││└─┐ │ │ │├┬┘├┤
  ╩ ╩└─┘└─┘┘└┘└─┘ ┴ └─┘┴└─└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "keenstore",
		Short: "Shared stores for server-driven UIs",
		Long: `Keenstore binds observable stores to server-rendered components.

A store holds state any goroutine can read and write; components bind
it with a render policy that decides which updates re-render them.
Sessions stream the resulting HTML fragments to browsers over a
WebSocket.

The CLI serves the built-in counter demo and load-tests a running
server:

  keenstore serve          start the demo server
  keenstore bench          drive a running server with synthetic clients
  keenstore version        print build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		benchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, interrors.Format(err))
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Print(banner)
}

// colorEnabled defers to the same NO_COLOR convention the error
// formatter follows.
var colorEnabled = os.Getenv("NO_COLOR") == ""

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

// Status line helpers. success gets a green check, warn a yellow sign,
// info an indent.
func success(format string, args ...any) {
	fmt.Printf("%s %s\n", paint("\033[32m", "✓"), fmt.Sprintf(format, args...))
}

func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

func warn(format string, args ...any) {
	fmt.Printf("%s %s\n", paint("\033[33m", "⚠"), fmt.Sprintf(format, args...))
}
