package logger

import (
	"fmt"
	"io"
	"strings"
)

const banner = `
  _ __   __ _ _ __ ___ ___| |
 | '_ \ / _` + "`" + ` | '__/ __/ _ \ |
 | |_) | (_| | | | (_|  __/ |
 | .__/ \__,_|_|  \___\___|_|
 |_|
`

type StartupInfo struct {
	Version  string
	Addr     string
	Server   string
	DataDir  string
	LogLevel string
}

func PrintBanner(w io.Writer, info StartupInfo) {
	fmt.Fprint(w, banner)
	fmt.Fprintf(w, "                     v%s\n\n", info.Version)

	maxWidth := 50
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", maxWidth))
	fmt.Fprintf(w, "  → Control API: http://%s\n", formatAddr(info.Addr))
	fmt.Fprintf(w, "  → File host:   %s\n", info.Server)
	fmt.Fprintf(w, "  → Data Dir:    %s\n", info.DataDir)
	fmt.Fprintf(w, "  → Log Level:   %s\n", info.LogLevel)
	fmt.Fprintf(w, "  %s\n\n", strings.Repeat("─", maxWidth))
}

func formatAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
