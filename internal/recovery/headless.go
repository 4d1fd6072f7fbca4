package recovery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// logo halves, drawn in two colours
var logo = [][2]string{
	{` ____      _            `, ` _____ _     _`},
	{`|  _ \ ___| |_ _ __ ___ `, `|  ___| | _ | |`},
	{`| |_) / _ \ __| '__/ _ \`, `| |__ | |/ \| |`},
	{`|  _ <  __/ |_| | | '_' `, `|  __||  .-.  |`},
	{`|_| \_\___|\__|_|  \___/`, `|_|   |_/   \_|`},
}

// address is the configured link address without its prefix length.
func (s *Session) address() string {
	addr, _, _ := strings.Cut(s.Config.Network.Address, "/")
	return addr
}

// Banner writes the console splash of the headless network path. The
// console is a plain VT, so colours are always emitted as ANSI.
func (s *Session) Banner(w io.Writer) error {
	r := lipgloss.NewRenderer(w, termenv.WithProfile(termenv.ANSI))
	left := r.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	right := r.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	text := r.NewStyle().Foreground(lipgloss.Color("7"))

	var b strings.Builder
	for _, l := range logo {
		b.WriteString(left.Render(l[0]) + right.Render(l[1]) + "\n")
	}
	b.WriteString("\n")
	for _, l := range []string{
		"- Set up the USB network in your PC",
		"- FTP or Telnet to " + s.address(),
		"- Copy the files/run shell commands",
		"- Power off and reboot",
	} {
		b.WriteString(text.Render(l) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Headless brings the USB network up without the display. Unless quiet, it
// switches the framebuffer console on, prints the banner to console and
// keeps the process alive until ctx is cancelled.
func (s *Session) Headless(ctx context.Context, console io.Writer, quiet bool) error {
	s.Logger.Info("Headless network", "quiet", quiet)
	if err := s.linkUp(ctx); err != nil {
		return fmt.Errorf("network bring-up: %w", err)
	}
	if quiet {
		return nil
	}

	s.Host.Runner.Try(ctx, "fbcon", nil)
	if err := s.Banner(console); err != nil {
		s.Logger.Warn("Failed to write console banner", "error", err)
	}

	<-ctx.Done()
	return nil
}
