package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/Techno-coder/pmu/internal/daemon"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the song currently playing",
	Long: `Display the song the daemon is currently playing.

The output format can be customized with output_format in config.yaml
using a Go template. Available fields: .Artist, .Title, .Album, .Path,
.State, .Elapsed, .QueueLen. The clock function formats a duration as
m:ss, for example {{clock .Elapsed}}.

Exit codes:
  0 - A song is playing
  1 - Nothing playing, paused, or the daemon is not running`,
	Args: cobra.NoArgs,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
}

// nowView is the data available to the output template.
type nowView struct {
	Artist   string
	Title    string
	Album    string
	Path     string
	State    daemon.PlayState
	Elapsed  time.Duration
	QueueLen int
}

func runNow(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.OutputFormat = format
	}

	status, err := daemon.ReadStatus(dataFile(cfg, statusName))
	if errors.Is(err, fs.ErrNotExist) {
		os.Exit(1)
	}
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if status.State != daemon.StatePlaying {
		os.Exit(1)
	}

	now := time.Now()
	output, err := formatStatus(status, now, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee := cfg.MarqueeEnabled
	if cmd.Flags().Changed("marquee") {
		marquee, _ = cmd.Flags().GetBool("marquee")
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator, now)
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// formatStatus applies the template to the status, with elapsed time
// extrapolated to now.
func formatStatus(s *daemon.Status, now time.Time, templateStr string) (string, error) {
	tmpl, err := template.New("output").
		Funcs(template.FuncMap{"clock": clock}).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	view := nowView{
		Artist:   s.Artist,
		Title:    s.Title,
		Album:    s.Album,
		Path:     s.Path,
		State:    s.State,
		Elapsed:  s.ElapsedAt(now),
		QueueLen: s.QueueLen,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return buf.String(), nil
}

func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// padToWidth pads or truncates text to a fixed display width, measured in
// display columns. Text that is too long is cut with a "..." suffix.
// If width <= 0, returns text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	switch {
	case currentWidth > width:
		const ellipsis = "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)
		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		// Wide runes can leave the cut one column short.
		result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
		return runewidth.FillRight(result, width)
	case currentWidth < width:
		return runewidth.FillRight(text, width)
	}
	return text
}

// marqueeText scrolls text that does not fit in width. The window position
// is derived from now, speed columns per second, over "text{separator}text"
// so the scroll loops. Each call is stateless, so a status bar that polls
// every few seconds sees the text advance in steps.
func marqueeText(text string, width int, speed int, separator string, now time.Time) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	loop := []rune(text + separator)
	position := int(now.Unix()*int64(speed)) % len(loop)
	if position < 0 {
		position += len(loop)
	}

	var sb strings.Builder
	resultWidth := 0
	for i := 0; resultWidth < width; i++ {
		r := loop[(position+i)%len(loop)]
		rw := runewidth.RuneWidth(r)
		if resultWidth+rw > width {
			break
		}
		sb.WriteRune(r)
		resultWidth += rw
	}

	return runewidth.FillRight(sb.String(), width)
}
