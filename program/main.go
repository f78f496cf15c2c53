package main

import (
	"context"
	"fmt"
	"os"
	"time"

	styles "github.com/charmbracelet/lipgloss"

	"github.com/keilerkonzept/kernel-tree-tui/internal/query"
)

type Config struct {
	// input
	DBPath string
	Device int
	Start  time.Duration
	End    time.Duration

	// pipeline
	LaunchPad  time.Duration
	PruneEmpty bool

	// view
	TopK        int
	MinWindow   time.Duration
	MinDuration time.Duration
	Filter      string
	ViewSplit   int
	Demangled   bool

	// output
	TreeFormat   string
	ExportFormat string
	Output       string
	Color        bool
	FullNames    bool
	Parent       string
	JSON         bool

	LogFile string
	Debug   bool

	StatsEnabled bool
	StatsWindow  int

	AltScreen bool
}

var config = Config{
	DBPath: "",
	Device: -1,
	Start:  0,
	End:    0,

	LaunchPad:  time.Duration(query.DefaultLaunchPad),
	PruneEmpty: false,

	TopK:        10,
	MinWindow:   100 * time.Nanosecond,
	MinDuration: 0,
	ViewSplit:   70,

	TreeFormat:   "text",
	ExportFormat: "csv",
	Color:        true,

	StatsEnabled: false,
	StatsWindow:  64,

	AltScreen: true,
}

var (
	selectedColor = styles.AdaptiveColor{Light: "0", Dark: "9"}
	borderColor   = styles.AdaptiveColor{Light: "#555", Dark: "#555"}
	annotationFg  = styles.AdaptiveColor{Light: "4", Dark: "12"}
	kernelFg      = styles.AdaptiveColor{Light: "3", Dark: "11"}
	orphanFg      = styles.AdaptiveColor{Light: "1", Dark: "9"}
	selectedFg    = styles.NewStyle().Foreground(selectedColor)
	borderFg      = styles.NewStyle().Foreground(borderColor)
	plotStyle     = styles.NewStyle().
			BorderStyle(styles.NormalBorder()).
			Foreground(borderColor).
			BorderForeground(borderColor)
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func validateAndNormalizeConfig() error {
	if config.DBPath == "" {
		return fmt.Errorf("--db is required")
	}
	if config.Start < 0 {
		return fmt.Errorf("--start must be >= 0")
	}
	if config.End < 0 {
		return fmt.Errorf("--end must be >= 0")
	}
	if config.End != 0 && config.End <= config.Start {
		return fmt.Errorf("--end must be > --start (got start=%s end=%s)", config.Start, config.End)
	}
	if config.LaunchPad < 0 {
		return fmt.Errorf("--launch-pad must be >= 0")
	}
	if config.TopK < 1 {
		return fmt.Errorf("--top-k must be >= 1")
	}
	if config.MinWindow <= 0 {
		return fmt.Errorf("--min-window must be > 0")
	}
	if config.MinDuration < 0 {
		return fmt.Errorf("--min-duration must be >= 0")
	}
	config.ViewSplit = max(20, config.ViewSplit)
	config.ViewSplit = min(90, config.ViewSplit)
	if config.StatsWindow < 16 {
		config.StatsWindow = 16
	}
	return nil
}
