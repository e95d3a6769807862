package commands

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/version"
)

// printStartupBanner prints the interactive startup banner: a big-text
// logo, version line, and the four bound ports. Skipped entirely when
// running with JSON logs (log-aggregation contexts have no interactive
// terminal worth decorating).
func printStartupBanner(cfg *config.StartConfig) {
	_ = pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("LB", pterm.NewStyle(pterm.FgLightCyan)),
	).Render()

	info := version.Get()
	pterm.Info.Printfln("version %s (commit %s)", info.Version, info.Short())

	pterm.DefaultBulletList.WithItems([]pterm.BulletListItem{
		{Level: 0, Text: pterm.Sprintf("client:  %d", cfg.ClientPort)},
		{Level: 0, Text: pterm.Sprintf("reg:     %d", cfg.RegPort)},
		{Level: 0, Text: pterm.Sprintf("status:  %d", cfg.StatusPort)},
		{Level: 0, Text: pterm.Sprintf("admin:   %d", cfg.AdminPort)},
	}).Render()

	pterm.Success.Println("listening — press Ctrl+C to stop")
}
