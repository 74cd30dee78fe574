package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(DuskGold).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(DuskCoral).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(DuskCoral).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(DuskGold).
			Bold(true)

	helpEnvStyle = lipgloss.NewStyle().
			Foreground(DuskViolet)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(Haze).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling.
// Flags are listed per kong group, in the order groups first appear.
func StyledHelpPrinter(options kong.HelpOptions) kong.HelpPrinter {
	return kong.HelpPrinter(func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render(Name))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render(Tagline))
		sb.WriteString("\n")

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(fmt.Sprintf("%s [flags]", ctx.Model.Name))
		sb.WriteString("\n")

		for _, section := range flagSections(ctx) {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render(section.title + ":"))
			sb.WriteString("\n")
			for _, f := range section.flags {
				writeFlag(&sb, f)
			}
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	})
}

type flagLine struct {
	flags      string
	help       string
	env        string
	defaultVal string
}

type section struct {
	title string
	flags []flagLine
}

func writeFlag(sb *strings.Builder, f flagLine) {
	sb.WriteString("  ")
	sb.WriteString(helpFlagStyle.Render(f.flags))
	if f.help != "" {
		sb.WriteString("  ")
		sb.WriteString(f.help)
	}
	if f.defaultVal != "" {
		sb.WriteString(" ")
		sb.WriteString(helpDefaultStyle.Render("(default: " + f.defaultVal + ")"))
	}
	if f.env != "" {
		sb.WriteString(" ")
		sb.WriteString(helpEnvStyle.Render("$" + f.env))
	}
	sb.WriteString("\n")
}

// flagSections groups the model's flags. Ungrouped flags, help included,
// come first under "Flags".
func flagSections(ctx *kong.Context) []section {
	general := section{title: "Flags", flags: []flagLine{{
		flags: "-h, --help",
		help:  "Show context-sensitive help.",
	}}}
	sections := []section{general}
	index := map[string]int{}

	for _, f := range ctx.Model.Node.Flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		line := describeFlag(f)

		if f.Group == nil {
			sections[0].flags = append(sections[0].flags, line)
			continue
		}
		i, ok := index[f.Group.Key]
		if !ok {
			i = len(sections)
			index[f.Group.Key] = i
			sections = append(sections, section{title: f.Group.Title})
		}
		sections[i].flags = append(sections[i].flags, line)
	}
	return sections
}

func describeFlag(f *kong.Flag) flagLine {
	flagStr := fmt.Sprintf("--%s", f.Name)
	if f.Short != 0 {
		flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
	}
	if !f.IsBool() && f.PlaceHolder != "" {
		flagStr += "=" + strings.ToUpper(f.PlaceHolder)
	}

	// Only show a default when it carries information
	defaultVal := ""
	if f.HasDefault && !f.IsBool() && f.Default != "" {
		defaultVal = f.Default
	}

	env := ""
	if len(f.Envs) > 0 {
		env = f.Envs[0]
	}

	return flagLine{
		flags:      flagStr,
		help:       f.Help,
		env:        env,
		defaultVal: defaultVal,
	}
}
