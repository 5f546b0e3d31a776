package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/dbtlineage/internal/cli"
)

// documented reports whether cmd gets its own page.
func documented(cmd *cobra.Command) bool {
	return !cmd.Hidden && cmd.Name() != "help" && cmd.Name() != "__complete"
}

// generateCLIDocs writes index.md plus one page per command.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	rootCmd := cli.NewRootCmd()

	if err := generateCLIIndex(rootCmd, outDir); err != nil {
		return fmt.Errorf("failed to generate index: %w", err)
	}
	log.Printf("  Generated index.md")

	for _, cmd := range rootCmd.Commands() {
		if !documented(cmd) {
			continue
		}
		if err := generateCommandPage(cmd, outDir); err != nil {
			return fmt.Errorf("failed to generate page for %s: %w", cmd.Name(), err)
		}
		log.Printf("  Generated %s.md", cmd.Name())
	}

	return nil
}

func generateCLIIndex(rootCmd *cobra.Command, outDir string) error {
	p := newPage("CLI Reference", "Command-line interface reference for dbtlineage")

	p.Header(1, "CLI Reference")
	p.Paragraph(rootCmd.Long)

	p.Header(2, "Installation")
	p.Code("bash", "go install github.com/leapstack-labs/dbtlineage/cmd/dbtlineage@latest")

	p.Header(2, "Commands")
	var rows [][]string
	for _, cmd := range rootCmd.Commands() {
		if !documented(cmd) {
			continue
		}
		link := fmt.Sprintf("[%s](%s.md)", inlineCode(cmd.Name()), cmd.Name())
		rows = append(rows, []string{link, cleanDescription(cmd.Short)})
	}
	p.Table([]string{"Command", "Description"}, rows)
	p.Println()

	p.Header(2, "Global Options")
	writeFlagsTable(p, rootCmd.PersistentFlags())

	p.Header(2, "Exit Codes")
	p.Table([]string{"Code", "Meaning"}, [][]string{
		{inlineCode("0"), "Success"},
		{inlineCode("1"), "Error, including `impact --fail-on-critical` finding critical columns"},
	})
	p.Println()

	return p.write(outDir, "index.md")
}

func generateCommandPage(cmd *cobra.Command, outDir string) error {
	p := newPage(cmd.Name(), cleanDescription(cmd.Short))

	p.Header(1, cmd.Name())
	if cmd.Long != "" {
		p.Paragraph(cmd.Long)
	} else {
		p.Paragraph(cmd.Short)
	}

	p.Header(2, "Usage")
	p.Code("bash", cmd.UseLine())

	if len(cmd.Aliases) > 0 {
		p.Header(2, "Aliases")
		for _, alias := range cmd.Aliases {
			p.Println("- " + inlineCode(alias))
		}
		p.Println()
	}

	if cmd.HasLocalFlags() {
		p.Header(2, "Options")
		writeFlagsTable(p, cmd.LocalFlags())
	}
	if cmd.HasInheritedFlags() {
		p.Header(2, "Global Options")
		writeFlagsTable(p, cmd.InheritedFlags())
	}

	if cmd.Example != "" {
		p.Header(2, "Examples")
		p.Code("bash", cleanExample(cmd.Example))
	}

	return p.write(outDir, cmd.Name()+".md")
}

func writeFlagsTable(p *page, flags *pflag.FlagSet) {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		short := ""
		if f.Shorthand != "" {
			short = "-" + f.Shorthand
		}
		defVal := f.DefValue
		if f.Value.Type() == "string" && defVal != "" {
			defVal = inlineCode(defVal)
		}
		rows = append(rows, []string{inlineCode("--" + f.Name), short, defVal, cleanDescription(f.Usage)})
	})
	p.Table([]string{"Option", "Short", "Default", "Description"}, rows)
	p.Println()
}

// cleanExample removes common leading whitespace from example text.
func cleanExample(example string) string {
	lines := strings.Split(example, "\n")

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return strings.TrimSpace(example)
	}

	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) >= minIndent {
			result = append(result, line[minIndent:])
		} else {
			result = append(result, strings.TrimLeft(line, " \t"))
		}
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}
